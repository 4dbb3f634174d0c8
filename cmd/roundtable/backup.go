package main

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/wesheets/roundtable/internal/config"
)

var backupOutput string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the data directory",
	Long: `Write the data directory to a zstd-compressed tar archive.

Captures the task database, agent registry file if it lives there, the
debug log, and the bus store. Stop a running 'roundtable serve' first
so the database is quiescent.

Examples:
  roundtable backup -f roundtable-backup.tar.zst`,
	RunE: runBackup,
}

var (
	restoreInput     string
	restoreOverwrite bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the data directory from a backup archive",
	Long: `Extract a backup archive into the data directory.

Refuses to touch a non-empty data directory unless --overwrite is
given. Stop a running 'roundtable serve' before restoring.`,
	RunE: runRestore,
}

func init() {
	backupCmd.Flags().StringVarP(&backupOutput, "file", "f", "", "Output archive path (required)")
	_ = backupCmd.MarkFlagRequired("file")

	restoreCmd.Flags().StringVarP(&restoreInput, "file", "f", "", "Backup archive path (required)")
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "Replace files in a non-empty data directory")
	_ = restoreCmd.MarkFlagRequired("file")
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	count, size, err := writeArchive(backupOutput, cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	fmt.Printf("Backup complete: %d files, %s\n", count, formatSize(size))
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	count, err := extractArchive(restoreInput, cfg.Storage.DataDir, restoreOverwrite)
	if err != nil {
		return err
	}
	fmt.Printf("Restore complete: %d files into %s\n", count, cfg.Storage.DataDir)
	return nil
}

// writeArchive tars the data directory into a zstd-compressed archive.
// Entry names are relative to the data directory root.
func writeArchive(outputPath, dataDir string) (int, int64, error) {
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return 0, 0, fmt.Errorf("data directory %s does not exist", dataDir)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, 0, fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return 0, 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	count := 0
	err = filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", rel, err)
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header: %w", err)
		}
		if d.IsDir() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		if _, err := io.Copy(tw, src); err != nil {
			return fmt.Errorf("write tar data for %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return 0, 0, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, 0, fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, 0, fmt.Errorf("close file: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return count, 0, nil
	}
	return count, info.Size(), nil
}

// extractArchive unpacks a backup archive into dataDir. Entries that
// would escape the target directory are rejected.
func extractArchive(inputPath, dataDir string, overwrite bool) (int, error) {
	if !overwrite {
		if entries, err := os.ReadDir(dataDir); err == nil && len(entries) > 0 {
			return 0, fmt.Errorf("data directory %s is not empty, add --overwrite to replace files", dataDir)
		}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return 0, fmt.Errorf("create data directory: %w", err)
	}

	tr := tar.NewReader(zr)
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read tar entry: %w", err)
		}

		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return count, fmt.Errorf("archive entry %q escapes the data directory", hdr.Name)
		}
		target := filepath.Join(dataDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return count, err
			}
			dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return count, err
			}
			if _, err := io.Copy(dst, tr); err != nil {
				dst.Close()
				return count, fmt.Errorf("write %s: %w", hdr.Name, err)
			}
			if err := dst.Close(); err != nil {
				return count, fmt.Errorf("close %s: %w", hdr.Name, err)
			}
			count++
		default:
			// Skip links and other special entries.
		}
	}
	return count, nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
