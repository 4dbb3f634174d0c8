package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesheets/roundtable/internal/bus"
	"github.com/wesheets/roundtable/internal/config"
	"github.com/wesheets/roundtable/internal/orchestrator"
	"github.com/wesheets/roundtable/internal/web"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and event stream",
	Long: `Start the roundtable HTTP API.

Serves task submission and execution, agent messaging, consensus
voting, and thread queries over REST under /api, streams orchestrator
events over a websocket at /api/ws, and exposes Prometheus metrics at
/metrics.

Tasks interrupted by a previous shutdown are reattached and continue
executing. With bus.enabled set, an embedded NATS server mirrors
messages, events, and votes onto subjects other processes can
subscribe to.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind address (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var extra []orchestrator.Option
	if cfg.Bus.Enabled {
		b, err := bus.New(bus.Config{
			Port:      cfg.Bus.Port,
			DataDir:   cfg.BusDir(),
			JetStream: cfg.Bus.JetStream,
		})
		if err != nil {
			return fmt.Errorf("start message bus: %w", err)
		}
		defer b.Close()

		client, err := bus.NewClient(b)
		if err != nil {
			return fmt.Errorf("connect message bus: %w", err)
		}
		defer client.Close()

		extra = append(extra, orchestrator.WithBus(client))
		printStatus("✓", fmt.Sprintf("Message bus on %s", b.ClientURL()), color.FgGreen)
	}

	orc, cleanup, err := buildOrchestrator(cfg, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	resumed, err := orc.Resume(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: resume interrupted tasks: %v\n", err)
	}
	for _, id := range resumed {
		printStatus("↻", fmt.Sprintf("Resuming task %s", id), color.FgYellow)
		go func(id string) {
			if err := orc.Run(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "Warning: resumed task %s: %v\n", id, err)
			}
		}(id)
	}

	srv := web.NewServer(orc, web.Config{Host: cfg.Server.Host, Port: cfg.Server.Port})
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
