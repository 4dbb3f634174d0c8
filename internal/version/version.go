// Package version exposes build metadata for the roundtable binary.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Commit and Date are stamped at build time:
//
//	go build -ldflags "-X github.com/wesheets/roundtable/internal/version.Commit=abc1234"
var (
	Commit string
	Date   string
)

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// Full returns the version plus the commit and build date when stamped.
func Full() string {
	v := Get()
	if Commit == "" {
		return v
	}
	if Date == "" {
		return v + " (" + Commit + ")"
	}
	return v + " (" + Commit + ", " + Date + ")"
}
