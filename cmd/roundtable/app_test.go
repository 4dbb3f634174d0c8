package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wesheets/roundtable/internal/registry"
	"github.com/wesheets/roundtable/pkg/models"
)

func TestEnsureAgentsFile_SeedsStarterRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "agents.yaml")
	if err := ensureAgentsFile(path); err != nil {
		t.Fatalf("ensureAgentsFile: %v", err)
	}

	reg, err := registry.New(path)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	defer reg.Close()

	profiles := reg.Profiles()
	if len(profiles) == 0 {
		t.Fatal("starter roster is empty")
	}

	// The roster must cover the capabilities every decomposition needs
	// plus the general fallback domain, or first-run teams come up with
	// blocked requirements.
	for _, capability := range []string{"analytical-reasoning", "synthesis", "validation", "general"} {
		if !rosterCovers(profiles, capability) {
			t.Errorf("starter roster has no agent for %q", capability)
		}
	}
}

func rosterCovers(profiles []models.AgentProfile, capability string) bool {
	for _, p := range profiles {
		for _, s := range p.Specializations {
			if s == capability {
				return true
			}
		}
	}
	return false
}

func TestEnsureAgentsFile_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	custom := "agents:\n  - agentId: solo-1\n    specializations: [general]\n"
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := ensureAgentsFile(path); err != nil {
		t.Fatalf("ensureAgentsFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != custom {
		t.Error("existing registry file was overwritten")
	}
}
