// Package registry supplies agent capability profiles to the team
// composer and quality scoring. Profiles live in an agents.yaml file;
// the registry watches it and reloads on change, so operators can add
// agents without restarting. Lookups for unregistered agents degrade to
// a default profile, never an error.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/wesheets/roundtable/pkg/models"
)

const profileCacheSize = 128

type registryFile struct {
	Agents []models.AgentProfile `yaml:"agents"`
}

// Registry holds agent profiles loaded from a YAML file.
type Registry struct {
	path string

	mu       sync.RWMutex
	profiles map[string]models.AgentProfile

	cache *lru.Cache[string, models.AgentProfile]

	watcher *fsnotify.Watcher
	done    chan struct{}

	debugLog func(format string, args ...interface{})
}

// New creates a registry backed by the given agents.yaml path and starts
// watching it for changes. A missing file is not an error; the registry
// serves defaults until the file appears. A failed watcher setup is also
// not fatal; callers can still Reload explicitly.
func New(path string) (*Registry, error) {
	cache, err := lru.New[string, models.AgentProfile](profileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}

	r := &Registry{
		path:     path,
		profiles: make(map[string]models.AgentProfile),
		cache:    cache,
		done:     make(chan struct{}),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return r, nil
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return r, nil
	}
	r.watcher = watcher
	go r.watch()

	return r, nil
}

// SetDebugLog installs an optional logging hook for reloads.
func (r *Registry) SetDebugLog(fn func(format string, args ...interface{})) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debugLog = fn
}

func (r *Registry) logf(format string, args ...interface{}) {
	r.mu.RLock()
	fn := r.debugLog
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

// watch reloads the registry whenever the profile file is written. The
// parent directory is watched because editors replace files by rename.
func (r *Registry) watch() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logf("registry: reload after %s failed: %v", event.Op, err)
			}
		case <-r.watcher.Errors:
			// Keep watching.
		}
	}
}

// Reload re-reads the profile file and drops the lookup cache. A missing
// file empties the registry so every lookup falls back to defaults.
func (r *Registry) Reload() error {
	profiles := make(map[string]models.AgentProfile)

	data, err := os.ReadFile(r.path)
	switch {
	case os.IsNotExist(err):
		// Serve defaults until the file shows up.
	case err != nil:
		return fmt.Errorf("read %s: %w", r.path, err)
	default:
		var file registryFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse %s: %w", r.path, err)
		}
		for _, profile := range file.Agents {
			if profile.AgentID == "" {
				continue
			}
			if profile.Role == "" {
				profile.Role = models.DefaultRole
			}
			profiles[profile.AgentID] = profile
		}
	}

	r.mu.Lock()
	r.profiles = profiles
	r.mu.Unlock()
	r.cache.Purge()

	r.logf("registry: loaded %d agent profiles from %s", len(profiles), r.path)
	return nil
}

// Profile returns the profile for an agent, falling back to the default
// profile when the agent is not registered.
func (r *Registry) Profile(agentID string) models.AgentProfile {
	if profile, ok := r.cache.Get(agentID); ok {
		return profile
	}

	r.mu.RLock()
	profile, ok := r.profiles[agentID]
	r.mu.RUnlock()
	if !ok {
		profile = models.DefaultProfile(agentID)
	}
	r.cache.Add(agentID, profile)
	return profile
}

// Known reports whether the agent is registered. Message delivery uses
// this to mark sends to unknown agents as failed.
func (r *Registry) Known(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.profiles[agentID]
	return ok
}

// Profiles returns every registered profile, sorted by agent id.
func (r *Registry) Profiles() []models.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.AgentProfile, 0, len(r.profiles))
	for _, profile := range r.profiles {
		out = append(out, profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Close stops the file watcher.
func (r *Registry) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
