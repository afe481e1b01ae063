// Package version implements the VersionTracker: an in-memory
// name -> semver.Version map updated only on successful module loads.
package version

import (
	"sync"

	"github.com/cuemby/otaagent/pkg/semver"
)

// Tracker is a mutex-guarded map of module name to its currently loaded
// version, grounded on the same small-map-plus-mutex shape used
// elsewhere in this codebase for short-lived registries.
type Tracker struct {
	mu       sync.RWMutex
	versions map[string]semver.Version
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{versions: make(map[string]semver.Version)}
}

// Set records name's currently loaded version. Called only after a
// successful Loader.Load or Loader.Reload.
func (t *Tracker) Set(name string, v semver.Version) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.versions[name] = v
}

// Get returns name's tracked version, or semver.Baseline if untracked: an
// absent module is treated as baseline for manifest diffing.
func (t *Tracker) Get(name string) (semver.Version, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.versions[name]
	if !ok {
		return semver.Baseline, false
	}
	return v, true
}

// Remove clears name's tracked version, e.g. after an unload with no
// immediate reload.
func (t *Tracker) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.versions, name)
}

// Snapshot returns a copy of all tracked name -> version pairs.
func (t *Tracker) Snapshot() map[string]semver.Version {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]semver.Version, len(t.versions))
	for k, v := range t.versions {
		out[k] = v
	}
	return out
}
