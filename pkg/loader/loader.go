// Package loader implements the ModuleLoader: loading, unloading, and
// reloading position-independent module artifacts into executable
// memory, and invoking their ABI entry point and update hook.
//
// The loader does not parse ELF or any object format: an artifact's
// first bytes are the entry-point function's prologue, full stop. All
// relocation and linking is the build pipeline's responsibility.
package loader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/otaagent/pkg/execmem"
	"github.com/cuemby/otaagent/pkg/semver"
)

// ErrorKind classifies a Load or Unload failure.
type ErrorKind int

const (
	KindAlreadyLoaded ErrorKind = iota
	KindCapacityExceeded
	KindMemory
	KindInvalidArtifact
	KindInitFailed
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindAlreadyLoaded:
		return "already_loaded"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindMemory:
		return "memory"
	case KindInvalidArtifact:
		return "invalid_artifact"
	case KindInitFailed:
		return "init_failed"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the classified error returned by Loader operations.
type Error struct {
	Kind   ErrorKind
	Module string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("loader: %s %s: %v", e.Kind, e.Module, e.Err)
	}
	return fmt.Sprintf("loader: %s %s", e.Kind, e.Module)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether a NotFound *Error matches the ErrNotFound sentinel.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Kind == KindNotFound
}

// LoadedModule is one live module: its executable region and parsed ABI
// interface.
type LoadedModule struct {
	Name    string
	Version semver.Version

	region *execmem.Region
	iface  *moduleInterface
}

// Loader holds the set of currently loaded modules and the SystemApi
// table handed to each on load/initialize.
type Loader struct {
	mu         sync.Mutex
	maxModules int
	modules    map[string]*LoadedModule
	api        *SystemApi
}

// New constructs a Loader bounded to maxModules concurrently loaded
// modules, exposing host to every loaded module via SystemApi.
func New(maxModules int, host HostAPI) *Loader {
	return &Loader{
		maxModules: maxModules,
		modules:    make(map[string]*LoadedModule),
		api:        buildSystemAPI(host),
	}
}

// Load allocates executable memory for bytes, invokes the artifact's
// entry point and initialize hook, and registers the resulting module
// under name.
func (l *Loader) Load(name string, bytes []byte) (semver.Version, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.modules[name]; exists {
		return semver.Version{}, &Error{Kind: KindAlreadyLoaded, Module: name}
	}
	if len(l.modules) >= l.maxModules {
		return semver.Version{}, &Error{Kind: KindCapacityExceeded, Module: name}
	}

	region, err := execmem.Allocate(bytes)
	if err != nil {
		return semver.Version{}, &Error{Kind: KindMemory, Module: name, Err: err}
	}

	entryAddr := callEntryPoint(region.EntryPoint(), l.api)
	if entryAddr == 0 {
		_ = region.Free()
		return semver.Version{}, &Error{Kind: KindInvalidArtifact, Module: name}
	}

	iface, ok := parseModuleInterface(entryAddr)
	if !ok {
		_ = region.Free()
		return semver.Version{}, &Error{Kind: KindInvalidArtifact, Module: name}
	}

	if !callInitialize(iface.initializePtr, l.api) {
		_ = region.Free()
		return semver.Version{}, &Error{Kind: KindInitFailed, Module: name}
	}

	version, ok := semver.Parse(iface.version)
	if !ok {
		version = semver.Baseline
	}

	l.modules[name] = &LoadedModule{
		Name:    name,
		Version: version,
		region:  region,
		iface:   iface,
	}
	return version, nil
}

// Unload calls deinitialize, frees the code region, and removes the
// registry entry. Returns NotFound if name is not currently loaded.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unloadLocked(name)
}

func (l *Loader) unloadLocked(name string) error {
	m, exists := l.modules[name]
	if !exists {
		return &Error{Kind: KindNotFound, Module: name}
	}
	callDeinitialize(m.iface.deinitializePtr)
	delete(l.modules, name)
	if err := m.region.Free(); err != nil {
		return &Error{Kind: KindMemory, Module: name, Err: err}
	}
	return nil
}

// Reload unloads name if present, then loads bytes. A failed load leaves
// the module absent; callers (the orchestrator) are responsible for
// reacquiring from a backup artifact if needed.
func (l *Loader) Reload(name string, bytes []byte) (semver.Version, error) {
	l.mu.Lock()
	if _, exists := l.modules[name]; exists {
		if err := l.unloadLocked(name); err != nil {
			l.mu.Unlock()
			return semver.Version{}, err
		}
	}
	l.mu.Unlock()
	return l.Load(name, bytes)
}

// Tick invokes the update hook of every currently loaded module, once
// each, regardless of update activity.
func (l *Loader) Tick() {
	l.mu.Lock()
	updatePtrs := make([]uintptr, 0, len(l.modules))
	for _, m := range l.modules {
		updatePtrs = append(updatePtrs, m.iface.updatePtr)
	}
	l.mu.Unlock()

	for _, ptr := range updatePtrs {
		callUpdate(ptr)
	}
}

// Version returns the loaded version of name, if loaded.
func (l *Loader) Version(name string) (semver.Version, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.modules[name]
	if !ok {
		return semver.Version{}, false
	}
	return m.Version, true
}

// Loaded reports whether name currently has a loaded module.
func (l *Loader) Loaded(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.modules[name]
	return ok
}

// Count returns the number of currently loaded modules.
func (l *Loader) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.modules)
}

// ErrNotFound is a sentinel usable with errors.Is for NotFound
// classification convenience; Loader methods still return the richer
// *Error.
var ErrNotFound = errors.New("loader: module not found")
