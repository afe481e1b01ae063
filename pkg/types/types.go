package types

import (
	"encoding/json"
	"time"

	"github.com/cuemby/otaagent/pkg/semver"
)

// Priority controls the order in which pending updates drain. Higher
// priority modules are applied first; ties break on module name.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Order returns a sort key where a lower value means "apply sooner".
func (p Priority) Order() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ManifestEntry is one module's authoritative catalog record. It is the
// sole source of truth for verification inputs: no side-file downloaded
// alongside an artifact may be consulted for sha256 or signature.
type ManifestEntry struct {
	LatestVersion string    `json:"latest_version"`
	SHA256        string    `json:"sha256"`
	FileSize      uint64    `json:"file_size"`
	Signature     string    `json:"signature,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
	Priority      Priority  `json:"priority,omitempty"`
}

// EffectivePriority returns the entry's priority, defaulting to normal.
func (e ManifestEntry) EffectivePriority() Priority {
	if e.Priority == "" {
		return PriorityNormal
	}
	return e.Priority
}

// Manifest maps module name to its catalog entry. It accepts both the
// nested {"modules": {...}} shape and the legacy flat top-level shape on
// read.
type Manifest struct {
	Modules map[string]ManifestEntry
}

type nestedManifest struct {
	Modules map[string]ManifestEntry `json:"modules"`
}

// UnmarshalJSON tries the nested shape first, then falls back to treating
// the whole document as a flat name -> entry map.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var nested nestedManifest
	if err := json.Unmarshal(data, &nested); err == nil && nested.Modules != nil {
		m.Modules = nested.Modules
		return nil
	}

	var flat map[string]ManifestEntry
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	m.Modules = flat
	return nil
}

// MarshalJSON always emits the nested shape.
func (m Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(nestedManifest{Modules: m.Modules})
}

// PendingUpdate is created during manifest diff and cleared on success,
// failure, or cancellation.
type PendingUpdate struct {
	Name           string
	FromVersion    semver.Version
	ToVersion      semver.Version
	ExpectedDigest string
	ExpectedSize   uint64
	Signature      string
	Priority       Priority
}

// Status is the user-visible device state the host renders (e.g. as LED
// patterns). The orchestrator emits these; it never drives a UI directly.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusCheckingUpdates Status = "checking_updates"
	StatusUpdateAvailable Status = "update_available"
	StatusDownloading     Status = "downloading"
	StatusDownloadingFast Status = "downloading_fast"
	StatusApplying        Status = "applying"
	StatusSuccess         Status = "success"
	StatusFailure         Status = "failure"
	StatusError           Status = "error"
)

// EventKind classifies an Event for host-side filtering/logging.
type EventKind string

const (
	EventTransition           EventKind = "transition"
	EventCheckFailed          EventKind = "check_failed"
	EventApplySuccess         EventKind = "apply_success"
	EventApplyFailure         EventKind = "apply_failure"
	EventReloadFailedRollback EventKind = "reload_failed_after_rollback"
	EventBootRecovery         EventKind = "boot_recovery"
)

// Event is a status/diagnostic event emitted by the orchestrator for the
// host to log or render. It carries a correlation ID for tracing one
// update cycle across log lines.
type Event struct {
	Kind          EventKind
	Module        string
	Status        Status
	CorrelationID string
	Message       string
	Err           error
	At            time.Time
}
