// Package orchestrator implements the UpdateOrchestrator: the top-level
// tick-driven state machine that polls the catalog, diffs it against
// tracked versions, and drives each pending update through download,
// verify, stage, commit, reload, and (on failure) rollback.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/otaagent/pkg/catalog"
	"github.com/cuemby/otaagent/pkg/host"
	"github.com/cuemby/otaagent/pkg/log"
	"github.com/cuemby/otaagent/pkg/metrics"
	"github.com/cuemby/otaagent/pkg/semver"
	"github.com/cuemby/otaagent/pkg/staging"
	"github.com/cuemby/otaagent/pkg/types"
	"github.com/cuemby/otaagent/pkg/verify"
	"github.com/cuemby/otaagent/pkg/version"
)

// State is one node of the orchestrator's state machine.
type State string

const (
	StateInit             State = "init"
	StateNormalOperation  State = "normal_operation"
	StateCheckingUpdates  State = "checking_updates"
	StateUpdateAvailable  State = "update_available"
	StateDownloading      State = "downloading"
	StateVerifying        State = "verifying"
	StateApplying         State = "applying"
	StateApplySuccess     State = "apply_success"
	StateRolling          State = "rolling"
	StateApplyFailure     State = "apply_failure"
)

// ModuleLoader is the subset of pkg/loader.Loader the orchestrator
// depends on. Declared as an interface so tests can exercise the state
// machine without allocating real executable memory or invoking raw
// machine code.
type ModuleLoader interface {
	Load(name string, bytes []byte) (semver.Version, error)
	Unload(name string) error
	Reload(name string, bytes []byte) (semver.Version, error)
	Tick()
	Version(name string) (semver.Version, bool)
	Count() int
}

// Config bundles the orchestrator's timing and retry parameters, drawn
// from pkg/config.Config.
type Config struct {
	CheckInterval        time.Duration
	PostCommitGrace      time.Duration
	FailureDisplayWindow time.Duration
	DownloadRetries      int
	CancelGracePeriod    time.Duration
	MaxArtifactSize      uint64
}

// inFlight tracks the single update currently progressing through
// Downloading/Verifying/Applying/Rolling.
type inFlight struct {
	update           types.PendingUpdate
	startedAt        time.Time
	retriesUsed      int
	nextAttemptAt    time.Time
	safeWindowLostAt time.Time
	stagingBytes     []byte
	successDeadline  time.Time
	failureDeadline  time.Time
}

// Orchestrator is the UpdateOrchestrator. It is not safe for concurrent
// use: the host must call Tick from a single goroutine, matching the
// cooperative, tick-driven scheduling model of the embedding device.
type Orchestrator struct {
	cfg Config

	catalogClient *catalog.Client
	verifier      *verify.Verifier
	stagingStore  *staging.Store
	loader        ModuleLoader
	tracker       *version.Tracker
	collaborator  host.Collaborator

	state         State
	lastCheckAt   time.Time
	pending       []types.PendingUpdate
	current       *inFlight
	correlationID string
}

// New constructs an Orchestrator in state Init. Call Tick repeatedly from
// the host's main loop; the first call performs boot recovery.
func New(cfg Config, catalogClient *catalog.Client, verifier *verify.Verifier, stagingStore *staging.Store, loader ModuleLoader, tracker *version.Tracker, collaborator host.Collaborator) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		catalogClient: catalogClient,
		verifier:      verifier,
		stagingStore:  stagingStore,
		loader:        loader,
		tracker:       tracker,
		collaborator:  collaborator,
		state:         StateInit,
	}
}

// State returns the orchestrator's current state, for diagnostics and
// tests.
func (o *Orchestrator) State() State {
	return o.state
}

// Pending returns a copy of the currently queued pending updates, in the
// order they will be processed.
func (o *Orchestrator) Pending() []types.PendingUpdate {
	out := make([]types.PendingUpdate, len(o.pending))
	copy(out, o.pending)
	return out
}

// Tick advances the state machine by one step and returns quickly; long
// operations (manifest fetch, artifact download) run synchronously
// within a single tick, matching the cooperative scheduling model this
// device targets.
func (o *Orchestrator) Tick(now time.Time) {
	metrics.TicksTotal.Inc()

	if o.loader != nil {
		o.loader.Tick()
	}

	switch o.state {
	case StateInit:
		o.handleInit(now)
	case StateNormalOperation:
		o.handleNormalOperation(now)
	case StateCheckingUpdates:
		o.handleCheckingUpdates(now)
	case StateUpdateAvailable:
		o.handleUpdateAvailable(now)
	case StateDownloading:
		o.handleDownloading(now)
	case StateVerifying:
		o.handleVerifying(now)
	case StateApplying:
		o.handleApplying(now)
	case StateRolling:
		o.handleRolling(now)
	case StateApplySuccess:
		o.handleApplySuccess(now)
	case StateApplyFailure:
		o.handleApplyFailure(now)
	}
}

func (o *Orchestrator) emit(kind types.EventKind, module string, status types.Status, message string, err error, now time.Time) {
	o.collaborator.Log(types.Event{
		Kind:          kind,
		Module:        module,
		Status:        status,
		CorrelationID: o.correlationID,
		Message:       message,
		Err:           err,
		At:            now,
	})

	logger := log.WithCorrelationID(o.correlationID)
	if module != "" {
		logger = logger.With().Str("module", module).Logger()
	}
	evt := logger.Info()
	if err != nil {
		evt = logger.Error().Err(err)
	}
	evt.Str("kind", string(kind)).Str("status", string(status)).Msg(message)
}

func (o *Orchestrator) setStatus(status types.Status) {
	o.collaborator.SetStatus(status)
}

// handleInit performs boot recovery: resolve any interrupted commit,
// then load every module's active slot, rebuilding the VersionTracker.
// A module whose active slot fails to load is given one automatic
// rollback-and-reload attempt before being left unloaded.
func (o *Orchestrator) handleInit(now time.Time) {
	recoveries, err := o.stagingStore.Recover()
	if err != nil {
		o.emit(types.EventBootRecovery, "", types.StatusError, "staging recovery failed", err, now)
	}
	for _, rec := range recoveries {
		metrics.StagingRecoveriesTotal.WithLabelValues(rec.Resolution).Inc()
	}

	for _, rec := range recoveries {
		name := rec.Module
		data, readErr := o.stagingStore.Read(name, "active")
		if readErr != nil {
			continue // no active slot yet; module not installed
		}

		v, loadErr := o.loader.Load(name, data)
		if loadErr == nil {
			o.tracker.Set(name, v)
			metrics.ModuleLoadsTotal.WithLabelValues(name, "success").Inc()
			continue
		}
		metrics.ModuleLoadsTotal.WithLabelValues(name, "init_failed").Inc()

		// The module failed to load at boot; attempt one rollback and
		// reload from the restored active slot before giving up on it.
		if rbErr := o.stagingStore.Rollback(name); rbErr == nil {
			backup, rErr := o.stagingStore.Read(name, "active")
			if rErr == nil {
				if v2, loadErr2 := o.loader.Load(name, backup); loadErr2 == nil {
					o.tracker.Set(name, v2)
					metrics.RollbacksTotal.WithLabelValues(name, "boot_load_failed").Inc()
					continue
				}
			}
		}

		metrics.ReloadFailuresAfterRollbackTotal.WithLabelValues(name).Inc()
		o.emit(types.EventReloadFailedRollback, name, types.StatusError, "module left unloaded after boot load failure", loadErr, now)
	}

	metrics.ModulesLoaded.Set(float64(o.loader.Count()))
	o.emit(types.EventBootRecovery, "", types.StatusIdle, fmt.Sprintf("boot recovery complete: %d module(s) inspected", len(recoveries)), nil, now)
	o.state = StateNormalOperation
	o.setStatus(types.StatusIdle)
}

// handleNormalOperation starts the next queued update immediately if one
// remains from the last check (draining multiple pending updates without
// waiting for the next check_interval), otherwise waits for the check
// interval to elapse.
func (o *Orchestrator) handleNormalOperation(now time.Time) {
	if len(o.pending) > 0 {
		o.state = StateUpdateAvailable
		o.setStatus(types.StatusUpdateAvailable)
		return
	}
	if now.Sub(o.lastCheckAt) >= o.cfg.CheckInterval {
		o.correlationID = uuid.NewString()
		o.state = StateCheckingUpdates
		o.setStatus(types.StatusCheckingUpdates)
	}
}

// handleCheckingUpdates fetches and diffs the manifest in a single tick.
func (o *Orchestrator) handleCheckingUpdates(now time.Time) {
	timer := metrics.NewTimer()
	manifestBytes, err := o.catalogClient.FetchManifest(context.Background())
	timer.ObserveDuration(metrics.CatalogCheckDuration)
	if err != nil {
		metrics.CatalogCheckFailuresTotal.WithLabelValues("transport").Inc()
		o.emit(types.EventCheckFailed, "", types.StatusIdle, "manifest fetch failed", err, now)
		o.lastCheckAt = now
		o.state = StateNormalOperation
		o.setStatus(types.StatusIdle)
		return
	}

	var manifest types.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		metrics.CatalogCheckFailuresTotal.WithLabelValues("manifest_parse").Inc()
		o.emit(types.EventCheckFailed, "", types.StatusIdle, "manifest parse failed", err, now)
		o.lastCheckAt = now
		o.state = StateNormalOperation
		o.setStatus(types.StatusIdle)
		return
	}

	pending, diffErr := o.diffManifest(manifest)
	if diffErr != nil {
		metrics.CatalogCheckFailuresTotal.WithLabelValues("bad_entry").Inc()
		o.emit(types.EventCheckFailed, "", types.StatusIdle, diffErr.Error(), diffErr, now)
		o.lastCheckAt = now
		o.state = StateNormalOperation
		o.setStatus(types.StatusIdle)
		return
	}

	o.pending = pending
	metrics.PendingUpdatesQueued.Set(float64(len(pending)))
	o.lastCheckAt = now

	if len(pending) > 0 {
		o.state = StateUpdateAvailable
		o.setStatus(types.StatusUpdateAvailable)
		return
	}
	o.state = StateNormalOperation
	o.setStatus(types.StatusIdle)
}

// diffManifest enqueues a PendingUpdate for every tracked-or-untracked
// module whose manifest latest_version strictly exceeds its tracked
// version. A malformed entry (bad version, missing digest) aborts the
// entire check rather than partially enqueueing updates, matching the
// CatalogFormat error class's "not retried, current check aborts"
// handling.
func (o *Orchestrator) diffManifest(manifest types.Manifest) ([]types.PendingUpdate, error) {
	var pending []types.PendingUpdate

	for name, entry := range manifest.Modules {
		if entry.LatestVersion == "" || entry.SHA256 == "" {
			return nil, fmt.Errorf("manifest entry %q missing required field", name)
		}
		latest, ok := semver.Parse(entry.LatestVersion)
		if !ok {
			return nil, fmt.Errorf("manifest entry %q has unparseable version %q", name, entry.LatestVersion)
		}

		from, tracked := o.tracker.Get(name)
		if !tracked {
			from = semver.Baseline
		}

		if latest.Compare(from) > 0 {
			pending = append(pending, types.PendingUpdate{
				Name:           name,
				FromVersion:    from,
				ToVersion:      latest,
				ExpectedDigest: entry.SHA256,
				ExpectedSize:   entry.FileSize,
				Signature:      entry.Signature,
				Priority:       entry.EffectivePriority(),
			})
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority.Order() != pending[j].Priority.Order() {
			return pending[i].Priority.Order() < pending[j].Priority.Order()
		}
		return pending[i].Name < pending[j].Name
	})

	return pending, nil
}

// handleUpdateAvailable waits for the host's safe-window signal, then
// pops the highest-priority pending update and begins downloading it.
func (o *Orchestrator) handleUpdateAvailable(now time.Time) {
	if !o.collaborator.SafeWindow() {
		return
	}
	if len(o.pending) == 0 {
		o.state = StateNormalOperation
		o.setStatus(types.StatusIdle)
		return
	}

	next := o.pending[0]
	o.pending = o.pending[1:]
	metrics.PendingUpdatesQueued.Set(float64(len(o.pending)))

	if next.ExpectedSize > o.cfg.MaxArtifactSize {
		o.emit(types.EventApplyFailure, next.Name, types.StatusFailure, "artifact exceeds max_artifact_size", nil, now)
		o.state = StateApplyFailure
		o.current = &inFlight{update: next, failureDeadline: now.Add(o.cfg.FailureDisplayWindow)}
		o.setStatus(types.StatusFailure)
		return
	}

	if err := o.stagingStore.OpenStaging(next.Name); err != nil {
		// Busy: another staging write is already open for this module.
		// Put it back at the front of the queue and try again next tick.
		o.pending = append([]types.PendingUpdate{next}, o.pending...)
		return
	}

	o.current = &inFlight{update: next, nextAttemptAt: now, startedAt: now}
	o.state = StateDownloading
	o.setStatus(types.StatusDownloading)
	log.WithModule(next.Name).Debug().Str("to_version", next.ToVersion.String()).Msg("starting download")
}

// cancelIfSafeWindowLost discards the in-flight update and returns to
// UpdateAvailable if the host's safe-window signal has been absent for
// longer than CancelGracePeriod. Returns true if it cancelled.
func (o *Orchestrator) cancelIfSafeWindowLost(now time.Time) bool {
	if o.collaborator.SafeWindow() {
		o.current.safeWindowLostAt = time.Time{}
		return false
	}
	if o.current.safeWindowLostAt.IsZero() {
		o.current.safeWindowLostAt = now
	}
	if now.Sub(o.current.safeWindowLostAt) <= o.cfg.CancelGracePeriod {
		return false
	}

	_ = o.stagingStore.DiscardStaging(o.current.update.Name)
	o.emit(types.EventTransition, o.current.update.Name, types.StatusUpdateAvailable, "cancelled: safe window lost", nil, now)
	o.pending = append([]types.PendingUpdate{o.current.update}, o.pending...)
	o.current = nil
	o.state = StateUpdateAvailable
	o.setStatus(types.StatusUpdateAvailable)
	return true
}

func backoffDuration(retriesUsed int) time.Duration {
	d := time.Duration(1<<uint(retriesUsed-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func artifactPath(name string, v semver.Version) string {
	return fmt.Sprintf("%s/%s-v%s.bin", name, name, v.String())
}

// handleDownloading streams the artifact into the staging slot, retrying
// transient transport errors with exponential backoff capped at 30s, up
// to DownloadRetries retries after the first attempt.
func (o *Orchestrator) handleDownloading(now time.Time) {
	if o.cancelIfSafeWindowLost(now) {
		return
	}
	if now.Before(o.current.nextAttemptAt) {
		return
	}

	path := artifactPath(o.current.update.Name, o.current.update.ToVersion)
	timer := metrics.NewTimer()
	data, err := o.catalogClient.FetchArtifact(context.Background(), path)
	timer.ObserveDurationVec(metrics.ArtifactDownloadDuration, o.current.update.Name)

	if err != nil {
		o.current.retriesUsed++
		if o.current.retriesUsed > o.cfg.DownloadRetries {
			_ = o.stagingStore.DiscardStaging(o.current.update.Name)
			o.failApply(now, "download retries exhausted", err)
			return
		}
		o.current.nextAttemptAt = now.Add(backoffDuration(o.current.retriesUsed))
		o.emit(types.EventCheckFailed, o.current.update.Name, types.StatusDownloading, "artifact download failed, retrying", err, now)
		return
	}

	metrics.ArtifactDownloadBytes.WithLabelValues(o.current.update.Name).Add(float64(len(data)))

	if err := o.stagingStore.WriteStaging(o.current.update.Name, data); err != nil {
		o.failApply(now, "staging write failed", err)
		return
	}
	if err := o.stagingStore.FinalizeStaging(o.current.update.Name); err != nil {
		o.failApply(now, "staging finalize failed", err)
		return
	}

	o.current.stagingBytes = data
	o.state = StateVerifying
}

// handleVerifying checks the staged bytes against the manifest-supplied
// digest and signature.
func (o *Orchestrator) handleVerifying(now time.Time) {
	if o.cancelIfSafeWindowLost(now) {
		return
	}

	err := o.verifier.Verify(o.current.stagingBytes, o.current.update.ExpectedDigest, o.current.update.Signature)
	if err != nil {
		reason := "unknown"
		if verr, ok := err.(*verify.Error); ok {
			reason = verr.Kind.String()
		}
		metrics.VerifyFailuresTotal.WithLabelValues(o.current.update.Name, reason).Inc()
		_ = o.stagingStore.DiscardStaging(o.current.update.Name)
		o.failApply(now, "verification failed: "+reason, err)
		return
	}

	o.state = StateApplying
}

// handleApplying commits the staged bytes into active and reloads the
// module. Loss of the safe-window signal during Applying does not abort
// (atomicity guarantee): once commit begins, the update completes or
// rolls back.
func (o *Orchestrator) handleApplying(now time.Time) {
	name := o.current.update.Name

	commitTimer := metrics.NewTimer()
	if err := o.stagingStore.Commit(name); err != nil {
		commitTimer.ObserveDurationVec(metrics.StagingCommitDuration, name)
		o.failApply(now, "commit failed", err)
		return
	}
	commitTimer.ObserveDurationVec(metrics.StagingCommitDuration, name)

	o.setStatus(types.StatusDownloadingFast) // post-commit Applying is user-visible as DownloadingFast

	newVersion, err := o.loader.Reload(name, o.current.stagingBytes)
	if err != nil {
		metrics.ModuleLoadsTotal.WithLabelValues(name, "reload_failed").Inc()
		o.emit(types.EventTransition, name, types.StatusApplying, "reload failed after commit, rolling back", err, now)
		o.state = StateRolling
		return
	}

	metrics.ModuleLoadsTotal.WithLabelValues(name, "success").Inc()
	metrics.ModulesLoaded.Set(float64(o.loader.Count()))
	o.tracker.Set(name, newVersion)
	o.current.successDeadline = now.Add(o.cfg.PostCommitGrace)
	o.state = StateApplySuccess
	o.setStatus(types.StatusSuccess)
	o.emit(types.EventApplySuccess, name, types.StatusSuccess, fmt.Sprintf("updated to %s", newVersion), nil, now)
	metrics.UpdateCyclesTotal.WithLabelValues("success").Inc()
	metrics.UpdateCycleDuration.WithLabelValues(name).Observe(now.Sub(o.current.startedAt).Seconds())
}

// handleRolling restores the backup slot and attempts to reload it.
// Rolling always transitions to ApplyFailure: the update failed regardless
// of whether the rollback-and-reload itself succeeds, but a successful
// rollback leaves the module running its previous version rather than
// unloaded.
func (o *Orchestrator) handleRolling(now time.Time) {
	name := o.current.update.Name

	if err := o.stagingStore.Rollback(name); err != nil {
		o.failApply(now, "rollback failed: no backup", err)
		return
	}

	backup, err := o.stagingStore.Read(name, "active")
	if err != nil {
		o.failApply(now, "read restored active failed", err)
		return
	}

	newVersion, err := o.loader.Reload(name, backup)
	if err != nil {
		metrics.ReloadFailuresAfterRollbackTotal.WithLabelValues(name).Inc()
		o.emit(types.EventReloadFailedRollback, name, types.StatusFailure, "module left unloaded after failed rollback reload", err, now)
		o.failApply(now, "reload after rollback failed", err)
		return
	}

	metrics.RollbacksTotal.WithLabelValues(name, "reload_failed_post_commit").Inc()
	o.tracker.Set(name, newVersion)
	o.failApply(now, fmt.Sprintf("update failed, rolled back to %s", newVersion), nil)
}

// failApply transitions into ApplyFailure, recording the reason.
func (o *Orchestrator) failApply(now time.Time, reason string, err error) {
	o.emit(types.EventApplyFailure, o.current.update.Name, types.StatusFailure, reason, err, now)
	o.current.failureDeadline = now.Add(o.cfg.FailureDisplayWindow)
	o.state = StateApplyFailure
	o.setStatus(types.StatusFailure)
	metrics.UpdateCyclesTotal.WithLabelValues("failure").Inc()
	metrics.UpdateCycleDuration.WithLabelValues(o.current.update.Name).Observe(now.Sub(o.current.startedAt).Seconds())
}

func (o *Orchestrator) handleApplySuccess(now time.Time) {
	if now.Before(o.current.successDeadline) {
		return
	}
	_ = o.stagingStore.FinalizeSuccess(o.current.update.Name)
	o.current = nil
	o.state = StateNormalOperation
	o.setStatus(types.StatusIdle)
}

func (o *Orchestrator) handleApplyFailure(now time.Time) {
	if now.Before(o.current.failureDeadline) {
		return
	}
	o.current = nil
	o.state = StateNormalOperation
	o.setStatus(types.StatusIdle)
}
