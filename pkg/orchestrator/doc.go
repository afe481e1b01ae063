/*
Package orchestrator wires together pkg/catalog, pkg/verify, pkg/staging,
pkg/loader (or a test double satisfying ModuleLoader), pkg/version, and
pkg/host into the UpdateOrchestrator state machine:

	Init -> NormalOperation -> CheckingUpdates -> UpdateAvailable
	     -> Downloading(m) -> Verifying(m) -> Applying(m)
	     -> ApplySuccess(m) | Rolling(m) -> ApplyFailure(m)
	     -> NormalOperation

Tick(now) is the single entry point; the host's main loop calls it once per
scheduling period. Everything the orchestrator does, including the
blocking manifest fetch and artifact download, runs synchronously inside
one Tick call, matching the cooperative scheduling model of the embedding
device: there is no internal goroutine, timer, or channel.

A module's own update() hook keeps firing every tick regardless of update
activity, except for the brief window during Applying where the module is
unloaded and reloaded; ModuleLoader.Tick handles that directly since it
only calls update() on modules that are currently loaded.

At most one update is ever in flight (o.current); additional pending
updates queue in priority order and drain one at a time as NormalOperation
is re-entered, without waiting out a full check_interval between them.
*/
package orchestrator
