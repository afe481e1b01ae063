/*
Package staging implements the StagingStore: per-module active/staging/
backup byte slots on disk with an atomic, crash-consistent commit.

	┌────────── modules/<name>/ ──────────┐
	│  staging.bin  (write target)         │
	│  active.bin   (currently loaded)      │
	│  backup.bin   (previous active)       │
	└────────────────────────────────────────┘
	journal.db (bbolt, one "commits" bucket keyed by module name)

Commit durably records a "started" marker in the journal before either
rename; Recover reads that marker on start-up to classify each module as
pre-commit (discard any loose staging bytes) or post-commit (finish
publishing active from staging) without ever observing a half-applied
state.
*/
package staging
