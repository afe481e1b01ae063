/*
Package metrics defines the agent's Prometheus instrumentation: tick and
update-cycle counters, catalog/artifact fetch timings, verification failure
counters by reason, staging commit/recovery counters, and loader outcome
counters (load success, rollback, reload-failure-after-rollback).

All metrics are package-level vars registered in init(); Handler exposes
them via the standard promhttp handler for a host-side scrape endpoint.
No transport is mandatory; this package is additive observability rather
than a required surface.
*/
package metrics
