/*
Package types defines the shared data structures for the OTA update agent:
the manifest document, pending updates, and the status/event vocabulary the
orchestrator emits for the host to render or log.

# Manifest shapes

The catalog manifest JSON document is accepted in two shapes on read:

	{"modules": {"sg": {"latest_version": "v1.0.0", ...}}}   // nested
	{"sg": {"latest_version": "v1.0.0", ...}}                 // legacy flat

Manifest.UnmarshalJSON tries the nested shape first and falls back to flat.
MarshalJSON always emits the nested shape.

# Priority

Priority orders the orchestrator's pending-update queue: critical modules
drain before normal, normal before low. Ties break on module name
lexicographically (handled by the orchestrator, not this package).

# Status and Event

Status is the user-visible device state; the host renders it (e.g. as LED
patterns), this package only names the values. Event is the
structured record the orchestrator emits on every transition and error; it
carries a CorrelationID so a host-side log sink can group all lines from one
update cycle.
*/
package types
