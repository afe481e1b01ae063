/*
Package log provides structured logging for the update agent using zerolog.

The global Logger is configured once via Init and then derived into child
loggers tagged with a component, module, or correlation id:

	┌────────────── LOGGING ──────────────┐
	│  Logger (global, set by Init)        │
	│    ├─ WithComponent("orchestrator")  │
	│    ├─ WithModule("sg")               │
	│    └─ WithCorrelationID(cycleID)      │
	└───────────────────────────────────────┘

Output is JSON when Config.JSONOutput is set (for collection by a host-side
log sink) or a human-readable console format otherwise. Level filtering
applies globally via zerolog.SetGlobalLevel.
*/
package log
