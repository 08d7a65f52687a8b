// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldRunID         = "run_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State machine fields
	FieldPhase    = "phase"
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldProgress = "progress"

	// Asset fields
	FieldURL     = "url"
	FieldKind    = "kind"
	FieldBackend = "backend"
	FieldCount   = "count"
	FieldTotal   = "total"

	// Network fields
	FieldStatus    = "status"
	FieldLatencyMS = "latency_ms"
	FieldFailures  = "consecutive_failures"
	FieldTarget    = "target"
	FieldTrigger   = "trigger"
)
