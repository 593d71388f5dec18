// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID     = "job_id"
	FieldMediaID   = "media_id"
	FieldStreamID  = "stream_id"
	FieldOwner     = "owner"
	FieldRequestID = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldTool      = "tool"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"
	FieldOutcome   = "outcome"
	FieldSegment   = "segment"
	FieldAttempt   = "attempt"

	// Media / stream fields
	FieldCodec    = "codec"
	FieldQuality  = "quality"
	FieldTrack    = "track"
	FieldChannels = "channels"
	FieldFPS      = "fps"
	FieldPercent  = "percent"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath   = "path"
	FieldRemote = "remote"
)
