// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Job attributes
	JobIDKey      = "job.id"
	JobMediaKey   = "job.media"
	JobAttemptKey = "job.attempt"
	JobResultKey  = "job.result"

	// Transcoding attributes
	TranscodeCodecKey   = "transcode.codec"
	TranscodeQualityKey = "transcode.quality"
	TranscodeSegmentKey = "transcode.segment"
	TranscodeTrackKey   = "transcode.track"

	// Process attributes
	ProcessToolKey     = "process.tool"
	ProcessOutcomeKey  = "process.outcome"
	ProcessExitCodeKey = "process.exit_code"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// JobAttributes creates job-related span attributes.
func JobAttributes(jobID, media, codec string, attempt int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if jobID != "" {
		attrs = append(attrs, attribute.String(JobIDKey, jobID))
	}
	if media != "" {
		attrs = append(attrs, attribute.String(JobMediaKey, media))
	}
	if codec != "" {
		attrs = append(attrs, attribute.String(TranscodeCodecKey, codec))
	}
	attrs = append(attrs, attribute.Int(JobAttemptKey, attempt))
	return attrs
}

// RenditionAttributes describes one audio or video rendition.
func RenditionAttributes(codec string, quality, track int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(TranscodeCodecKey, codec)}
	if quality > 0 {
		attrs = append(attrs, attribute.Int(TranscodeQualityKey, quality))
	}
	if track >= 0 {
		attrs = append(attrs, attribute.Int(TranscodeTrackKey, track))
	}
	return attrs
}

// ProcessAttributes describes a supervised subprocess result.
func ProcessAttributes(tool, outcome string, exitCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProcessToolKey, tool),
		attribute.String(ProcessOutcomeKey, outcome),
		attribute.Int(ProcessExitCodeKey, exitCode),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
