// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// JobState is the orchestrator lifecycle of one job run.
type JobState string

const (
	StateIdle           JobState = "IDLE"
	StateConfigResolved JobState = "CONFIG_RESOLVED"
	StateSourceFetched  JobState = "SOURCE_FETCHED"
	StateSourceProbed   JobState = "SOURCE_PROBED"
	StateQualityPlanned JobState = "QUALITY_PLANNED"
	StateAudioDone      JobState = "AUDIO_DONE"
	StateVideoDone      JobState = "VIDEO_DONE"
	StateThumbnailsDone JobState = "THUMBNAILS_DONE"
	StateVerified       JobState = "VERIFIED"
	StateReported       JobState = "REPORTED"
	StateCancelled      JobState = "CANCELLED"
	StateFailed         JobState = "FAILED"
)

// IsTerminal returns true if the state is a final state.
func (s JobState) IsTerminal() bool {
	switch s {
	case StateReported, StateCancelled, StateFailed:
		return true
	}
	return false
}

// JobEvent drives JobState transitions.
type JobEvent string

const (
	EvResolve    JobEvent = "resolve"
	EvFetch      JobEvent = "fetch"
	EvProbe      JobEvent = "probe"
	EvPlan       JobEvent = "plan"
	EvAudio      JobEvent = "audio"
	EvVideo      JobEvent = "video"
	EvThumbnails JobEvent = "thumbnails"
	EvVerify     JobEvent = "verify"
	EvReport     JobEvent = "report"
	EvCancel     JobEvent = "cancel"
	EvFail       JobEvent = "fail"
)

// Event names an outbound result message.
type Event string

const (
	EventUpdateSource      Event = "update-source"
	EventAddStreamAudio    Event = "add-stream-audio"
	EventAddStreamVideo    Event = "add-stream-video"
	EventAddStreamManifest Event = "add-stream-manifest"
	EventFinished          Event = "finished-encoding"
	EventCancelled         Event = "cancelled-encoding"
	EventRetry             Event = "retry-encoding"
	EventFailed            Event = "failed-encoding"
)

// ErrorCode is the fixed failure taxonomy reported downstream.
// Keep these stable: the producer renders messages from them.
type ErrorCode string

const (
	CodeDownloadFailed    ErrorCode = "DOWNLOAD_FAILED"
	CodeProbeFailed       ErrorCode = "PROBE_FAILED"
	CodeNoVideoTrack      ErrorCode = "NO_VIDEO_TRACK"
	CodeNoAudioTrack      ErrorCode = "NO_AUDIO_TRACK"
	CodeStorageNotFound   ErrorCode = "STORAGE_NOT_FOUND"
	CodeEncodeAudioFailed ErrorCode = "ENCODE_AUDIO_FAILED"
	CodeEncodeVideoFailed ErrorCode = "ENCODE_VIDEO_FAILED"

	// CodeLowQualityVideo is kept for producers that still render it.
	// Sources below the lowest rung fall back to that rung, so it is never emitted.
	CodeLowQualityVideo ErrorCode = "LOW_QUALITY_VIDEO"
)

// Retryable reports whether a failure with this code may succeed on another attempt.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeProbeFailed, CodeNoVideoTrack, CodeNoAudioTrack, CodeLowQualityVideo:
		return false
	}
	return true
}
