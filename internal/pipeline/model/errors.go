// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
)

// Outcome classifies how a supervised process or a job step ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeRetryRequested
	OutcomeTimedOut
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeRetryRequested:
		return "retry_requested"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrCancelled      = errors.New("cancelled")
	ErrRetryRequested = errors.New("retry requested")
	ErrTimedOut       = errors.New("timed out")
)

// RunError is returned by the supervisor for every non-success outcome.
type RunError struct {
	Outcome  Outcome
	ExitCode int // -1 when the process never reported an exit status
	Message  string
}

func (e *RunError) Error() string {
	if e.Outcome == OutcomeFailed {
		return fmt.Sprintf("process exited with code %d: %s", e.ExitCode, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("process %s: %s", e.Outcome, e.Message)
	}
	return "process " + e.Outcome.String()
}

// Is maps control outcomes onto the package sentinels.
func (e *RunError) Is(target error) bool {
	switch target {
	case ErrCancelled:
		return e.Outcome == OutcomeCancelled
	case ErrRetryRequested:
		return e.Outcome == OutcomeRetryRequested
	case ErrTimedOut:
		return e.Outcome == OutcomeTimedOut
	}
	return false
}

// OutcomeOf classifies err. A nil error is a success.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var re *RunError
	if errors.As(err, &re) {
		return re.Outcome
	}
	switch {
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, ErrRetryRequested):
		return OutcomeRetryRequested
	case errors.Is(err, ErrTimedOut):
		return OutcomeTimedOut
	}
	return OutcomeFailed
}

// ExitCodeOf returns the process exit code carried by err, if any.
func ExitCodeOf(err error) (int, bool) {
	var re *RunError
	if errors.As(err, &re) && re.Outcome == OutcomeFailed && re.ExitCode >= 0 {
		return re.ExitCode, true
	}
	return 0, false
}

// JobError is a job-level failure carrying its taxonomy code.
type JobError struct {
	Code    ErrorCode
	Discard bool
	Err     error
}

// NewJobError wraps err with code. Non-retryable codes discard the job.
func NewJobError(code ErrorCode, err error) *JobError {
	return &JobError{Code: code, Discard: !code.Retryable(), Err: err}
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// AsJobError extracts a JobError from err.
func AsJobError(err error) (*JobError, bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}
