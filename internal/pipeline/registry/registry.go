// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry holds the process-wide control signals shared by the
// cancel consumer, the control surface and running jobs: the set of job ids
// with a pending cancellation, the retry-requested flag and the transcoder
// priority value.
package registry

import (
	"sync"
	"sync/atomic"
)

// Registry is safe for concurrent use. The zero value is not usable; call New.
type Registry struct {
	mu        sync.Mutex
	cancelled map[string]struct{}

	retry    atomic.Bool
	priority atomic.Int32
	held     atomic.Int32
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{cancelled: make(map[string]struct{})}
}

// Cancel records a cancellation request for jobID.
func (r *Registry) Cancel(jobID string) {
	if jobID == "" {
		return
	}
	r.mu.Lock()
	r.cancelled[jobID] = struct{}{}
	r.mu.Unlock()
}

// IsCancelled reports whether jobID has a pending cancellation.
func (r *Registry) IsCancelled(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancelled[jobID]
	return ok
}

// TakeCancel removes a pending cancellation for jobID and reports whether
// there was one. Exactly one caller observes true per Cancel.
func (r *Registry) TakeCancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cancelled[jobID]; !ok {
		return false
	}
	delete(r.cancelled, jobID)
	return true
}

// Pending returns the number of cancellations not yet honored.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancelled)
}

// RequestRetry raises the retry-requested flag.
func (r *Registry) RequestRetry() {
	r.retry.Store(true)
}

// TakeRetry clears the retry-requested flag and reports whether it was set.
func (r *Registry) TakeRetry() bool {
	return r.retry.CompareAndSwap(true, false)
}

// RetryRequested reports the flag without clearing it.
func (r *Registry) RetryRequested() bool {
	return r.retry.Load()
}

// SetPriority overrides the transcoder priority. Zero removes the override.
func (r *Registry) SetPriority(p int) {
	r.priority.Store(int32(p))
}

// Hold marks a job in progress until release is called. Slots of different
// codecs hold concurrently; the priority stays raised until the last release.
func (r *Registry) Hold() (release func()) {
	r.held.Add(1)
	var once sync.Once
	return func() { once.Do(func() { r.held.Add(-1) }) }
}

// Priority returns the override when set, else 1 while any job is held.
func (r *Registry) Priority() int {
	if p := r.priority.Load(); p != 0 {
		return int(p)
	}
	if r.held.Load() > 0 {
		return 1
	}
	return 0
}
