// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// Memory is an in-process transport for single-node runs and tests. It is
// not durable: queued jobs and results are lost on exit.
type Memory struct {
	mu      sync.Mutex
	jobs    map[model.Codec][]string
	wake    chan struct{}
	results []model.Result
	subs    []chan CancelRequest
	closed  bool
	valid   *Validator
}

// NewMemory returns an empty transport.
func NewMemory() *Memory {
	return &Memory{
		jobs:  make(map[model.Codec][]string),
		wake:  make(chan struct{}),
		valid: NewValidator(),
	}
}

// Push enqueues job on the queue of its codec.
func (m *Memory) Push(_ context.Context, job *model.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return m.push(job.Data.Codec, string(payload))
}

func (m *Memory) push(codec model.Codec, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.jobs[codec] = append(m.jobs[codec], raw)
	close(m.wake)
	m.wake = make(chan struct{})
	return nil
}

// Len returns the number of queued jobs of codec.
func (m *Memory) Len(codec model.Codec) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs[codec])
}

// Next blocks until a valid job of codec is available. Invalid payloads
// are dropped.
func (m *Memory) Next(ctx context.Context, codec model.Codec) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if q := m.jobs[codec]; len(q) > 0 {
			raw := q[0]
			m.jobs[codec] = q[1:]
			m.mu.Unlock()

			job, err := m.valid.DecodeJob([]byte(raw))
			if err != nil {
				logger := log.WithComponent("queue")
				logger.Warn().Err(err).Str(log.FieldCodec, codec.String()).Msg("discarding invalid job payload")
				continue
			}
			job.AttemptsMade++
			return &Delivery{Job: job, Codec: codec, raw: raw}, nil
		}
		wake := m.wake
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Ack settles a delivery.
func (m *Memory) Ack(context.Context, *Delivery) error { return nil }

// Retry requeues the job with this attempt counted.
func (m *Memory) Retry(_ context.Context, d *Delivery) error {
	payload, err := json.Marshal(d.Job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", d.Job.ID, err)
	}
	return m.push(d.Codec, string(payload))
}

// Release requeues the job unchanged.
func (m *Memory) Release(_ context.Context, d *Delivery) error {
	return m.push(d.Codec, d.raw)
}

// Publish records a result message.
func (m *Memory) Publish(_ context.Context, res model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.results = append(m.results, res)
	return nil
}

// Results returns a copy of every published result.
func (m *Memory) Results() []model.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Result(nil), m.results...)
}

// Cancel delivers req to every consumer. It fails when a consumer does not
// take the request before ctx is done.
func (m *Memory) Cancel(ctx context.Context, req CancelRequest) error {
	m.mu.Lock()
	subs := append([]chan CancelRequest(nil), m.subs...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- req:
		case <-ctx.Done():
			return fmt.Errorf("publish cancel request: %w", ctx.Err())
		}
	}
	return nil
}

// ConsumeCancels feeds cancellation requests into c until ctx is done.
func (m *Memory) ConsumeCancels(ctx context.Context, c Canceller) error {
	ch := make(chan CancelRequest, 64)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	defer m.unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-ch:
			for _, id := range req.JobIDs() {
				c.Cancel(id)
			}
		}
	}
}

func (m *Memory) unsubscribe(ch chan CancelRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.subs[:0]
	for _, s := range m.subs {
		if s != ch {
			out = append(out, s)
		}
	}
	m.subs = out
}

// Subscribers returns the number of active cancel consumers.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close wakes blocked consumers with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.wake)
	}
	return nil
}
