// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/queue"
)

// ErrGateClosed is returned by Gate.Wait once the gate is closed.
var ErrGateClosed = errors.New("consumer closed")

// Gate lets the control surface pause, resume and close job consumption.
// Pausing never interrupts a running job.
type Gate struct {
	mu      sync.Mutex
	paused  bool
	closed  bool
	changed chan struct{}
}

// NewGate returns an open, unpaused gate.
func NewGate() *Gate {
	return &Gate{changed: make(chan struct{})}
}

func (g *Gate) set(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
	close(g.changed)
	g.changed = make(chan struct{})
}

// Pause stops slots from taking new jobs.
func (g *Gate) Pause() { g.set(func() { g.paused = true }) }

// Resume lets slots take jobs again.
func (g *Gate) Resume() { g.set(func() { g.paused = false }) }

// Close stops consumption for good.
func (g *Gate) Close() { g.set(func() { g.closed = true }) }

// Paused reports whether consumption is paused.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Closed reports whether the gate was closed.
func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Wait blocks while the gate is paused. A done ctx wins over an open gate.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.mu.Lock()
		closed, paused, changed := g.closed, g.paused, g.changed
		g.mu.Unlock()
		if closed {
			return ErrGateClosed
		}
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// fetchContext returns a context that ends once the gate is paused or
// closed, so a blocking fetch does not outlast the switch.
func (g *Gate) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		for {
			g.mu.Lock()
			stop, changed := g.closed || g.paused, g.changed
			g.mu.Unlock()
			if stop {
				cancel()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
		}
	}()
	return ctx, cancel
}

// Source delivers the jobs of one codec queue.
type Source interface {
	Next(ctx context.Context, codec model.Codec) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Retry(ctx context.Context, d *queue.Delivery) error
	Release(ctx context.Context, d *queue.Delivery) error
}

// Processor runs a single job.
type Processor interface {
	Codec() model.Codec
	Process(ctx context.Context, job *model.Job) (Outcome, error)
}

// Waiter blocks until this worker may take a job.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Slot consumes one codec queue, one job at a time.
type Slot struct {
	Processor Processor
	Source    Source
	Gate      *Gate
	// Peer is consulted before every job; nil means no peer coordination.
	Peer Waiter
	// Backoff is the pause after a transport error or a busy job.
	Backoff time.Duration
}

// Run consumes jobs until ctx is done or the gate is closed.
func (s *Slot) Run(ctx context.Context) error {
	codec := s.Processor.Codec()
	logger := log.WithComponent("slot").With().Str(log.FieldCodec, codec.String()).Logger()
	gate := s.Gate
	if gate == nil {
		gate = NewGate()
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	logger.Info().Msg("slot started")
	defer logger.Info().Msg("slot stopped")
	for {
		if err := gate.Wait(ctx); err != nil {
			return stopErr(err)
		}
		if s.Peer != nil {
			if err := s.Peer.Wait(ctx); err != nil {
				return stopErr(err)
			}
		}
		fetchCtx, cancelFetch := gate.fetchContext(ctx)
		d, err := s.Source.Next(fetchCtx, codec)
		cancelFetch()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			if fetchCtx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Dur("retry_in", backoff).Msg("taking job failed")
			if !sleep(ctx, backoff) {
				return nil
			}
			continue
		}

		outcome, err := s.Processor.Process(ctx, d.Job)
		if serr := s.settle(ctx, d, outcome, err); serr != nil {
			logger.Error().Err(serr).Str(log.FieldJobID, d.Job.ID).Msg("settling job failed")
		}
		if ctx.Err() != nil {
			return nil
		}
		if outcome == OutcomeBusy && !sleep(ctx, backoff) {
			return nil
		}
	}
}

// settle acknowledges, retries or releases d. A job interrupted by shutdown
// goes back to the queue untouched.
func (s *Slot) settle(ctx context.Context, d *queue.Delivery, outcome Outcome, err error) error {
	interrupted := ctx.Err() != nil
	ctx = context.WithoutCancel(ctx)
	logger := log.WithComponent("slot").With().
		Str(log.FieldJobID, d.Job.ID).
		Str(log.FieldOutcome, outcome.String()).
		Int(log.FieldAttempt, d.Job.AttemptsMade).
		Logger()

	switch {
	case interrupted:
		logger.Info().Msg("job interrupted by shutdown, releasing")
		return s.Source.Release(ctx, d)
	case outcome == OutcomeBusy, outcome == OutcomeInterrupted:
		return s.Source.Release(ctx, d)
	case outcome == OutcomeFailed:
		je, ok := model.AsJobError(err)
		if !ok {
			logger.Error().Err(err).Msg("job could not start, releasing")
			return s.Source.Release(ctx, d)
		}
		if !je.Discard && !d.Job.LastAttempt() {
			logger.Warn().Err(err).Msg("job failed, requeueing")
			return s.Source.Retry(ctx, d)
		}
		logger.Error().Err(err).Msg("job failed")
		return s.Source.Ack(ctx, d)
	}
	return s.Source.Ack(ctx, d)
}

func stopErr(err error) error {
	if errors.Is(err, ErrGateClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
