// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm is a small strict state machine. The job lifecycle of the
// orchestrator is one instance of it.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("invalid transition")

// Transition is one edge. Guard may veto it; Action runs before the state
// changes and aborts the transition on error.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

// Machine applies events to a state. It is safe for concurrent use.
type Machine[S ~string, E ~string] struct {
	mu       sync.Mutex
	state    S
	edges    map[edge[S, E]]Transition[S, E]
	observer func(from, to S, event E)
}

// Option configures a Machine.
type Option[S ~string, E ~string] func(*Machine[S, E])

// WithObserver registers fn to run after every applied transition.
func WithObserver[S ~string, E ~string](fn func(from, to S, event E)) Option[S, E] {
	return func(m *Machine[S, E]) { m.observer = fn }
}

// New returns a machine in initial. Two transitions leaving the same state
// on the same event are rejected.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E], opts ...Option[S, E]) (*Machine[S, E], error) {
	edges := make(map[edge[S, E]]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := edge[S, E]{t.From, t.Event}
		if prev, dup := edges[k]; dup {
			return nil, fmt.Errorf("duplicate transition %s on %s: %s and %s", t.From, t.Event, prev.To, t.To)
		}
		edges[k] = t
	}
	m := &Machine[S, E]{state: initial, edges: edges}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether event is accepted in the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.edges[edge[S, E]{m.state, event}]
	return ok
}

func (m *Machine[S, E]) lookup(event E) (S, Transition[S, E], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.edges[edge[S, E]{m.state, event}]
	return m.state, t, ok
}

// Fire applies event and returns the new state. Guard and Action run
// without the lock held; if another event moved the machine meanwhile the
// transition is dropped.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	from, t, ok := m.lookup(event)
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, event)
	}
	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, t.To, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	if m.state != from {
		cur := m.state
		m.mu.Unlock()
		return cur, fmt.Errorf("state moved from %s to %s while applying %s", from, cur, event)
	}
	m.state = t.To
	obs := m.observer
	m.mu.Unlock()

	if obs != nil {
		obs(from, t.To, event)
	}
	return t.To, nil
}
