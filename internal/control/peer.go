// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/transcoderd/internal/log"
)

// DefaultPeerPoll is the interval between priority checks.
const DefaultPeerPoll = 10 * time.Second

// maxPeerErrors is how many failed checks are tolerated before the peer is
// treated as gone and the wait ends.
const maxPeerErrors = 30

// Peer polls the priority of a primary worker. A secondary worker waits on
// it before taking a job so the primary runs alone.
type Peer struct {
	url    string
	poll   time.Duration
	client *http.Client
}

// NewPeer returns a waiter for the primary at baseURL. A zero poll uses
// DefaultPeerPoll.
func NewPeer(baseURL string, poll time.Duration) *Peer {
	if poll <= 0 {
		poll = DefaultPeerPoll
	}
	return &Peer{
		url:  strings.TrimRight(baseURL, "/") + "/video/transcoder-priority",
		poll: poll,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Wait blocks while the primary reports a positive priority. It returns nil
// once the primary is idle or after too many failed checks, and ctx.Err()
// when ctx is done.
func (p *Peer) Wait(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "peer")
	waiting := false
	errCount := 0
	for {
		priority, err := p.check(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errCount++
			logger.Warn().Err(err).Str(log.FieldRemote, p.url).Int("errors", errCount).Msg("priority check failed")
			if errCount > maxPeerErrors {
				return nil
			}
		case priority > 0:
			if !waiting {
				logger.Info().Str(log.FieldEvent, "peer.waiting").Msg("another transcoder is in progress, waiting for completion")
				waiting = true
			}
		default:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.poll):
		}
	}
}

func (p *Peer) check(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("priority check: status %d", resp.StatusCode)
	}
	var body PriorityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("priority check: decode: %w", err)
	}
	return body.Priority, nil
}
