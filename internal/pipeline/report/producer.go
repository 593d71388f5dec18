// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package report

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/resilience"
)

// ProducerCheck pings the producer before a result is published so results
// are not queued while the producer is down. Only hosts on the allow list
// are contacted.
type ProducerCheck struct {
	Client      *http.Client
	Domains     []string
	DomainsFile string // optional, one host per line
	BypassFile  string // when this file exists the check is skipped
	Retries     int
	Interval    time.Duration
	// OfflineFor is how long a producer that exhausted every retry is
	// reported offline without being pinged again.
	OfflineFor time.Duration

	once     sync.Once
	breakers *resilience.Group
}

// NewProducerCheck returns a check with the default retry policy.
func NewProducerCheck(domains []string, domainsFile, bypassFile string) *ProducerCheck {
	return &ProducerCheck{
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Domains:     domains,
		DomainsFile: domainsFile,
		BypassFile:  bypassFile,
		Retries:     25,
		Interval:    30 * time.Second,
		OfflineFor:  10 * time.Minute,
	}
}

// EnsureOnline returns true once a GET of rawURL succeeds. An empty URL
// means no producer is configured.
func (p *ProducerCheck) EnsureOnline(ctx context.Context, rawURL string) bool {
	if rawURL == "" {
		return true
	}
	logger := log.WithContext(ctx, log.WithComponent("producer"))
	if p.bypassed() {
		logger.Info().Msg("producer check bypassed")
		return true
	}
	if !p.allowed(rawURL) {
		logger.Warn().Str("url", rawURL).Msg("producer url not on allow list")
		return false
	}
	u, _ := url.Parse(rawURL)
	cb := p.breaker(u.Hostname())
	if !cb.Allow() {
		logger.Warn().Str("url", rawURL).Msg("producer recently offline, skipping check")
		return false
	}
	for attempt := 1; attempt <= p.Retries; attempt++ {
		err := p.ping(ctx, rawURL)
		if err == nil {
			cb.RecordSuccess()
			return true
		}
		if ctx.Err() != nil {
			cb.Abandon()
			return false
		}
		if attempt == p.Retries {
			break
		}
		logger.Warn().Err(err).Int(log.FieldAttempt, attempt).Dur("retry_in", p.Interval).Msg("producer offline")
		select {
		case <-ctx.Done():
			cb.Abandon()
			return false
		case <-time.After(p.Interval):
		}
		if p.bypassed() {
			cb.Abandon()
			logger.Info().Msg("producer check bypassed")
			return true
		}
	}
	cb.RecordFailure()
	return false
}

func (p *ProducerCheck) breaker(host string) *resilience.CircuitBreaker {
	p.once.Do(func() {
		p.breakers = resilience.NewGroup("producer", 1, p.OfflineFor)
	})
	return p.breakers.Get(host)
}

func (p *ProducerCheck) ping(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (p *ProducerCheck) bypassed() bool {
	if p.BypassFile == "" {
		return false
	}
	_, err := os.Stat(p.BypassFile)
	return err == nil
}

func (p *ProducerCheck) allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := u.Hostname()
	if slices.Contains(p.Domains, host) {
		return true
	}
	return slices.Contains(readLines(p.DomainsFile), host)
}

func readLines(path string) []string {
	if path == "" {
		return nil
	}
	f, err := os.Open(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
