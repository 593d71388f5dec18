// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor runs external encode, package, upload and listing tools
// and enforces cooperative cancellation, retry-on-demand and stall timeouts
// while they run.
package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/metrics"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/procgroup"
	"github.com/ManuGH/transcoderd/internal/telemetry"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const tracerName = "transcoderd.supervisor"

// Kind selects how a process is observed and how it is asked to stop.
type Kind int

const (
	// KindEncode is an encoder reporting `-progress pipe:1` on stdout; it is
	// stopped by writing a quit keystroke to stdin.
	KindEncode Kind = iota
	// KindPackage is a packager without machine-readable progress; SIGINT stops it.
	KindPackage
	// KindUpload is a remote-copy tool logging JSON stats on stderr; SIGINT stops it.
	KindUpload
	// KindList is a short metadata listing whose stdout is captured.
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindEncode:
		return "encode"
	case KindPackage:
		return "package"
	case KindUpload:
		return "upload"
	case KindList:
		return "list"
	}
	return "unknown"
}

func (k Kind) tracksProgress() bool {
	return k == KindEncode || k == KindUpload
}

// Signals is the subset of the job registry the supervisor polls.
type Signals interface {
	TakeCancel(jobID string) bool
	TakeRetry() bool
}

// Config holds the polling cadence.
type Config struct {
	CancelPoll       time.Duration
	ListCancelPoll   time.Duration
	RetryPoll        time.Duration
	StallPoll        time.Duration
	KillTimeout      time.Duration
	ProgressLogEvery time.Duration
}

// DefaultConfig returns the production polling cadence.
func DefaultConfig() Config {
	return Config{
		CancelPoll:       5 * time.Second,
		ListCancelPoll:   500 * time.Millisecond,
		RetryPoll:        5 * time.Second,
		StallPoll:        10 * time.Minute,
		KillTimeout:      10 * time.Second,
		ProgressLogEvery: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CancelPoll <= 0 {
		c.CancelPoll = d.CancelPoll
	}
	if c.ListCancelPoll <= 0 {
		c.ListCancelPoll = d.ListCancelPoll
	}
	if c.RetryPoll <= 0 {
		c.RetryPoll = d.RetryPoll
	}
	if c.StallPoll <= 0 {
		c.StallPoll = d.StallPoll
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = d.KillTimeout
	}
	if c.ProgressLogEvery <= 0 {
		c.ProgressLogEvery = d.ProgressLogEvery
	}
	return c
}

// Invocation describes one process run.
type Invocation struct {
	Kind       Kind
	Bin        string
	Args       []string
	Dir        string
	JobID      string
	Duration   float64 // expected output duration in seconds, for percentages
	AllowRetry bool    // poll the retry-requested flag
	OnProgress func(model.ProgressSnapshot)
}

// Result is what the supervisor observed about a finished process.
type Result struct {
	Outcome  model.Outcome
	ExitCode int
	Output   []byte // captured stdout of KindList runs
	Elapsed  time.Duration
	Progress model.ProgressSnapshot
}

// Runner is implemented by *Supervisor and by test doubles.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// Supervisor runs processes one at a time per caller. It is safe for
// concurrent use by several codec slots.
type Supervisor struct {
	cfg     Config
	signals Signals
}

// New returns a Supervisor polling signals at the cadence of cfg.
// signals may be nil, which disables cancel and retry polling.
func New(cfg Config, signals Signals) *Supervisor {
	return &Supervisor{cfg: cfg.withDefaults(), signals: signals}
}

// Run executes inv and blocks until the process exits. A nil error means
// the process exited with status zero and no control signal was honored;
// otherwise the error is a *model.RunError, or the context error when ctx
// ended first.
func (s *Supervisor) Run(ctx context.Context, inv Invocation) (res Result, err error) {
	tool := filepath.Base(inv.Bin)
	logger := log.WithContext(ctx, log.WithComponent("supervisor")).With().
		Str(log.FieldTool, tool).
		Str("kind", inv.Kind.String()).
		Logger()

	ctx, span := telemetry.StartSpan(ctx, tracerName, "process."+inv.Kind.String())
	res = Result{ExitCode: -1}
	defer func() {
		span.SetAttributes(telemetry.ProcessAttributes(tool, res.Outcome.String(), res.ExitCode)...)
		telemetry.EndSpan(span, err)
	}()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	cmd := exec.Command(inv.Bin, inv.Args...) // #nosec G204 -- argv is built by this module, no shell involved
	cmd.Dir = inv.Dir
	procgroup.Set(cmd)

	var stdin io.WriteCloser
	if inv.Kind == KindEncode {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return res, fmt.Errorf("%s stdin: %w", tool, err)
		}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, fmt.Errorf("%s stdout: %w", tool, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return res, fmt.Errorf("%s stderr: %w", tool, err)
	}

	ring := NewLineRing(64)
	tr := newTracker(inv.Duration)
	limiter := rate.NewLimiter(rate.Every(s.cfg.ProgressLogEvery), 1)
	publish := func(snap model.ProgressSnapshot) {
		if inv.OnProgress != nil {
			inv.OnProgress(snap)
		}
		if limiter.Allow() {
			logger.Info().
				Int(log.FieldPercent, snap.Percent).
				Str("speed", snap.Speed).
				Int64("out_time_us", snap.OutTimeUS).
				Msg("progress")
		}
	}

	logger.Debug().Strs("args", inv.Args).Msg("starting process")
	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.ProcessStartsTotal.WithLabelValues(tool).Inc()
		res.Outcome = model.OutcomeFailed
		metrics.ProcessExitsTotal.WithLabelValues(tool, res.Outcome.String()).Inc()
		return res, &model.RunError{Outcome: model.OutcomeFailed, ExitCode: -1, Message: err.Error()}
	}
	metrics.ProcessStartsTotal.WithLabelValues(tool).Inc()

	var captured bytes.Buffer
	var ioWg sync.WaitGroup
	ioWg.Add(2)
	go func() {
		defer ioWg.Done()
		if inv.Kind == KindList {
			_, _ = io.Copy(&captured, stdout)
			return
		}
		scanLines(stdout, func(line string) {
			if inv.Kind == KindEncode {
				if snap, ok := tr.parseFFmpegLine(line); ok {
					publish(snap)
				}
				return
			}
			ring.Add(line)
			logger.Debug().Str("stream", "stdout").Msg(line)
		})
	}()
	go func() {
		defer ioWg.Done()
		scanLines(stderr, func(line string) {
			ring.Add(line)
			if inv.Kind == KindUpload {
				entry, snap, ok := tr.parseRcloneLine(line)
				if ok {
					publish(snap)
					return
				}
				if entry.Msg != "" {
					logRemoteLine(logger, entry)
					return
				}
			}
			logger.Debug().Str("stream", "stderr").Msg(line)
		})
	}()

	// Pipes must be drained before Wait closes them.
	waitCh := make(chan error, 1)
	go func() {
		ioWg.Wait()
		waitCh <- cmd.Wait()
	}()

	requested, waitErr, ctxErr := s.watch(ctx, cmd, stdin, inv, tr, waitCh, logger)

	res.Elapsed = time.Since(start)
	res.Progress = tr.snapshot()
	res.Output = captured.Bytes()
	res.ExitCode = exitCode(waitErr)
	metrics.ProcessDuration.WithLabelValues(tool).Observe(res.Elapsed.Seconds())

	if ctxErr != nil {
		res.Outcome = model.OutcomeCancelled
		metrics.ProcessExitsTotal.WithLabelValues(tool, "interrupted").Inc()
		logger.Warn().Err(ctxErr).Msg("process interrupted by shutdown")
		return res, fmt.Errorf("%s interrupted: %w", tool, ctxErr)
	}

	switch {
	case requested != model.OutcomeSuccess:
		res.Outcome = requested
	case waitErr == nil:
		res.Outcome = model.OutcomeSuccess
	default:
		res.Outcome = model.OutcomeFailed
	}
	metrics.ProcessExitsTotal.WithLabelValues(tool, res.Outcome.String()).Inc()

	if res.Outcome == model.OutcomeSuccess {
		logger.Debug().Dur("elapsed", res.Elapsed).Msg("process finished")
		return res, nil
	}

	runErr := &model.RunError{Outcome: res.Outcome, ExitCode: res.ExitCode}
	if res.Outcome == model.OutcomeFailed {
		runErr.Message = ring.Tail(3)
		logger.Error().
			Int(log.FieldExitCode, res.ExitCode).
			Strs("stderr", ring.LastN(20)).
			Msg("process failed")
	} else {
		logger.Info().
			Str(log.FieldOutcome, res.Outcome.String()).
			Int(log.FieldExitCode, res.ExitCode).
			Msg("process stopped on request")
	}
	return res, runErr
}

// watch runs the cancel, retry and stall pollers until the process exits.
func (s *Supervisor) watch(
	ctx context.Context,
	cmd *exec.Cmd,
	stdin io.WriteCloser,
	inv Invocation,
	tr *tracker,
	waitCh <-chan error,
	logger zerolog.Logger,
) (requested model.Outcome, waitErr error, ctxErr error) {
	var cancelC, retryC, stallC, killC <-chan time.Time

	if s.signals != nil && inv.JobID != "" {
		every := s.cfg.CancelPoll
		if inv.Kind == KindList {
			every = s.cfg.ListCancelPoll
		}
		t := time.NewTicker(every)
		defer t.Stop()
		cancelC = t.C
	}
	if s.signals != nil && inv.AllowRetry {
		t := time.NewTicker(s.cfg.RetryPoll)
		defer t.Stop()
		retryC = t.C
	}
	if inv.Kind.tracksProgress() {
		t := time.NewTicker(s.cfg.StallPoll)
		defer t.Stop()
		stallC = t.C
	}

	lastVersion := tr.version()
	unchanged := 0
	requested = model.OutcomeSuccess

	forceKill := func(outcome model.Outcome) {
		requested = outcome
		cancelC, retryC, stallC = nil, nil, nil
		if err := procgroup.Kill(cmd, syscall.SIGKILL); err != nil {
			logger.Warn().Err(err).Msg("kill process group")
		}
	}

	for {
		select {
		case waitErr = <-waitCh:
			return requested, waitErr, nil

		case <-ctx.Done():
			waitErr = procgroup.Terminate(cmd, waitCh, s.cfg.KillTimeout)
			return requested, waitErr, ctx.Err()

		case <-cancelC:
			if !s.signals.TakeCancel(inv.JobID) {
				continue
			}
			logger.Info().Msg("cancellation requested, stopping process")
			requested = model.OutcomeCancelled
			cancelC, retryC, stallC = nil, nil, nil
			if err := stopGracefully(cmd, stdin, inv.Kind); err != nil {
				logger.Warn().Err(err).Msg("graceful stop failed")
			}
			killC = time.After(s.cfg.KillTimeout)

		case <-retryC:
			if !s.signals.TakeRetry() {
				continue
			}
			logger.Info().Msg("retry requested, killing process")
			forceKill(model.OutcomeRetryRequested)

		case <-stallC:
			v := tr.version()
			if v != lastVersion {
				lastVersion = v
				unchanged = 0
				continue
			}
			unchanged++
			if unchanged < 2 {
				continue
			}
			logger.Warn().Dur("poll", s.cfg.StallPoll).Msg("no progress on two consecutive checks, killing process")
			forceKill(model.OutcomeTimedOut)

		case <-killC:
			killC = nil
			logger.Warn().Dur("timeout", s.cfg.KillTimeout).Msg("graceful stop timed out, killing process group")
			_ = procgroup.Kill(cmd, syscall.SIGKILL)
		}
	}
}

// stopGracefully asks an encoder to finish by sending "q"; every other tool
// gets an interrupt.
func stopGracefully(cmd *exec.Cmd, stdin io.WriteCloser, kind Kind) error {
	if kind == KindEncode && stdin != nil {
		_, err := io.WriteString(stdin, "q")
		closeErr := stdin.Close()
		if err == nil {
			return closeErr
		}
	}
	return procgroup.Interrupt(cmd)
}

func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	// Keep draining so an oversized line cannot block the child.
	_, _ = io.Copy(io.Discard, r)
}

func logRemoteLine(logger zerolog.Logger, entry rcloneLogLine) {
	switch entry.Level {
	case "error", "critical":
		logger.Warn().Str("stream", "stderr").Msg(entry.Msg)
	default:
		logger.Debug().Str("stream", "stderr").Msg(entry.Msg)
	}
}

// exitCode maps a Wait error onto a shell-style exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}
