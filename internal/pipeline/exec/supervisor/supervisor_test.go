// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/pipeline/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func fastConfig() Config {
	return Config{
		CancelPoll:       20 * time.Millisecond,
		ListCancelPoll:   10 * time.Millisecond,
		RetryPoll:        20 * time.Millisecond,
		StallPoll:        time.Hour,
		KillTimeout:      500 * time.Millisecond,
		ProgressLogEvery: time.Hour,
	}
}

func TestRun_Success(t *testing.T) {
	s := New(fastConfig(), registry.New())
	res, err := s.Run(context.Background(), Invocation{Kind: KindPackage, Bin: "sh", Args: []string{"-c", "exit 0"}})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRun_ExitCodeFailure(t *testing.T) {
	s := New(fastConfig(), registry.New())
	res, err := s.Run(context.Background(), Invocation{
		Kind: KindPackage,
		Bin:  "sh",
		Args: []string{"-c", "echo 'Invalid data found' >&2; exit 3"},
	})
	require.Error(t, err)
	assert.Equal(t, model.OutcomeFailed, res.Outcome)

	code, ok := model.ExitCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, 3, code)

	var runErr *model.RunError
	require.True(t, errors.As(err, &runErr))
	assert.Contains(t, runErr.Message, "Invalid data found")
}

func TestRun_StartFailure(t *testing.T) {
	s := New(fastConfig(), nil)
	res, err := s.Run(context.Background(), Invocation{Kind: KindEncode, Bin: "/nonexistent/ffmpeg"})
	require.Error(t, err)
	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	_, ok := model.ExitCodeOf(err)
	assert.False(t, ok, "a process that never started carries no exit code")
}

func TestRun_CancelConverges(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := registry.New()
	s := New(fastConfig(), reg)

	go func() {
		time.Sleep(50 * time.Millisecond)
		reg.Cancel("job-1")
	}()

	start := time.Now()
	res, err := s.Run(context.Background(), Invocation{
		Kind:  KindPackage,
		Bin:   "sleep",
		Args:  []string{"10"},
		JobID: "job-1",
	})
	require.ErrorIs(t, err, model.ErrCancelled)
	assert.Equal(t, model.OutcomeCancelled, res.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, reg.IsCancelled("job-1"), "cancellation must be consumed")
	assert.False(t, reg.TakeCancel("job-1"))
}

func TestRun_CancelOtherJobIgnored(t *testing.T) {
	reg := registry.New()
	reg.Cancel("other")
	s := New(fastConfig(), reg)

	_, err := s.Run(context.Background(), Invocation{
		Kind:  KindPackage,
		Bin:   "sh",
		Args:  []string{"-c", "sleep 0.2"},
		JobID: "job-1",
	})
	require.NoError(t, err)
	assert.True(t, reg.IsCancelled("other"))
}

func TestRun_EncoderQuitKeystroke(t *testing.T) {
	reg := registry.New()
	reg.Cancel("job-q")
	s := New(fastConfig(), reg)

	// Exits cleanly once it reads the quit keystroke, like ffmpeg does.
	res, err := s.Run(context.Background(), Invocation{
		Kind:  KindEncode,
		Bin:   "sh",
		Args:  []string{"-c", "read key; [ \"$key\" = q ] && exit 0; exit 9"},
		JobID: "job-q",
	})
	require.ErrorIs(t, err, model.ErrCancelled)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRun_RetryRequested(t *testing.T) {
	reg := registry.New()
	s := New(fastConfig(), reg)

	go func() {
		time.Sleep(50 * time.Millisecond)
		reg.RequestRetry()
	}()

	res, err := s.Run(context.Background(), Invocation{
		Kind:       KindEncode,
		Bin:        "sleep",
		Args:       []string{"10"},
		JobID:      "job-r",
		AllowRetry: true,
	})
	require.ErrorIs(t, err, model.ErrRetryRequested)
	assert.Equal(t, model.OutcomeRetryRequested, res.Outcome)
	assert.False(t, reg.RetryRequested(), "retry flag must be cleared")
}

func TestRun_RetryIgnoredWhenNotAllowed(t *testing.T) {
	reg := registry.New()
	reg.RequestRetry()
	s := New(fastConfig(), reg)

	_, err := s.Run(context.Background(), Invocation{
		Kind: KindEncode,
		Bin:  "sh",
		Args: []string{"-c", "sleep 0.1"},
	})
	require.NoError(t, err)
	assert.True(t, reg.RetryRequested())
}

func TestRun_StallTimesOut(t *testing.T) {
	cfg := fastConfig()
	cfg.StallPoll = 30 * time.Millisecond
	s := New(cfg, registry.New())

	res, err := s.Run(context.Background(), Invocation{Kind: KindEncode, Bin: "sleep", Args: []string{"10"}})
	require.ErrorIs(t, err, model.ErrTimedOut)
	assert.Equal(t, model.OutcomeTimedOut, res.Outcome)
}

func TestRun_ProgressParsed(t *testing.T) {
	s := New(fastConfig(), nil)

	var mu sync.Mutex
	var percents []int
	script := `printf 'frame=10\nout_time_us=5000000\nspeed=2x\nprogress=continue\nframe=20\nout_time_us=10000000\nprogress=end\n'`
	res, err := s.Run(context.Background(), Invocation{
		Kind:     KindEncode,
		Bin:      "sh",
		Args:     []string{"-c", script},
		Duration: 10,
		OnProgress: func(p model.ProgressSnapshot) {
			mu.Lock()
			percents = append(percents, p.Percent)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, percents)
	assert.Equal(t, int64(20), res.Progress.Frame)
	assert.Equal(t, "end", res.Progress.Progress)
}

func TestRun_ListCapturesStdout(t *testing.T) {
	s := New(fastConfig(), registry.New())
	res, err := s.Run(context.Background(), Invocation{
		Kind: KindList,
		Bin:  "sh",
		Args: []string{"-c", `echo '[{"Path":"a/b.mp4"}]'`},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Path":"a/b.mp4"}]`, string(res.Output))
}

func TestRun_ContextCancelTerminates(t *testing.T) {
	s := New(fastConfig(), registry.New())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Run(ctx, Invocation{Kind: KindPackage, Bin: "sleep", Args: []string{"10"}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
