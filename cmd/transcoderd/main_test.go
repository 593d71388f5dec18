package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/config"
	"github.com/ManuGH/transcoderd/internal/pipeline/planner"
	"github.com/ManuGH/transcoderd/internal/queue"
	"github.com/ManuGH/transcoderd/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestConfigDefaultsCommand(t *testing.T) {
	out, err := execute(t, "config", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "codecs:")
	assert.Contains(t, out, "- h264")
}

func TestConfigValidateCommand(t *testing.T) {
	t.Setenv("TRANSCODER_ROOT", t.TempDir())

	out, err := execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration OK (environment and defaults)")

	t.Setenv("TRANSCODER_CODECS", "h264,mpeg2")
	_, err = execute(t, "config", "validate")
	assert.Error(t, err)
}

func TestEnvFileIsApplied(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRANSCODER_ROOT="+dir+"\nTRANSCODER_CODECS=vp9\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("TRANSCODER_ROOT")
		_ = os.Unsetenv("TRANSCODER_CODECS")
	})

	out, err := execute(t, "--env-file", envFile, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "codecs: [vp9]")
}

func TestPlanCommand(t *testing.T) {
	t.Setenv("TRANSCODER_ROOT", t.TempDir())

	out, err := execute(t, "plan", "--height", "1080", "--produced", "720")
	require.NoError(t, err)

	var plan planner.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, []int{1080, 720, 480, 360}, plan.Candidates)
	assert.Equal(t, []int{1080, 480, 360}, plan.Qualities)

	_, err = execute(t, "plan", "--height", "0")
	assert.ErrorIs(t, err, planner.ErrUnknownHeight)
}

func TestJobCommandsRequireRedis(t *testing.T) {
	t.Setenv("TRANSCODER_ROOT", t.TempDir())
	t.Setenv("TRANSCODER_QUEUE_BACKEND", "memory")

	_, err := execute(t, "job", "cancel", "j1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Root = t.TempDir()
	cfg.Queue.Backend = "memory"
	cfg.Store.Backend = "memory"
	cfg.Control.Listen = "127.0.0.1:0"
	cfg.Thumbnails = false
	return cfg
}

func TestDaemon_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d, err := newDaemon(ctx, config.NewHolder(testConfig(t), config.NewLoader("", "test")))
	require.NoError(t, err)
	defer d.close()

	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemon_StopsWhenConsumerClosed(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Codecs = []string{"h264", "av1"}
	d, err := newDaemon(ctx, config.NewHolder(cfg, config.NewLoader("", "test")))
	require.NoError(t, err)
	defer d.close()
	require.Len(t, d.slots, 2)

	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()
	d.gate.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after close")
	}
}

func TestDaemon_Seed(t *testing.T) {
	d, err := newDaemon(context.Background(), config.NewHolder(testConfig(t), config.NewLoader("", "test")))
	require.NoError(t, err)
	defer d.close()

	require.Error(t, d.seed(context.Background(), []byte(`{"id":""}`)))

	payload := `{"id":"j1","attempts":3,"data":{"_id":"src-1","storage":"st","filename":"movie.mkv","path":"uploads","media":"m1","codec":1}}`
	require.NoError(t, d.seed(context.Background(), []byte(payload)))
	assert.Equal(t, 1, d.queue.(*queue.Memory).Len(1))
}
