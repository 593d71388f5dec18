package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TRANSCODER_ROOT", t.TempDir())

	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, []string{"h264"}, cfg.Codecs)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, 5, cfg.Verify.Attempts)
	assert.Equal(t, 10*time.Second, cfg.Segment.Cooldown)
	assert.Equal(t, []int{2160, 1440, 1080, 720, 480, 360}, cfg.Defaults.Qualities)
	assert.True(t, filepath.IsAbs(cfg.Root))

	codecs, err := cfg.ParsedCodecs()
	require.NoError(t, err)
	assert.Equal(t, []model.Codec{model.CodecH264}, codecs)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
codecs: [h264, vp9]
root: `+root+`
queue:
  prefix: media
  block: 2s
segment:
  seconds: 60
  maxAttempts: 3
defaults:
  qualities: [1080, 720]
  settings:
    - quality: 1080
      crf: 20
      maxrate: 8000
      bufsize: 16000
  videoVp9: -c:v libvpx-vp9 -b:v 0
`)

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"h264", "vp9"}, cfg.Codecs)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "media", cfg.Queue.Prefix)
	assert.Equal(t, 2*time.Second, cfg.Queue.Block)
	assert.Equal(t, "localhost:6379", cfg.Queue.Addr, "untouched nested fields keep their default")
	assert.Equal(t, 60.0, cfg.Segment.Seconds)
	assert.Equal(t, 3, cfg.Segment.MaxAttempts)
	assert.Equal(t, []int{1080, 720}, cfg.Defaults.Qualities)
	require.Len(t, cfg.Defaults.Settings, 1)
	assert.Equal(t, 8000, cfg.Defaults.Settings[0].MaxRate)
	assert.Equal(t, "-c:v libx264 -preset veryslow -crf 18", cfg.Defaults.VideoH264)

	s := cfg.Defaults.StoreSettings()
	assert.Equal(t, "-c:v libvpx-vp9 -b:v 0", s.VideoVP9Params)
	assert.Equal(t, []int{1080, 720}, s.QualityList)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "codecs: [vp9]\nroot: "+t.TempDir()+"\n")
	t.Setenv("TRANSCODER_CODECS", "av1, h265")
	t.Setenv("TRANSCODER_REDIS_ADDR", "redis:6380")
	t.Setenv("TRANSCODER_SEGMENT_SECONDS", "30")
	t.Setenv("TRANSCODER_THUMBNAILS", "no")
	t.Setenv("TRANSCODER_FALLBACK_QUALITIES", "480,360")
	t.Setenv("TRANSCODER_REDIS_DB", "not-a-number")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"av1", "h265"}, cfg.Codecs)
	assert.Equal(t, "redis:6380", cfg.Queue.Addr)
	assert.Equal(t, 30.0, cfg.Segment.Seconds)
	assert.False(t, cfg.Thumbnails)
	assert.Equal(t, []int{480, 360}, cfg.Fallback)
	assert.Equal(t, 0, cfg.Queue.DB, "invalid integers fall back")
	assert.Contains(t, l.ConsumedEnvKeys, "TRANSCODER_CODECS")
}

func TestLoad_StrictParsing(t *testing.T) {
	root := t.TempDir()

	_, err := NewLoader(writeConfig(t, "root: "+root+"\nbouquet: x\n"), "").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)

	_, err = NewLoader(writeConfig(t, "root: "+root+"\n---\ncodecs: [vp9]\n"), "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")

	jsonPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o600))
	_, err = NewLoader(jsonPath, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML supported")

	t.Setenv("TRANSCODER_ROOT", root)
	cfg, err := NewLoader(writeConfig(t, ""), "").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"h264"}, cfg.Codecs, "an empty file keeps the defaults")
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "codecs: [mpeg2]\nroot: "+t.TempDir()+"\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
