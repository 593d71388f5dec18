// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/transcoderd/internal/metrics"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/planner"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path is the configuration file, empty when running from ENV only.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseList(EnvPrefix+key, defaultVal)
}

func (l *Loader) envIntList(key string, defaultVal []int) []int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseIntList(EnvPrefix+key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if cfg.Root != "" {
		if abs, err := filepath.Abs(cfg.Root); err == nil {
			cfg.Root = abs
		}
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		metrics.IncConfigValidationError()
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	sup := supervisor.DefaultConfig()
	return Config{
		Codecs: []string{"h264"},
		Root:   "data/transcode",
		Log:    LogConfig{Level: "info"},
		Binaries: Binaries{
			FFmpeg:    "ffmpeg",
			FFprobe:   "ffprobe",
			MediaInfo: "mediainfo",
			MP4Box:    "MP4Box",
			Rclone:    "rclone",
		},
		Rclone: RcloneConfig{ConfigPath: "data/rclone.conf"},
		Queue: QueueConfig{
			Backend:  "redis",
			Addr:     "localhost:6379",
			Prefix:   "transcoder",
			Block:    5 * time.Second,
			OwnerTTL: 30 * time.Second,
		},
		Store: StoreConfig{Backend: "sqlite", Path: "data/transcoderd.db"},
		Segment: SegmentConfig{
			Cooldown: 10 * time.Second,
		},
		Supervisor: SupervisorConfig{
			CancelPoll:       sup.CancelPoll,
			ListCancelPoll:   sup.ListCancelPoll,
			RetryPoll:        sup.RetryPoll,
			StallPoll:        sup.StallPoll,
			KillTimeout:      sup.KillTimeout,
			ProgressLogEvery: sup.ProgressLogEvery,
		},
		Verify: VerifyConfig{Attempts: 5, Interval: 10 * time.Second},
		Producer: ProducerConfig{
			DomainsFile: "data/producer-domains.txt",
			BypassFile:  "data/bypass-producer-check",
		},
		Control: ControlConfig{
			Listen:    ":3001",
			RateLimit: 120,
			PeerPoll:  10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		Thumbnails: true,
		Defaults: Encoding{
			Qualities:         append([]int(nil), planner.DefaultLadder...),
			AudioAAC:          "-c:a libfdk_aac -vbr 5",
			AudioOpus:         "-c:a libopus -vbr on",
			AudioAACSurround:  "-c:a libfdk_aac -vbr 5",
			AudioOpusSurround: "-c:a libopus -vbr on",
			VideoH264:         "-c:v libx264 -preset veryslow -crf 18",
			VideoH265:         "-c:v libx265 -preset slow -crf 22",
			VideoVP9:          "-c:v libvpx-vp9 -crf 24 -b:v 0 -row-mt 1",
			VideoAV1:          "-c:v libaom-av1 -crf 24 -b:v 0 -cpu-used 4",
		},
	}
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv applies TRANSCODER_* overrides.
func (l *Loader) mergeEnv(cfg *Config) {
	cfg.Codecs = l.envList("CODECS", cfg.Codecs)
	cfg.Root = l.envString("ROOT", cfg.Root)
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)

	cfg.Binaries.FFmpeg = l.envString("FFMPEG", cfg.Binaries.FFmpeg)
	cfg.Binaries.FFprobe = l.envString("FFPROBE", cfg.Binaries.FFprobe)
	cfg.Binaries.MediaInfo = l.envString("MEDIAINFO", cfg.Binaries.MediaInfo)
	cfg.Binaries.MP4Box = l.envString("MP4BOX", cfg.Binaries.MP4Box)
	cfg.Binaries.Rclone = l.envString("RCLONE", cfg.Binaries.Rclone)
	cfg.Rclone.ConfigPath = l.envString("RCLONE_CONFIG", cfg.Rclone.ConfigPath)
	cfg.Rclone.Secret = l.envString("RCLONE_SECRET", cfg.Rclone.Secret)

	cfg.Queue.Backend = l.envString("QUEUE_BACKEND", cfg.Queue.Backend)
	cfg.Queue.Addr = l.envString("REDIS_ADDR", cfg.Queue.Addr)
	cfg.Queue.Password = l.envString("REDIS_PASSWORD", cfg.Queue.Password)
	cfg.Queue.DB = l.envInt("REDIS_DB", cfg.Queue.DB)
	cfg.Queue.Prefix = l.envString("QUEUE_PREFIX", cfg.Queue.Prefix)

	cfg.Store.Backend = l.envString("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)

	cfg.Segment.Seconds = l.envFloat("SEGMENT_SECONDS", cfg.Segment.Seconds)
	cfg.Segment.Cooldown = l.envDuration("SEGMENT_COOLDOWN", cfg.Segment.Cooldown)
	cfg.Segment.MaxAttempts = l.envInt("SEGMENT_MAX_ATTEMPTS", cfg.Segment.MaxAttempts)

	cfg.Supervisor.CancelPoll = l.envDuration("CANCEL_POLL", cfg.Supervisor.CancelPoll)
	cfg.Supervisor.StallPoll = l.envDuration("STALL_POLL", cfg.Supervisor.StallPoll)

	cfg.Producer.Domains = l.envList("PRODUCER_DOMAINS", cfg.Producer.Domains)

	cfg.Control.Listen = l.envString("CONTROL_LISTEN", cfg.Control.Listen)
	cfg.Control.PeerURL = l.envString("PEER_URL", cfg.Control.PeerURL)

	cfg.Thumbnails = l.envBool("THUMBNAILS", cfg.Thumbnails)
	cfg.Fallback = l.envIntList("FALLBACK_QUALITIES", cfg.Fallback)
	cfg.Defaults.Qualities = l.envIntList("QUALITIES", cfg.Defaults.Qualities)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString("OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
}
