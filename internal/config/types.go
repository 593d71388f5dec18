// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/store"
)

// Config is the complete worker configuration.
type Config struct {
	Version string `yaml:"-"`

	// Codecs lists the codec queues this worker consumes, one slot each.
	Codecs []string `yaml:"codecs"`
	// Root holds one working directory per job.
	Root string `yaml:"root"`

	Log        LogConfig        `yaml:"log"`
	Binaries   Binaries         `yaml:"binaries"`
	Rclone     RcloneConfig     `yaml:"rclone"`
	Queue      QueueConfig      `yaml:"queue"`
	Store      StoreConfig      `yaml:"store"`
	Segment    SegmentConfig    `yaml:"segment"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Verify     VerifyConfig     `yaml:"verify"`
	Producer   ProducerConfig   `yaml:"producer"`
	Control    ControlConfig    `yaml:"control"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Thumbnails enables sprite sheet generation.
	Thumbnails bool `yaml:"thumbnails"`
	// Fallback is planned when the source is below every ladder rung.
	Fallback []int `yaml:"fallbackQualities"`
	// Defaults apply where the stored settings record is empty.
	Defaults Encoding `yaml:"defaults"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Binaries are the external tools, by name on PATH or absolute path.
type Binaries struct {
	FFmpeg    string `yaml:"ffmpeg"`
	FFprobe   string `yaml:"ffprobe"`
	MediaInfo string `yaml:"mediainfo"`
	MP4Box    string `yaml:"mp4box"`
	Rclone    string `yaml:"rclone"`
}

// RcloneConfig locates the generated rclone configuration.
type RcloneConfig struct {
	ConfigPath string `yaml:"configPath"`
	// Secret decrypts stored credentials. Empty means they are stored plain.
	Secret string `yaml:"secret"`
}

// QueueConfig selects the job transport.
type QueueConfig struct {
	Backend  string        `yaml:"backend"` // redis or memory
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	Block    time.Duration `yaml:"block"`
	OwnerTTL time.Duration `yaml:"ownerTtl"`
}

// StoreConfig selects the metadata store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite or badger
	Path    string `yaml:"path"`
}

// SegmentConfig controls split encoding.
type SegmentConfig struct {
	Seconds     float64       `yaml:"seconds"`
	Cooldown    time.Duration `yaml:"cooldown"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// SupervisorConfig is the subprocess polling cadence.
type SupervisorConfig struct {
	CancelPoll       time.Duration `yaml:"cancelPoll"`
	ListCancelPoll   time.Duration `yaml:"listCancelPoll"`
	RetryPoll        time.Duration `yaml:"retryPoll"`
	StallPoll        time.Duration `yaml:"stallPoll"`
	KillTimeout      time.Duration `yaml:"killTimeout"`
	ProgressLogEvery time.Duration `yaml:"progressLogEvery"`
}

// VerifyConfig bounds the upload verification loop.
type VerifyConfig struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

// ProducerConfig restricts which producers are pinged before reporting.
type ProducerConfig struct {
	Domains     []string `yaml:"domains"`
	DomainsFile string   `yaml:"domainsFile"`
	BypassFile  string   `yaml:"bypassFile"`
}

// ControlConfig configures the HTTP control surface.
type ControlConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int `yaml:"rateLimit"`
	// PeerURL is the control surface of the primary worker this one yields to.
	PeerURL  string        `yaml:"peerUrl"`
	PeerPoll time.Duration `yaml:"peerPoll"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc or http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Encoding are the default encoder parameters.
type Encoding struct {
	Qualities         []int                   `yaml:"qualities"`
	Settings          []model.EncodingSetting `yaml:"settings"`
	AudioAAC          string                  `yaml:"audioAac"`
	AudioOpus         string                  `yaml:"audioOpus"`
	AudioAACSurround  string                  `yaml:"audioAacSurround"`
	AudioOpusSurround string                  `yaml:"audioOpusSurround"`
	VideoH264         string                  `yaml:"videoH264"`
	VideoH265         string                  `yaml:"videoH265"`
	VideoVP9          string                  `yaml:"videoVp9"`
	VideoAV1          string                  `yaml:"videoAv1"`
}

// StoreSettings maps the defaults onto the stored settings shape.
func (e Encoding) StoreSettings() store.Settings {
	return store.Settings{
		QualityList:             append([]int(nil), e.Qualities...),
		EncodingSettings:        append([]model.EncodingSetting(nil), e.Settings...),
		AudioParams:             e.AudioAAC,
		AudioSpeedParams:        e.AudioOpus,
		AudioSurroundParams:     e.AudioAACSurround,
		AudioSurroundOpusParams: e.AudioOpusSurround,
		VideoH264Params:         e.VideoH264,
		VideoH265Params:         e.VideoH265,
		VideoVP9Params:          e.VideoVP9,
		VideoAV1Params:          e.VideoAV1,
	}
}

// ParsedCodecs resolves Codecs. Validate guarantees they parse.
func (c Config) ParsedCodecs() ([]model.Codec, error) {
	out := make([]model.Codec, 0, len(c.Codecs))
	for _, name := range c.Codecs {
		codec, err := model.ParseCodec(name)
		if err != nil {
			return nil, err
		}
		out = append(out, codec)
	}
	return out, nil
}
