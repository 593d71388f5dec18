// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/validate"
)

// Validate checks cfg and creates the transcode root when missing.
func Validate(cfg Config) error {
	v := validate.New()

	if len(cfg.Codecs) == 0 {
		v.AddError("Codecs", "at least one codec is required", cfg.Codecs)
	}
	seen := make(map[model.Codec]bool, len(cfg.Codecs))
	for _, name := range cfg.Codecs {
		codec, err := model.ParseCodec(name)
		if err != nil {
			v.AddError("Codecs", err.Error(), name)
			continue
		}
		if seen[codec] {
			v.AddError("Codecs", fmt.Sprintf("codec %s listed twice", codec), name)
		}
		seen[codec] = true
	}

	v.Directory("Root", cfg.Root, false)
	v.LogLevel("Log.Level", cfg.Log.Level)

	v.NotEmpty("Binaries.FFmpeg", cfg.Binaries.FFmpeg)
	v.NotEmpty("Binaries.FFprobe", cfg.Binaries.FFprobe)
	v.NotEmpty("Binaries.MediaInfo", cfg.Binaries.MediaInfo)
	v.NotEmpty("Binaries.MP4Box", cfg.Binaries.MP4Box)
	v.NotEmpty("Binaries.Rclone", cfg.Binaries.Rclone)
	v.NotEmpty("Rclone.ConfigPath", cfg.Rclone.ConfigPath)

	v.OneOf("Queue.Backend", cfg.Queue.Backend, []string{"redis", "memory"})
	if cfg.Queue.Backend == "redis" {
		v.NotEmpty("Queue.Addr", cfg.Queue.Addr)
		v.NonNegative("Queue.DB", cfg.Queue.DB)
	}
	v.OneOf("Store.Backend", cfg.Store.Backend, []string{"memory", "sqlite", "badger"})
	if cfg.Store.Backend != "memory" {
		v.NotEmpty("Store.Path", cfg.Store.Path)
	}

	v.NonNegativeFloat("Segment.Seconds", cfg.Segment.Seconds)
	v.NonNegative("Segment.MaxAttempts", cfg.Segment.MaxAttempts)
	v.Range("Verify.Attempts", cfg.Verify.Attempts, 1, 20)
	v.PositiveDuration("Verify.Interval", cfg.Verify.Interval)

	if cfg.Control.PeerURL != "" {
		v.URL("Control.PeerURL", cfg.Control.PeerURL, []string{"http", "https"})
	}
	v.NonNegative("Control.RateLimit", cfg.Control.RateLimit)
	if cfg.Control.PeerURL != "" {
		v.PositiveDuration("Control.PeerPoll", cfg.Control.PeerPoll)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate)
	}

	v.Qualities("Defaults.Qualities", cfg.Defaults.Qualities)
	v.Qualities("FallbackQualities", cfg.Fallback)
	for _, s := range cfg.Defaults.Settings {
		if s.Quality <= 0 {
			v.AddError("Defaults.Settings", "quality must be positive", s.Quality)
		}
	}
	return v.Err()
}
