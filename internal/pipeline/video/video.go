// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package video encodes the planned video renditions of one codec pass and
// uploads the stream manifest once they are done.
package video

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/transcoderd/internal/fsutil"
	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/metrics"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/manifest"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/pipeline/rendition"
	"github.com/rs/zerolog"
)

const mimeType = "video/mp4"

// ErrNoQualities is returned for an empty rendition plan.
var ErrNoQualities = errors.New("no qualities planned")

// Reporter is notified once per uploaded rendition and once for the manifest.
type Reporter interface {
	VideoAdded(ctx context.Context, job *model.Job, streamID, file string, codec model.Codec, quality int) error
	ManifestAdded(ctx context.Context, job *model.Job, streamID, file string, codec model.Codec) error
}

// Options control split encoding.
type Options struct {
	// SegmentSeconds enables split encoding when positive.
	SegmentSeconds float64
	// Cooldown is the pause before a failed segment is re-attempted.
	Cooldown time.Duration
	// MaxSegmentAttempts bounds re-attempts of one segment; zero is unlimited.
	MaxSegmentAttempts int
}

// DefaultCooldown is used when Options.Cooldown is unset.
const DefaultCooldown = 10 * time.Second

// Pipeline encodes and publishes video renditions.
type Pipeline struct {
	env  *rendition.Env
	rep  Reporter
	opts Options
}

// New returns a video pipeline.
func New(env *rendition.Env, rep Reporter, opts Options) *Pipeline {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	return &Pipeline{env: env, rep: rep, opts: opts}
}

// Request is one codec pass of a job.
type Request struct {
	Job       *model.Job
	Workspace rendition.Workspace
	// Input overrides the encoder input, e.g. with a streaming URL.
	Input     string
	Source    model.SourceInfo
	Codec     model.Codec
	Qualities []int
	Settings  []model.EncodingSetting
	Params    []string
	Manifest  *manifest.Builder
	Language  string
}

func (r Request) input() string {
	if r.Input != "" {
		return r.Input
	}
	return r.Workspace.Source
}

// Run encodes every planned quality in order, then saves and uploads the
// manifest. The first failing rendition stops the pass.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	if !req.Codec.Valid() {
		return fmt.Errorf("unsupported codec %d", int(req.Codec))
	}
	if len(req.Qualities) == 0 {
		return ErrNoQualities
	}
	for _, q := range req.Qualities {
		if err := p.rendition(ctx, req, q); err != nil {
			return err
		}
	}

	streamID, file, err := p.env.SaveManifest(ctx, req.Job, req.Workspace, req.Manifest, req.Codec)
	if err != nil {
		return err
	}
	metrics.RecordRendition("manifest", req.Codec.String(), 0)
	return p.rep.ManifestAdded(ctx, req.Job, streamID, file, req.Codec)
}

func (p *Pipeline) rendition(ctx context.Context, req Request, quality int) (err error) {
	job, ws := req.Job, req.Workspace
	logger := log.WithContext(ctx, log.WithComponent("video")).With().
		Str(log.FieldCodec, req.Codec.String()).
		Int(log.FieldQuality, quality).
		Logger()
	start := time.Now()

	streamID, err := p.env.StreamID()
	if err != nil {
		return err
	}
	logger = logger.With().Str(log.FieldStreamID, streamID).Logger()
	defer func() {
		if err == nil {
			return
		}
		logger.Warn().Err(err).Msg("removing unfinished stream")
		if perr := p.env.Discard(ctx, job, streamID); perr != nil {
			logger.Error().Err(perr).Msg("purge unfinished stream")
		}
	}()

	setting := model.SettingFor(quality, req.Settings, job.Data.AdvancedOptions.OverrideSettings)
	spec := ffmpeg.VideoSpec{
		Input:   req.input(),
		Dir:     ws.Dir,
		Base:    ws.Base,
		Codec:   req.Codec,
		Quality: quality,
		Params:  req.Params,
		Source:  req.Source,
		Setting: &setting,
	}
	if req.Codec == model.CodecH264 {
		spec.Tune = job.Data.AdvancedOptions.H264Tune
	}

	logger.Info().Bool("two_pass", req.Codec.TwoPass()).Msg("encoding video")
	if p.opts.SegmentSeconds > 0 {
		err = p.encodeSegmented(ctx, req, spec, logger)
	} else {
		err = p.runPasses(ctx, req, spec, false)
	}
	if err != nil {
		return fmt.Errorf("encode %dp: %w", quality, err)
	}

	name := fmt.Sprintf("%s_%d", ws.Base, quality)
	pk, err := p.env.Package(ctx, job, ws, name)
	if err != nil {
		return err
	}
	lang := req.Language
	if lang == "" {
		lang = pk.Info.Language
	}
	file := pk.FileName()
	if err := req.Manifest.AppendVideo(pk.Files(), manifest.VideoMeta{
		Width:     pk.Info.Width,
		Height:    pk.Info.Height,
		Format:    pk.Info.Codec,
		MimeType:  mimeType,
		FrameRate: pk.Info.FPS,
		Language:  lang,
		Codec:     req.Codec,
		URI:       rendition.URI(streamID, file),
	}); err != nil {
		return fmt.Errorf("manifest %s: %w", file, err)
	}
	if err := p.env.Upload(ctx, job, pk.Outputs.Media, streamID); err != nil {
		return err
	}
	if err := p.rep.VideoAdded(ctx, job, streamID, file, req.Codec, quality); err != nil {
		return err
	}
	metrics.RecordRendition("video", req.Codec.String(), time.Since(start).Seconds())
	logger.Info().Dur("elapsed", time.Since(start)).Msg("video rendition uploaded")
	return nil
}

// runPasses runs every pass of spec in order.
func (p *Pipeline) runPasses(ctx context.Context, req Request, spec ffmpeg.VideoSpec, allowRetry bool) error {
	duration := req.Source.Duration
	if spec.Segment != nil && spec.Segment.Duration > 0 {
		duration = math.Min(duration, spec.Segment.Duration)
	}
	for _, args := range ffmpeg.BuildVideoArgs(spec) {
		if _, err := p.env.Runner.Run(ctx, supervisor.Invocation{
			Kind:       supervisor.KindEncode,
			Bin:        p.env.FFmpeg,
			Args:       args,
			Dir:        spec.Dir,
			JobID:      req.Job.ID,
			Duration:   duration,
			AllowRetry: allowRetry,
		}); err != nil {
			return err
		}
	}
	return nil
}

// SegmentCount is the number of fixed-length chunks covering duration.
func SegmentCount(duration, segment float64) int {
	if segment <= 0 || duration <= 0 {
		return 1
	}
	return int(math.Ceil(duration / segment))
}

// recoverable reports whether a failed segment should be re-attempted and
// names the reason for metrics.
func recoverable(err error) (string, bool) {
	switch model.OutcomeOf(err) {
	case model.OutcomeRetryRequested:
		return "retry_requested", true
	case model.OutcomeTimedOut:
		return "timed_out", true
	case model.OutcomeFailed:
		if _, ok := model.ExitCodeOf(err); ok {
			return "exit_code", true
		}
	}
	return "", false
}

func (p *Pipeline) encodeSegmented(ctx context.Context, req Request, spec ffmpeg.VideoSpec, logger zerolog.Logger) error {
	segDir := filepath.Join(spec.Dir, ffmpeg.SegmentDir)
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(segDir) }()

	n := SegmentCount(req.Source.Duration, p.opts.SegmentSeconds)
	paths := make([]string, 0, n)
	attempts := 0
	for idx := 0; idx < n; {
		s := spec
		s.Segment = &ffmpeg.Segment{
			Index:    idx,
			Start:    float64(idx) * p.opts.SegmentSeconds,
			Duration: p.opts.SegmentSeconds,
		}
		err := p.runPasses(ctx, req, s, true)
		if err == nil {
			paths = append(paths, s.OutputPath())
			idx++
			attempts = 0
			continue
		}
		reason, ok := recoverable(err)
		if !ok {
			return fmt.Errorf("segment %d: %w", idx, err)
		}
		attempts++
		if p.opts.MaxSegmentAttempts > 0 && attempts >= p.opts.MaxSegmentAttempts {
			return fmt.Errorf("segment %d after %d attempts: %w", idx, attempts, err)
		}
		metrics.IncSegmentRetry(reason)
		logger.Warn().Err(err).
			Int(log.FieldSegment, idx).
			Int(log.FieldAttempt, attempts).
			Str("reason", reason).
			Dur("cooldown", p.opts.Cooldown).
			Msg("segment failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.opts.Cooldown):
		}
	}

	list := ffmpeg.ConcatListPath(spec.Dir, spec.Base, spec.Quality)
	if err := fsutil.WriteFileAtomic(ctx, list, ffmpeg.ConcatList(paths), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	if _, err := p.env.Runner.Run(ctx, supervisor.Invocation{
		Kind:     supervisor.KindEncode,
		Bin:      p.env.FFmpeg,
		Args:     ffmpeg.ConcatArgs(list, ffmpeg.RenditionPath(spec.Dir, spec.Base, spec.Quality)),
		Dir:      spec.Dir,
		JobID:    req.Job.ID,
		Duration: req.Source.Duration,
	}); err != nil {
		return fmt.Errorf("concat segments: %w", err)
	}
	return nil
}
