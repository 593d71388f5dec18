// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package worker runs one transcode job end to end: it fetches and probes
// the source, plans the renditions, drives the audio, video and thumbnail
// steps, verifies the upload and reports the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/ManuGH/transcoderd/internal/fsutil"
	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/metrics"
	"github.com/ManuGH/transcoderd/internal/pipeline/audio"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/fsm"
	"github.com/ManuGH/transcoderd/internal/pipeline/manifest"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/pipeline/planner"
	"github.com/ManuGH/transcoderd/internal/pipeline/probe"
	"github.com/ManuGH/transcoderd/internal/pipeline/registry"
	"github.com/ManuGH/transcoderd/internal/pipeline/remote"
	"github.com/ManuGH/transcoderd/internal/pipeline/rendition"
	"github.com/ManuGH/transcoderd/internal/pipeline/report"
	"github.com/ManuGH/transcoderd/internal/pipeline/thumbnail"
	"github.com/ManuGH/transcoderd/internal/pipeline/video"
	"github.com/ManuGH/transcoderd/internal/store"
	"github.com/ManuGH/transcoderd/internal/telemetry"
)

// Outcome is how a job run ended.
type Outcome int

const (
	OutcomeFinished Outcome = iota
	// OutcomeCancelled is an explicit cancel; nothing is reported.
	OutcomeCancelled
	// OutcomeSkipped means every planned rendition already existed.
	OutcomeSkipped
	// OutcomeFailed carries the error that ended the run.
	OutcomeFailed
	// OutcomeBusy means another slot holds the working directory.
	OutcomeBusy
	// OutcomeInterrupted means the worker stopped mid-run; nothing is reported.
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeBusy:
		return "busy"
	case OutcomeInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// DefaultVerifyAttempts bounds the listings of the verification step.
const DefaultVerifyAttempts = 5

// ErrBusy is returned when the working directory of a job is locked.
var ErrBusy = errors.New("job is being processed by another slot")

// Remote is the storage surface the orchestrator uses.
type Remote interface {
	rendition.Remote
	EnsureRemote(ctx context.Context, storageID string) error
	Download(ctx context.Context, jobID, storage, folder, file, destDir string) error
	Sync(ctx context.Context, jobID, src, storage, dest string) error
	List(ctx context.Context, jobID, storage, folder, exclude string) ([]remote.File, error)
	EmptyFolder(ctx context.Context, jobID, storage, folder string) error
	Mkdir(ctx context.Context, jobID, storage, folder string) error
}

// Prober probes sources and reads renditions back.
type Prober interface {
	rendition.Reader
	Source(ctx context.Context, jobID, path string) (model.SourceInfo, error)
}

// Config holds the orchestrator settings.
type Config struct {
	// Root holds one working directory per job.
	Root string
	// Defaults apply where the stored settings are empty.
	Defaults store.Settings
	// Fallback is planned when the source is below every ladder rung.
	Fallback []int
	// Live, when set, supplies the current defaults and fallback ladder in
	// place of Defaults and Fallback, e.g. after a configuration reload.
	Live  func() (defaults store.Settings, fallback []int)
	Video video.Options

	VerifyAttempts int
	VerifyInterval time.Duration
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Registry   *registry.Registry
	Store      store.Reader
	Remote     Remote
	Prober     Prober
	Packager   rendition.Packager
	Runner     supervisor.Runner
	FFmpeg     string
	Thumbnails thumbnail.Generator // nil disables thumbnails
	Reporter   *report.Reporter
	// NewStreamID overrides stream id generation, mainly in tests.
	NewStreamID func() (string, error)
}

// Orchestrator processes jobs of one codec.
type Orchestrator struct {
	codec model.Codec
	cfg   Config
	reg   *registry.Registry
	store store.Reader
	rem   Remote
	probe Prober
	thumb thumbnail.Generator
	rep   *report.Reporter
	env   *rendition.Env
	audio *audio.Pipeline
	video *video.Pipeline
}

// New returns an orchestrator for codec.
func New(codec model.Codec, cfg Config, d Deps) (*Orchestrator, error) {
	if !codec.Valid() {
		return nil, fmt.Errorf("unsupported codec %d", int(codec))
	}
	if cfg.Root == "" {
		return nil, errors.New("worker: empty transcode root")
	}
	if d.Registry == nil || d.Store == nil || d.Remote == nil || d.Prober == nil ||
		d.Packager == nil || d.Runner == nil || d.Reporter == nil {
		return nil, errors.New("worker: missing dependency")
	}
	if cfg.VerifyAttempts <= 0 {
		cfg.VerifyAttempts = DefaultVerifyAttempts
	}
	ffmpegBin := d.FFmpeg
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	env := &rendition.Env{
		FFmpeg:      ffmpegBin,
		Runner:      d.Runner,
		Packager:    d.Packager,
		Reader:      d.Prober,
		Remote:      d.Remote,
		NewStreamID: d.NewStreamID,
	}
	return &Orchestrator{
		codec: codec,
		cfg:   cfg,
		reg:   d.Registry,
		store: d.Store,
		rem:   d.Remote,
		probe: d.Prober,
		thumb: d.Thumbnails,
		rep:   d.Reporter,
		env:   env,
		audio: audio.New(env, d.Reporter),
		video: video.New(env, d.Reporter, cfg.Video),
	}, nil
}

// Codec is the codec this orchestrator encodes.
func (o *Orchestrator) Codec() model.Codec { return o.codec }

// Dir is the working directory of a job.
func (o *Orchestrator) Dir(jobID string) string {
	return filepath.Join(o.cfg.Root, jobID)
}

// run is the state of one job run.
type run struct {
	job    *model.Job
	m      *fsm.JobMachine
	logger zerolog.Logger

	settings  store.Settings
	fallback  []int
	media     store.Media
	source    store.MediaSource
	ws        rendition.Workspace
	info      model.SourceInfo
	plan      *planner.Plan
	resuming  bool
	manifest  *manifest.Builder
	audioDone int
}

// Process runs job. A cancelled, interrupted or skipped job returns a nil
// error. A failed job is reported before Process returns its
// *model.JobError; any other error means the job was not reported.
func (o *Orchestrator) Process(ctx context.Context, job *model.Job) (outcome Outcome, err error) {
	ctx = log.ContextWithJobID(ctx, job.ID)
	ctx = log.ContextWithMediaID(ctx, job.Data.Media)
	ctx = log.ContextWithCodec(ctx, o.codec.String())
	ctx, span := telemetry.StartSpan(ctx, "transcoderd/worker", "job",
		telemetry.JobAttributes(job.ID, job.Data.Media, o.codec.String(), job.AttemptsMade)...)
	defer func() { telemetry.EndSpan(span, err) }()

	r := &run{
		job:      job,
		m:        fsm.NewJob(),
		logger:   log.WithContext(ctx, log.WithComponent("worker")),
		manifest: manifest.New(),
	}

	if o.reg.TakeCancel(job.ID) {
		r.logger.Info().Msg("job cancelled before start")
		r.fire(ctx, model.EvCancel)
		metrics.RecordJob(o.codec.String(), OutcomeCancelled.String())
		return OutcomeCancelled, nil
	}

	if err := os.MkdirAll(o.cfg.Root, 0o755); err != nil {
		return OutcomeFailed, fmt.Errorf("create transcode root: %w", err)
	}
	lock := flock.New(filepath.Join(o.cfg.Root, job.ID+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return OutcomeFailed, fmt.Errorf("lock job %s: %w", job.ID, err)
	}
	if !locked {
		return OutcomeBusy, ErrBusy
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	release := o.reg.Hold()
	defer release()
	metrics.SetActiveJobs(o.codec.String(), 1)
	defer metrics.SetActiveJobs(o.codec.String(), 0)

	start := time.Now()
	r.logger.Info().
		Str("file", job.Data.Filename).
		Int(log.FieldAttempt, job.AttemptsMade).
		Msg("job started")

	outcome, err = o.execute(ctx, r)
	if err != nil {
		outcome, err = o.fail(ctx, r, err)
	}
	metrics.RecordJob(o.codec.String(), outcome.String())
	r.logger.Info().
		Str(log.FieldOutcome, outcome.String()).
		Str(log.FieldNewState, string(r.m.State())).
		Dur("elapsed", time.Since(start)).
		Msg("job done")
	return outcome, err
}

// fail converts err into the reported outcome. Cancellation and shutdown
// are silent. Errors without a *model.JobError are returned unreported so the
// job goes back to the queue.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) (Outcome, error) {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		r.logger.Info().Err(err).Msg("job interrupted")
		return OutcomeInterrupted, nil
	case errors.Is(err, model.ErrCancelled):
		r.logger.Info().Msg("job cancelled")
		r.fire(ctx, model.EvCancel)
		return OutcomeCancelled, nil
	}
	if _, ok := model.AsJobError(err); !ok {
		r.logger.Error().Err(err).Msg("job stopped before it could be reported")
		return OutcomeFailed, err
	}
	je, perr := o.rep.Failure(ctx, r.job, err)
	r.fire(ctx, model.EvFail)
	if perr != nil {
		return OutcomeFailed, errors.Join(je, perr)
	}
	return OutcomeFailed, je
}

func (r *run) fire(ctx context.Context, ev model.JobEvent) {
	if !r.m.Can(ev) {
		return
	}
	from := r.m.State()
	to, err := r.m.Fire(ctx, ev)
	if err != nil {
		r.logger.Warn().Err(err).Str(log.FieldEvent, string(ev)).Msg("state transition rejected")
		return
	}
	r.logger.Debug().
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Msg("state changed")
}

// jobErr tags err with code unless it is a cancellation.
func jobErr(code model.ErrorCode, err error) error {
	if err == nil || errors.Is(err, model.ErrCancelled) {
		return err
	}
	return model.NewJobError(code, err)
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (Outcome, error) {
	job := r.job
	dir := o.Dir(job.ID)

	if err := o.resolve(ctx, r); err != nil {
		return OutcomeFailed, err
	}
	r.fire(ctx, model.EvResolve)
	if err := o.ensureRemotes(ctx, job); err != nil {
		return OutcomeFailed, err
	}

	if _, err := os.Stat(dir); err == nil {
		r.logger.Warn().Str(log.FieldPath, dir).Msg("working directory from an interrupted run found, cleaning up")
		r.resuming = true
		if err := o.rep.Resumed(ctx, job); err != nil {
			return OutcomeFailed, err
		}
		if err := os.RemoveAll(dir); err != nil {
			return OutcomeFailed, fmt.Errorf("remove stale working directory: %w", err)
		}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Error().Err(err).Str(log.FieldPath, dir).Msg("remove working directory")
		}
	}()

	// The stored source quality allows planning before the download.
	if r.source.Quality > 0 {
		done, err := o.planQualities(ctx, r, r.source.Quality)
		if err != nil || done {
			return OutcomeSkipped, err
		}
	}

	if err := o.fetch(ctx, r, dir); err != nil {
		return OutcomeFailed, err
	}
	r.fire(ctx, model.EvFetch)

	info, err := o.probe.Source(ctx, job.ID, r.ws.Source)
	if err != nil {
		return OutcomeFailed, probeError(err)
	}
	r.info = info
	r.fire(ctx, model.EvProbe)
	r.logger.Info().
		Int("width", info.Width).
		Int("height", info.Height).
		Float64(log.FieldFPS, info.FPS).
		Int("audio_tracks", len(info.AudioTracks)).
		Msg("source probed")

	if r.plan == nil {
		done, err := o.planQualities(ctx, r, info.Height)
		if err != nil || done {
			return OutcomeSkipped, err
		}
	}
	r.fire(ctx, model.EvPlan)

	if err := o.rep.UpdateSource(ctx, job, info.Height, math.Trunc(info.Duration)); err != nil {
		return OutcomeFailed, err
	}

	if o.codec.IsCanonical() {
		if err := o.encodeAudio(ctx, r); err != nil {
			return OutcomeFailed, jobErr(model.CodeEncodeAudioFailed, err)
		}
		r.fire(ctx, model.EvAudio)
	}

	if err := o.encodeVideo(ctx, r); err != nil {
		return OutcomeFailed, jobErr(model.CodeEncodeVideoFailed, err)
	}
	r.fire(ctx, model.EvVideo)

	if o.thumb != nil {
		if err := o.thumbnails(ctx, r); err != nil {
			return OutcomeFailed, jobErr(model.CodeEncodeVideoFailed, err)
		}
		r.fire(ctx, model.EvThumbnails)
	}

	if err := o.replaceStreams(ctx, job); err != nil {
		return OutcomeFailed, jobErr(model.CodeEncodeVideoFailed, err)
	}

	if err := o.verify(ctx, r); err != nil {
		return OutcomeFailed, jobErr(model.CodeEncodeVideoFailed, err)
	}
	r.fire(ctx, model.EvVerify)

	if err := o.rep.Finished(ctx, job); err != nil {
		return OutcomeFailed, err
	}
	r.fire(ctx, model.EvReport)
	return OutcomeFinished, nil
}

// resolve loads the stored settings and records of the job.
func (o *Orchestrator) resolve(ctx context.Context, r *run) error {
	stored, err := o.store.Settings(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load settings: %w", err)
	}
	defaults, fallback := o.cfg.Defaults, o.cfg.Fallback
	if o.cfg.Live != nil {
		defaults, fallback = o.cfg.Live()
	}
	r.settings = Effective(defaults, stored)
	r.fallback = fallback

	if r.job.Data.Media != "" {
		media, err := o.store.Media(ctx, r.job.Data.Media)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load media %s: %w", r.job.Data.Media, err)
		}
		r.media = media
	}
	source, err := o.store.MediaSource(ctx, r.job.Data.SourceID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load source %s: %w", r.job.Data.SourceID, err)
	}
	r.source = source
	return nil
}

func (o *Orchestrator) ensureRemotes(ctx context.Context, job *model.Job) error {
	ids := []string{job.Data.Storage}
	if job.Data.LinkedStorage != "" && job.Data.LinkedStorage != job.Data.Storage {
		ids = append(ids, job.Data.LinkedStorage)
	}
	for _, id := range ids {
		if err := o.rem.EnsureRemote(ctx, id); err != nil {
			if errors.Is(err, remote.ErrStorageNotFound) {
				return jobErr(model.CodeStorageNotFound, err)
			}
			return jobErr(model.CodeDownloadFailed, err)
		}
	}
	return nil
}

// planQualities plans the renditions for height. It reports done when the
// job ended because everything already exists.
func (o *Orchestrator) planQualities(ctx context.Context, r *run, height int) (bool, error) {
	job := r.job
	in := planner.Input{
		SourceHeight: height,
		Ladder:       r.settings.QualityList,
		Forced:       job.Data.AdvancedOptions.ForceVideoQuality,
		Fallback:     r.fallback,
		Resuming:     r.resuming,
	}
	if !r.resuming {
		produced, err := o.produced(ctx, r, in)
		if err != nil {
			return false, err
		}
		in.Produced = produced
	}
	plan, err := planner.PlanQualities(in)
	if err != nil {
		return false, model.NewJobError(model.CodeProbeFailed, err)
	}
	r.logger.Info().
		Ints("candidates", plan.Candidates).
		Ints("planned", plan.Qualities).
		Msg("qualities planned")

	if plan.NothingToDo {
		r.logger.Info().Msg("every rendition already exists")
		if err := o.rep.Cancelled(ctx, job, true); err != nil {
			return false, err
		}
		r.fire(ctx, model.EvCancel)
		return true, nil
	}
	if plan.ClearRemote {
		r.logger.Info().Msg("clearing remote output folder")
		if err := o.rem.EmptyFolder(ctx, job.ID, job.Data.Storage, job.Data.RemoteFolder()); err != nil {
			return false, jobErr(model.CodeEncodeVideoFailed, err)
		}
	}
	r.plan = &plan
	return false, nil
}

// produced lists the remote output folder and returns the candidates that
// are both uploaded and registered on the source.
func (o *Orchestrator) produced(ctx context.Context, r *run, in planner.Input) ([]int, error) {
	job := r.job
	ladder := in.Ladder
	if len(ladder) == 0 {
		ladder = planner.DefaultLadder
	}
	candidates := planner.Candidates(in.SourceHeight, ladder, in.Forced)
	files, err := o.rem.List(ctx, job.ID, job.Data.Storage, job.Data.RemoteFolder(), thumbnail.Folder+"/**")
	if err != nil {
		return nil, jobErr(model.CodeDownloadFailed, err)
	}
	uploaded := make([]planner.UploadedFile, 0, len(files))
	for _, f := range files {
		uploaded = append(uploaded, planner.UploadedFile{StreamID: f.StreamID(), Name: f.Name})
	}
	streams := make([]planner.RegisteredStream, 0, len(r.source.Streams))
	for _, s := range r.source.Streams {
		streams = append(streams, planner.RegisteredStream{ID: s.ID, Codec: s.Codec, Quality: s.Quality})
	}
	return planner.Produced(baseName(job.Data.Filename), candidates, uploaded, streams, o.codec, job.Data.ReplaceStreams), nil
}

func baseName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}

// fetch downloads the source into dir.
func (o *Orchestrator) fetch(ctx context.Context, r *run, dir string) error {
	job := r.job
	if err := fsutil.SafeName(job.Data.Filename); err != nil {
		return model.NewJobError(model.CodeDownloadFailed, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return jobErr(model.CodeDownloadFailed, fmt.Errorf("create working directory: %w", err))
	}
	input := filepath.Join(dir, job.Data.Filename)
	download := func(ctx context.Context) error {
		if err := os.Remove(input); err != nil && !os.IsNotExist(err) {
			return err
		}
		return o.rem.Download(ctx, job.ID, job.Data.SourceStorage(), job.Data.Path, job.Data.Filename, dir)
	}

	r.logger.Info().Str(log.FieldRemote, remote.Remote(job.Data.SourceStorage(), job.Data.Path, job.Data.Filename)).Msg("downloading source")
	if err := download(ctx); err != nil {
		return jobErr(model.CodeDownloadFailed, err)
	}
	if job.Data.LinkedStorage != "" {
		if err := o.rem.Mkdir(ctx, job.ID, job.Data.Storage, job.Data.RemoteFolder()); err != nil {
			return jobErr(model.CodeDownloadFailed, err)
		}
	}
	r.ws = rendition.Workspace{
		Dir:     dir,
		Base:    baseName(job.Data.Filename),
		Source:  input,
		Refetch: download,
	}
	return nil
}

func probeError(err error) error {
	switch {
	case errors.Is(err, model.ErrCancelled):
		return err
	case errors.Is(err, probe.ErrNoVideoTrack):
		return model.NewJobError(model.CodeNoVideoTrack, err)
	case errors.Is(err, probe.ErrNoAudioTrack):
		return model.NewJobError(model.CodeNoAudioTrack, err)
	}
	return model.NewJobError(model.CodeProbeFailed, err)
}

func (o *Orchestrator) encodeAudio(ctx context.Context, r *run) error {
	before := len(r.manifest.Snapshot().AudioTracks)
	err := o.audio.Run(ctx, audio.Request{
		Job:       r.job,
		Workspace: r.ws,
		Source:    r.info,
		Params:    AudioParams(r.settings),
		Manifest:  r.manifest,
		Language:  r.media.OriginalLang,
	})
	r.audioDone = len(r.manifest.Snapshot().AudioTracks) - before
	return err
}

func (o *Orchestrator) encodeVideo(ctx context.Context, r *run) error {
	params, err := VideoParams(o.codec, r.settings)
	if err != nil {
		return err
	}
	return o.video.Run(ctx, video.Request{
		Job:       r.job,
		Workspace: r.ws,
		Source:    r.info,
		Codec:     o.codec,
		Qualities: r.plan.Qualities,
		Settings:  r.settings.EncodingSettings,
		Params:    params,
		Manifest:  r.manifest,
		Language:  r.media.OriginalLang,
	})
}

func (o *Orchestrator) thumbnails(ctx context.Context, r *run) error {
	job := r.job
	dir := filepath.Join(r.ws.Dir, thumbnail.Folder)
	out, err := o.thumb.Generate(ctx, thumbnail.Request{
		JobID:    job.ID,
		Input:    r.ws.Source,
		Dir:      dir,
		Duration: r.info.Duration,
		Width:    r.info.Width,
		Height:   r.info.Height,
		HDR:      r.info.HDR,
	})
	if err != nil {
		return fmt.Errorf("generate thumbnails: %w", err)
	}
	r.logger.Info().Int("frames", out.Frames).Int("sprites", len(out.Sprites)).Msg("thumbnails generated")

	dest := path.Join(job.Data.RemoteFolder(), thumbnail.Folder)
	if job.Data.Update {
		return o.rem.Sync(ctx, job.ID, dir, job.Data.Storage, dest)
	}
	return o.rem.Move(ctx, job.ID, dir, job.Data.Storage, dest, "")
}

func (o *Orchestrator) replaceStreams(ctx context.Context, job *model.Job) error {
	for _, id := range job.Data.ReplaceStreams {
		if err := fsutil.SafeName(id); err != nil {
			return err
		}
		logger := log.WithContext(ctx, log.WithComponent("worker"))
		logger.Info().Str(log.FieldStreamID, id).Msg("removing replaced stream")
		if err := o.rem.Purge(ctx, job.ID, job.Data.Storage, path.Join(job.Data.RemoteFolder(), id)); err != nil {
			return err
		}
	}
	return nil
}

// ExpectedFiles is the file count of a complete output folder: the video
// renditions, the audio renditions, the manifest and the source unless it
// lives on linked storage.
func ExpectedFiles(job *model.Job, videos, audios int) int {
	n := videos + audios + 1
	if job.Data.LinkedStorage == "" {
		n++
	}
	return n
}

// verify re-lists the output folder until the expected files show up or
// the attempts run out. A short listing is logged, not failed.
func (o *Orchestrator) verify(ctx context.Context, r *run) error {
	job := r.job
	want := ExpectedFiles(job, len(r.plan.Qualities), r.audioDone)
	var got int
	for attempt := 1; attempt <= o.cfg.VerifyAttempts; attempt++ {
		files, err := o.rem.List(ctx, job.ID, job.Data.Storage, job.Data.RemoteFolder(), thumbnail.Folder+"/**")
		if err != nil {
			return err
		}
		got = len(files)
		if got >= want {
			break
		}
		if attempt < o.cfg.VerifyAttempts && o.cfg.VerifyInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.VerifyInterval):
			}
		}
	}
	level := zerolog.InfoLevel
	if got < want {
		level = zerolog.WarnLevel
	}
	r.logger.WithLevel(level).Int("uploaded", got).Int("expected", want).Msg("output folder checked")
	return nil
}
