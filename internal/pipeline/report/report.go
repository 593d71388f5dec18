// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package report publishes job progress and outcome messages to the result
// queue.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/metrics"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// Publisher delivers one result message.
type Publisher interface {
	Publish(ctx context.Context, r model.Result) error
}

// Producer gates publishing on the producer being reachable.
type Producer interface {
	EnsureOnline(ctx context.Context, url string) bool
}

// Reporter builds result messages for a job. Every message carries the full
// job payload.
type Reporter struct {
	pub      Publisher
	producer Producer
}

// New returns a Reporter. producer may be nil.
func New(pub Publisher, producer Producer) *Reporter {
	return &Reporter{pub: pub, producer: producer}
}

func (r *Reporter) publish(ctx context.Context, res model.Result) error {
	if r.producer != nil && !r.producer.EnsureOnline(ctx, res.Data.ProducerURL) {
		logger := log.WithContext(ctx, log.WithComponent("report"))
		logger.Warn().
			Str("producer", res.Data.ProducerURL).
			Msg("producer unreachable, publishing anyway")
	}
	if err := r.pub.Publish(ctx, res); err != nil {
		return fmt.Errorf("publish %s: %w", res.Event, err)
	}
	metrics.IncResultPublished(string(res.Event))
	return nil
}

func base(job *model.Job, ev model.Event) model.Result {
	return model.Result{Event: ev, JobID: job.ID, Data: job.Data}
}

// UpdateSource reports the probed source height and runtime.
func (r *Reporter) UpdateSource(ctx context.Context, job *model.Job, quality int, runtime float64) error {
	res := base(job, model.EventUpdateSource)
	res.Progress = &model.Progress{SourceID: job.Data.SourceID, Quality: quality, Runtime: runtime}
	return r.publish(ctx, res)
}

// AudioAdded reports one uploaded audio rendition.
func (r *Reporter) AudioAdded(ctx context.Context, job *model.Job, streamID, file string, codec model.AudioCodec, channels int) error {
	res := base(job, model.EventAddStreamAudio)
	res.Progress = &model.Progress{
		SourceID: job.Data.SourceID, StreamID: streamID, FileName: file,
		Codec: int(codec), Channels: channels,
	}
	return r.publish(ctx, res)
}

// VideoAdded reports one uploaded video rendition.
func (r *Reporter) VideoAdded(ctx context.Context, job *model.Job, streamID, file string, codec model.Codec, quality int) error {
	res := base(job, model.EventAddStreamVideo)
	res.Progress = &model.Progress{
		SourceID: job.Data.SourceID, StreamID: streamID, FileName: file,
		Codec: int(codec), Quality: quality,
	}
	return r.publish(ctx, res)
}

// ManifestAdded reports the uploaded manifest of a codec pass.
func (r *Reporter) ManifestAdded(ctx context.Context, job *model.Job, streamID, file string, codec model.Codec) error {
	res := base(job, model.EventAddStreamManifest)
	res.Progress = &model.Progress{
		SourceID: job.Data.SourceID, StreamID: streamID, FileName: file, Codec: int(codec),
	}
	return r.publish(ctx, res)
}

// Finished reports a completed job.
func (r *Reporter) Finished(ctx context.Context, job *model.Job) error {
	return r.publish(ctx, base(job, model.EventFinished))
}

// Cancelled reports a job that ended without work, optionally asking the
// producer to keep the streams it already has.
func (r *Reporter) Cancelled(ctx context.Context, job *model.Job, keepStreams bool) error {
	res := base(job, model.EventCancelled)
	res.KeepStreams = keepStreams
	return r.publish(ctx, res)
}

// Resumed reports that a previous attempt was interrupted and is being redone.
func (r *Reporter) Resumed(ctx context.Context, job *model.Job) error {
	return r.publish(ctx, base(job, model.EventRetry))
}

// FailureEvent decides how a job failure is reported: discarded jobs and
// jobs on their last attempt fail, all others are retried.
func FailureEvent(job *model.Job, je *model.JobError) model.Event {
	if je.Discard || job.LastAttempt() {
		return model.EventFailed
	}
	return model.EventRetry
}

// Failure reports err when it carries a *model.JobError. Cancellation and
// untyped errors are not job failures: nothing is published and the
// returned JobError is nil.
func (r *Reporter) Failure(ctx context.Context, job *model.Job, err error) (*model.JobError, error) {
	if errors.Is(err, model.ErrCancelled) {
		return nil, nil
	}
	je, ok := model.AsJobError(err)
	if !ok {
		return nil, nil
	}
	ev := FailureEvent(job, je)
	logger := log.WithContext(ctx, log.WithComponent("report"))
	logger.Error().
		Err(je.Err).
		Str("code", string(je.Code)).
		Bool("discard", je.Discard).
		Str(log.FieldEvent, string(ev)).
		Msg("job failed")
	metrics.RecordJobFailure(job.Data.Codec.String(), string(je.Code))

	res := base(job, ev)
	res.ErrorCode = je.Code
	if perr := r.publish(ctx, res); perr != nil {
		return je, perr
	}
	return je, nil
}
