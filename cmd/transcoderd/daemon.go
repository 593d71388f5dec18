// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/transcoderd/internal/config"
	"github.com/ManuGH/transcoderd/internal/control"
	"github.com/ManuGH/transcoderd/internal/health"
	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/mp4box"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/probe"
	"github.com/ManuGH/transcoderd/internal/pipeline/registry"
	"github.com/ManuGH/transcoderd/internal/pipeline/remote"
	"github.com/ManuGH/transcoderd/internal/pipeline/report"
	"github.com/ManuGH/transcoderd/internal/pipeline/thumbnail"
	"github.com/ManuGH/transcoderd/internal/pipeline/video"
	"github.com/ManuGH/transcoderd/internal/pipeline/worker"
	"github.com/ManuGH/transcoderd/internal/queue"
	"github.com/ManuGH/transcoderd/internal/store"
	"github.com/ManuGH/transcoderd/internal/telemetry"
)

const serviceName = "transcoderd"

// slotBackoff is the pause of a slot after a transport error or busy job.
const slotBackoff = 5 * time.Second

// transport is what the daemon needs from a queue backend.
type transport interface {
	worker.Source
	report.Publisher
	ConsumeCancels(ctx context.Context, c queue.Canceller) error
	Close() error
}

// daemon owns the long-lived collaborators of a run.
type daemon struct {
	holder *config.Holder
	logger zerolog.Logger

	tel   *telemetry.Provider
	store store.Store
	queue transport
	reg   *registry.Registry
	gate  *worker.Gate
	slots []*worker.Slot
	srv   *control.Server
}

func newDaemon(ctx context.Context, holder *config.Holder) (*daemon, error) {
	cfg := holder.Get()
	log.Configure(log.Config{Level: cfg.Log.Level, Service: serviceName, Version: cfg.Version})
	d := &daemon{
		holder: holder,
		logger: log.WithComponent("daemon"),
		reg:    registry.New(),
		gate:   worker.NewGate(),
	}

	codecs, err := cfg.ParsedCodecs()
	if err != nil {
		return nil, err
	}

	d.tel, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if d.store, err = store.Open(cfg.Store.Backend, cfg.Store.Path); err != nil {
		d.close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	if d.queue, err = openQueue(ctx, cfg); err != nil {
		d.close()
		return nil, err
	}

	var dec remote.Decrypter
	if cfg.Rclone.Secret != "" {
		if dec, err = remote.NewAESGCM(cfg.Rclone.Secret); err != nil {
			d.close()
			return nil, fmt.Errorf("init storage decrypter: %w", err)
		}
	}

	sup := supervisor.New(supervisor.Config{
		CancelPoll:       cfg.Supervisor.CancelPoll,
		ListCancelPoll:   cfg.Supervisor.ListCancelPoll,
		RetryPoll:        cfg.Supervisor.RetryPoll,
		StallPoll:        cfg.Supervisor.StallPoll,
		KillTimeout:      cfg.Supervisor.KillTimeout,
		ProgressLogEvery: cfg.Supervisor.ProgressLogEvery,
	}, d.reg)

	deps := worker.Deps{
		Registry: d.reg,
		Store:    d.store,
		Remote:   remote.New(cfg.Binaries.Rclone, cfg.Rclone.ConfigPath, sup, d.store, dec),
		Prober:   probe.New(cfg.Binaries.FFprobe, cfg.Binaries.MediaInfo, sup),
		Packager: mp4box.New(cfg.Binaries.MP4Box, sup),
		Runner:   sup,
		FFmpeg:   cfg.Binaries.FFmpeg,
		Reporter: report.New(d.queue, report.NewProducerCheck(
			cfg.Producer.Domains, cfg.Producer.DomainsFile, cfg.Producer.BypassFile)),
	}
	if cfg.Thumbnails {
		deps.Thumbnails = thumbnail.NewFFmpeg(cfg.Binaries.FFmpeg, sup)
	}

	wcfg := worker.Config{
		Root: cfg.Root,
		Live: holder.Live,
		Video: video.Options{
			SegmentSeconds:     cfg.Segment.Seconds,
			Cooldown:           cfg.Segment.Cooldown,
			MaxSegmentAttempts: cfg.Segment.MaxAttempts,
		},
		VerifyAttempts: cfg.Verify.Attempts,
		VerifyInterval: cfg.Verify.Interval,
	}

	var peer worker.Waiter
	if cfg.Control.PeerURL != "" {
		peer = control.NewPeer(cfg.Control.PeerURL, cfg.Control.PeerPoll)
	}
	for _, codec := range codecs {
		orch, err := worker.New(codec, wcfg, deps)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("init %s worker: %w", codec, err)
		}
		d.slots = append(d.slots, &worker.Slot{
			Processor: orch,
			Source:    d.queue,
			Gate:      d.gate,
			Peer:      peer,
			Backoff:   slotBackoff,
		})
	}

	d.srv = control.NewServer(control.Config{
		Listen:      cfg.Control.Listen,
		RateLimit:   cfg.Control.RateLimit,
		ServiceName: serviceName,
		Consumer:    d.gate,
		Signals:     d.reg,
		Health:      d.healthManager(cfg),
	})
	return d, nil
}

func openQueue(ctx context.Context, cfg config.Config) (transport, error) {
	switch cfg.Queue.Backend {
	case "memory":
		return queue.NewMemory(), nil
	case "redis":
		r, err := queue.NewRedis(ctx, redisConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("connect queue: %w", err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
}

// seed enqueues a job payload on the in-process queue.
func (d *daemon) seed(ctx context.Context, raw []byte) error {
	mem, ok := d.queue.(*queue.Memory)
	if !ok {
		return errors.New("--job needs the memory queue backend; use `job enqueue` for redis")
	}
	job, err := queue.NewValidator().DecodeJob(raw)
	if err != nil {
		return err
	}
	return mem.Push(ctx, job)
}

// run blocks until ctx is done or every slot has stopped.
func (d *daemon) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.holder.StartWatcher(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("config watcher unavailable")
	}
	defer d.holder.Stop()

	r, isRedis := d.queue.(*queue.Redis)
	if isRedis {
		for _, s := range d.slots {
			codec := s.Processor.Codec()
			if n, err := r.RecoverOrphans(ctx, codec); err != nil {
				d.logger.Warn().Err(err).Str(log.FieldCodec, codec.String()).Msg("orphan recovery failed")
			} else if n > 0 {
				d.logger.Info().Str(log.FieldCodec, codec.String()).Int("jobs", n).Msg("requeued orphaned jobs")
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if isRedis {
		g.Go(func() error { return r.Heartbeat(gctx) })
	}
	g.Go(func() error { return d.queue.ConsumeCancels(gctx, d.reg) })
	g.Go(func() error { return d.srv.ListenAndServe(gctx) })
	g.Go(func() error { d.applyReloads(gctx); return nil })

	slots, sctx := errgroup.WithContext(gctx)
	for _, s := range d.slots {
		slots.Go(func() error { return s.Run(sctx) })
	}
	g.Go(func() error {
		err := slots.Wait()
		d.logger.Info().Str(log.FieldEvent, "slots.stopped").Msg("all codec slots stopped")
		cancel()
		return err
	})

	d.logger.Info().
		Str(log.FieldEvent, "daemon.started").
		Strs("codecs", codecNames(d.slots)).
		Msg("transcoder started")
	return g.Wait()
}

// applyReloads applies settings that take effect without a restart. Encoding
// defaults are read through holder.Live on every job.
func (d *daemon) applyReloads(ctx context.Context) {
	updates := make(chan config.Config, 1)
	d.holder.RegisterListener(updates)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			if cfg.Log.Level == "" {
				continue
			}
			if err := log.SetLevel(strings.ToLower(cfg.Log.Level)); err != nil {
				d.logger.Warn().Err(err).Msg("ignoring reloaded log level")
			}
		}
	}
}

func (d *daemon) healthManager(cfg config.Config) *health.Manager {
	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewDirChecker("root", cfg.Root))
	hm.RegisterChecker(health.NewBinaryChecker(
		cfg.Binaries.FFmpeg, cfg.Binaries.FFprobe, cfg.Binaries.MediaInfo, cfg.Binaries.MP4Box, cfg.Binaries.Rclone))
	if r, ok := d.queue.(*queue.Redis); ok {
		hm.RegisterChecker(health.NewFuncChecker("queue", r.HealthCheck))
	}
	return hm
}

func (d *daemon) close() {
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.tel.Shutdown(ctx)
	}
}

func codecNames(slots []*worker.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Processor.Codec().String())
	}
	return out
}

var _ queue.Canceller = (*registry.Registry)(nil)
