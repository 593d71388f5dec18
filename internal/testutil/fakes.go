// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/ManuGH/transcoderd/internal/pipeline/exec/mp4box"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/pipeline/remote"
)

// Runner records invocations. Fail, when set, decides the outcome of each
// call; a nil return is a success.
type Runner struct {
	mu          sync.Mutex
	Invocations []supervisor.Invocation
	Fail        func(n int, inv supervisor.Invocation) error
}

// Run implements supervisor.Runner.
func (r *Runner) Run(_ context.Context, inv supervisor.Invocation) (supervisor.Result, error) {
	r.mu.Lock()
	n := len(r.Invocations)
	r.Invocations = append(r.Invocations, inv)
	fail := r.Fail
	r.mu.Unlock()
	if fail != nil {
		if err := fail(n, inv); err != nil {
			return supervisor.Result{Outcome: model.OutcomeOf(err), ExitCode: 1}, err
		}
	}
	// Encoders create their output so later steps can find it.
	if inv.Kind == supervisor.KindEncode && len(inv.Args) > 0 {
		out := inv.Args[len(inv.Args)-1]
		if strings.HasSuffix(out, ".mp4") {
			_ = os.MkdirAll(filepath.Dir(out), 0o755)
			_ = os.WriteFile(out, []byte("media"), 0o600)
		}
	}
	return supervisor.Result{}, nil
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []supervisor.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]supervisor.Invocation(nil), r.Invocations...)
}

// Packager writes the sidecar fixtures of internal/pipeline/manifest/testdata
// next to the requested rendition.
type Packager struct {
	mu       sync.Mutex
	Requests []mp4box.Request
	Err      error
}

// Package implements the rendition packager.
func (p *Packager) Package(_ context.Context, req mp4box.Request) (mp4box.Outputs, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	p.mu.Unlock()
	out := mp4box.OutputsFor(req.Dir, req.Name)
	if p.Err != nil {
		return out, p.Err
	}
	dir, err := manifestFixtures()
	if err != nil {
		return out, err
	}
	fixture := "movie_720"
	if strings.Contains(req.Name, "_audio_") {
		fixture = "movie_audio_1"
	}
	for src, dst := range map[string]string{
		fixture + ".mpd":    out.MPD,
		fixture + "_1.m3u8": out.Playlist,
	} {
		data, err := os.ReadFile(filepath.Join(dir, src))
		if err != nil {
			return out, err
		}
		if err := os.WriteFile(dst, data, 0o600); err != nil {
			return out, err
		}
	}
	return out, nil
}

// manifestFixtures resolves the manifest package's testdata from this
// source file, so it works from any package's test working directory.
func manifestFixtures() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("testutil: cannot locate source file")
	}
	return filepath.Join(filepath.Dir(file), "..", "pipeline", "manifest", "testdata"), nil
}

// Reader returns canned read-back values.
type Reader struct{}

// Rendition implements the rendition reader.
func (Reader) Rendition(_ context.Context, _, path string) (model.RenditionInfo, error) {
	if strings.Contains(filepath.Base(path), "_audio_") {
		return model.RenditionInfo{Codec: "AAC", Channels: 2, SampleRate: 48000, Language: "en"}, nil
	}
	var q int
	name := strings.TrimSuffix(filepath.Base(path), ".mp4")
	if i := strings.LastIndex(name, "_"); i >= 0 {
		_, _ = fmt.Sscanf(name[i+1:], "%d", &q)
	}
	return model.RenditionInfo{Codec: "AVC", Width: q * 16 / 9, Height: q, FPS: 24}, nil
}

// Move is one recorded upload.
type Move struct {
	Src, Storage, Dest, Include string
}

// Remote records remote storage operations.
type Remote struct {
	mu        sync.Mutex
	Moves     []Move
	Syncs     []Move
	Purges    []string
	Emptied   []string
	Mkdirs    []string
	Downloads []string
	Ensured   []string
	Listings  [][]remote.File // returned in order, the last one repeats
	Lists     int

	MoveErr error
	// FailMove, when set, decides the outcome of the n-th Move (0-based).
	FailMove    func(n int) error
	moveCalls   int
	DownloadErr error
	EnsureErr   error
	// OnDownload runs after a download is recorded, e.g. to create the file.
	OnDownload func(destDir, file string) error
}

func (r *Remote) EnsureRemote(_ context.Context, storageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ensured = append(r.Ensured, storageID)
	return r.EnsureErr
}

func (r *Remote) Download(_ context.Context, _, storage, folder, file, destDir string) error {
	r.mu.Lock()
	r.Downloads = append(r.Downloads, remote.Remote(storage, folder, file))
	err, hook := r.DownloadErr, r.OnDownload
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		return hook(destDir, file)
	}
	return nil
}

func (r *Remote) Move(_ context.Context, _, src, storage, dest, include string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.moveCalls
	r.moveCalls++
	if r.MoveErr != nil {
		return r.MoveErr
	}
	if r.FailMove != nil {
		if err := r.FailMove(n); err != nil {
			return err
		}
	}
	r.Moves = append(r.Moves, Move{Src: src, Storage: storage, Dest: dest, Include: include})
	_ = os.RemoveAll(src)
	return nil
}

func (r *Remote) Sync(_ context.Context, _, src, storage, dest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Syncs = append(r.Syncs, Move{Src: src, Storage: storage, Dest: dest})
	return nil
}

func (r *Remote) List(_ context.Context, _, _, _, _ string) ([]remote.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Lists++
	if len(r.Listings) == 0 {
		return nil, nil
	}
	i := min(r.Lists-1, len(r.Listings)-1)
	return r.Listings[i], nil
}

func (r *Remote) Purge(_ context.Context, _, storage, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Purges = append(r.Purges, remote.Remote(storage, target))
	return nil
}

func (r *Remote) EmptyFolder(_ context.Context, _, storage, folder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Emptied = append(r.Emptied, remote.Remote(storage, folder))
	return nil
}

func (r *Remote) Mkdir(_ context.Context, _, storage, folder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Mkdirs = append(r.Mkdirs, remote.Remote(storage, folder))
	return nil
}

// Publisher records result messages.
type Publisher struct {
	mu      sync.Mutex
	Results []model.Result
}

// Publish implements report.Publisher.
func (p *Publisher) Publish(_ context.Context, r model.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Results = append(p.Results, r)
	return nil
}

// Events returns the published event names in order.
func (p *Publisher) Events() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Event, 0, len(p.Results))
	for _, r := range p.Results {
		out = append(out, r.Event)
	}
	return out
}

// Sequence returns a stream id generator yielding s1, s2, ...
func Sequence() func() (string, error) {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n), nil
	}
}
