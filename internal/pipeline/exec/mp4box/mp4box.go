// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mp4box packages encoded renditions into on-demand DASH/HLS
// with MP4Box and exposes the files the manifest builder reads back.
package mp4box

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/dustin/go-humanize"
)

// FragmentMillis is the DASH fragment duration passed to MP4Box.
const FragmentMillis = 6000

// Outputs are the files written next to a packaged rendition.
type Outputs struct {
	Media    string // the repackaged rendition, same path as the encode output
	MPD      string
	Master   string
	Playlist string // media playlist with byte ranges
	temp     string
}

// OutputsFor returns the packaging outputs of <dir>/<name>.mp4.
func OutputsFor(dir, name string) Outputs {
	return Outputs{
		Media:    filepath.Join(dir, name+".mp4"),
		MPD:      filepath.Join(dir, name+".mpd"),
		Master:   filepath.Join(dir, name+".m3u8"),
		Playlist: filepath.Join(dir, name+"_1.m3u8"),
		temp:     filepath.Join(dir, name+"_temp.mp4"),
	}
}

// PackArgs builds the MP4Box invocation for <dir>/<name>.mp4.
func PackArgs(dir, name string) []string {
	o := OutputsFor(dir, name)
	return []string{
		"-dash", fmt.Sprint(FragmentMillis),
		"-profile", "onDemand",
		"-segment-name", name + "_temp$Init=$",
		"-out", o.Master + ":dual",
		o.Media,
	}
}

// Request packages one rendition.
type Request struct {
	JobID string
	Dir   string
	Name  string // rendition basename, e.g. movie_1080 or movie_audio_1
	// Source is the fetched source file. When the disk cannot hold a copy
	// of the rendition it is deleted before packaging and Refetch is called
	// afterwards.
	Source  string
	Refetch func(ctx context.Context) error
}

// Packager runs MP4Box under the supervisor.
type Packager struct {
	Bin       string
	Runner    supervisor.Runner
	FreeSpace func(path string) (uint64, error)
}

// New returns a Packager using the MP4Box binary at bin.
func New(bin string, runner supervisor.Runner) *Packager {
	return &Packager{Bin: bin, Runner: runner, FreeSpace: FreeSpace}
}

// Package packages req and replaces the encode output with the packaged
// media. Errors from the supervisor are returned unwrapped so callers can
// match control outcomes.
func (p *Packager) Package(ctx context.Context, req Request) (Outputs, error) {
	logger := log.WithContext(ctx, log.WithComponent("mp4box"))
	out := OutputsFor(req.Dir, req.Name)

	roomy, err := p.hasSpaceToCopy(out.Media, req.Dir)
	if err != nil {
		return out, err
	}
	if !roomy && req.Source != "" {
		logger.Warn().Str(log.FieldPath, req.Source).Msg("not enough disk space to duplicate rendition, deleting source temporarily")
		if err := os.Remove(req.Source); err != nil && !os.IsNotExist(err) {
			return out, fmt.Errorf("remove source: %w", err)
		}
	}

	if _, err := p.Runner.Run(ctx, supervisor.Invocation{
		Kind:  supervisor.KindPackage,
		Bin:   p.Bin,
		Args:  PackArgs(req.Dir, req.Name),
		Dir:   req.Dir,
		JobID: req.JobID,
	}); err != nil {
		return out, err
	}

	if err := os.Remove(out.Media); err != nil && !os.IsNotExist(err) {
		return out, fmt.Errorf("remove encode output: %w", err)
	}
	if err := os.Rename(out.temp, out.Media); err != nil {
		return out, fmt.Errorf("rename packaged media: %w", err)
	}

	if !roomy && req.Source != "" && req.Refetch != nil {
		logger.Info().Str(log.FieldPath, req.Source).Msg("refetching source")
		if err := req.Refetch(ctx); err != nil {
			return out, fmt.Errorf("refetch source: %w", err)
		}
	}
	return out, nil
}

// reserve is kept free on top of the copy.
const reserve = 1 << 20

func (p *Packager) hasSpaceToCopy(file, dir string) (bool, error) {
	st, err := os.Stat(file)
	if err != nil {
		return false, fmt.Errorf("stat encode output: %w", err)
	}
	freeSpace := p.FreeSpace
	if freeSpace == nil {
		freeSpace = FreeSpace
	}
	free, err := freeSpace(dir)
	if err != nil {
		return false, fmt.Errorf("free space of %s: %w", dir, err)
	}
	need := uint64(st.Size()) * 2
	if free <= reserve || need >= free-reserve {
		logger := log.WithComponent("mp4box")
		logger.Debug().
			Str("need", humanize.Bytes(need)).
			Str("free", humanize.Bytes(free)).
			Msg("insufficient disk space")
		return false, nil
	}
	return true, nil
}
