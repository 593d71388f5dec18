// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package thumbnail renders seek-preview sprite sheets with a WebVTT and a
// JSON index per sprite set.
package thumbnail

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/transcoderd/internal/fsutil"
	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
)

// Folder is the thumbnail subfolder of a working directory and of the
// remote output folder.
const Folder = "thumbnails"

// Set is one sprite sheet layout.
type Set struct {
	Prefix string
	Size   int // bounding box of a single frame
	Cols   int
	Rows   int
}

// DefaultSets are the medium and large preview sets.
var DefaultSets = []Set{
	{Prefix: "M", Size: 160, Cols: 10, Rows: 10},
	{Prefix: "L", Size: 320, Cols: 5, Rows: 5},
}

// Request describes the source to sample.
type Request struct {
	JobID    string
	Input    string
	Dir      string // output folder
	Duration float64
	Width    int
	Height   int
	HDR      bool
}

// Output lists the files written.
type Output struct {
	Frames  int
	Sprites []string
	Indexes []string
}

// Generator produces sprite sheets for a source.
type Generator interface {
	Generate(ctx context.Context, req Request) (Output, error)
}

// Frame is one entry of the JSON index.
type Frame struct {
	StartTime int    `json:"startTime"`
	EndTime   int    `json:"endTime"`
	Sprite    string `json:"sprite"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// FFmpeg renders sprites with the ffmpeg tile filter.
type FFmpeg struct {
	Bin    string
	Runner supervisor.Runner
	Sets   []Set
}

// NewFFmpeg returns a generator for DefaultSets.
func NewFFmpeg(bin string, runner supervisor.Runner) *FFmpeg {
	return &FFmpeg{Bin: bin, Runner: runner, Sets: DefaultSets}
}

// Generate samples one frame per second of req.Input.
func (g *FFmpeg) Generate(ctx context.Context, req Request) (Output, error) {
	logger := log.WithContext(ctx, log.WithComponent("thumbnail"))
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create thumbnail dir: %w", err)
	}
	frames := int(math.Ceil(req.Duration))
	if frames < 1 {
		frames = 1
	}
	out := Output{Frames: frames}

	for _, set := range g.Sets {
		w, h := ScaledSize(req.Width, req.Height, set.Size, set.Size)
		cols := min(set.Cols, frames)
		spec := ffmpeg.SpriteSpec{
			Input: req.Input, Dir: req.Dir, Prefix: set.Prefix,
			Width: w, Height: h, Cols: cols, Rows: set.Rows, HDR: req.HDR,
		}
		logger.Info().Str("set", set.Prefix).Int("frames", frames).Msg("generating sprites")
		_, err := g.Runner.Run(ctx, supervisor.Invocation{
			Kind:     supervisor.KindEncode,
			Bin:      g.Bin,
			Args:     ffmpeg.SpriteArgs(spec),
			JobID:    req.JobID,
			Duration: req.Duration,
		})
		if err != nil {
			return out, fmt.Errorf("sprites %s: %w", set.Prefix, err)
		}

		frameIndex := Layout(frames, w, h, cols, set.Rows, set.Prefix)
		for p := 0; p < Pages(frames, cols, set.Rows); p++ {
			out.Sprites = append(out.Sprites, filepath.Join(req.Dir, fmt.Sprintf("%s%d.jpg", set.Prefix, p)))
		}
		vtt := filepath.Join(req.Dir, set.Prefix+".vtt")
		if err := fsutil.WriteFileAtomic(ctx, vtt, []byte(WebVTT(frameIndex)), 0o644); err != nil {
			return out, err
		}
		data, err := json.Marshal(frameIndex)
		if err != nil {
			return out, err
		}
		idx := filepath.Join(req.Dir, set.Prefix+".json")
		if err := fsutil.WriteFileAtomic(ctx, idx, data, 0o644); err != nil {
			return out, err
		}
		out.Indexes = append(out.Indexes, vtt, idx)
	}
	return out, nil
}

// Pages is the number of sprite pages holding frames.
func Pages(frames, cols, rows int) int {
	per := cols * rows
	if per <= 0 {
		return 0
	}
	return (frames + per - 1) / per
}

// Layout places every sampled frame on its page.
func Layout(frames, w, h, cols, rows int, prefix string) []Frame {
	per := cols * rows
	out := make([]Frame, 0, frames)
	for i := 0; i < frames; i++ {
		page, slot := i/per, i%per
		out = append(out, Frame{
			StartTime: i,
			EndTime:   i + 1,
			Sprite:    fmt.Sprintf("%s%d.jpg", prefix, page),
			X:         (slot % cols) * w,
			Y:         (slot / cols) * h,
			Width:     w,
			Height:    h,
		})
	}
	return out
}

// WebVTT renders the cue list for frames.
func WebVTT(frames []Frame) string {
	var b strings.Builder
	b.WriteString("WEBVTT")
	for i, f := range frames {
		fmt.Fprintf(&b, "\n\n%d\n%s --> %s\n%s#xywh=%d,%d,%d,%d",
			i+1, cueTime(f.StartTime), cueTime(f.EndTime), f.Sprite, f.X, f.Y, f.Width, f.Height)
	}
	return b.String()
}

func cueTime(sec int) string {
	return fmt.Sprintf("%02d:%02d:%02d.000", sec/3600, (sec/60)%60, sec%60)
}

// ScaledSize fits srcW x srcH into maxW x maxH keeping the aspect ratio.
// Unknown source sizes yield the bounding box.
func ScaledSize(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	w, h := float64(srcW), float64(srcH)
	fw, fh := float64(maxW), float64(maxH)
	if w > fw {
		h = fw * h / w
		w = fw
		if h > fh {
			w = fh * float64(srcW) / float64(srcH)
			h = fh
		}
	} else if h > fh {
		w = fh * w / h
		h = fh
		if w > fw {
			h = fw * float64(srcH) / float64(srcW)
			w = fw
		}
	}
	return round(w, maxW), round(h, maxH)
}

func round(v float64, limit int) int {
	if c := int(math.Ceil(v)); c <= limit {
		return c
	}
	return int(math.Floor(v))
}
