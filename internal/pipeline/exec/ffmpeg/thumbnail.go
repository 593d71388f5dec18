// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"path/filepath"
)

const thumbnailTonemap = "zscale=t=linear:npl=100,format=gbrpf32le,tonemap=tonemap=mobius:desat=0," +
	"zscale=p=bt709:t=bt709:m=bt709:r=tv:d=error_diffusion,format=yuv420p"

// SpriteSpec describes one sprite sheet set: one frame per second scaled to
// Width x Height and tiled Cols x Rows per page.
type SpriteSpec struct {
	Input  string
	Dir    string
	Prefix string
	Width  int
	Height int
	Cols   int
	Rows   int
	HDR    bool
}

// SpritePattern is the image2 output pattern of a sprite set. Pages are
// numbered from zero.
func SpritePattern(dir, prefix string) string {
	return filepath.Join(dir, prefix+"%d.jpg")
}

// SpriteArgs builds the sprite sheet encode for s.
func SpriteArgs(s SpriteSpec) []string {
	filter := "fps=1/1"
	if s.HDR {
		filter += "," + thumbnailTonemap
	}
	filter += fmt.Sprintf(",scale=%d:%d,tile=%dx%d", s.Width, s.Height, s.Cols, s.Rows)
	return []string{
		"-hide_banner", "-y",
		"-progress", "pipe:1",
		"-loglevel", "error",
		"-i", s.Input,
		"-an", "-sn",
		"-vf", filter,
		"-qscale:v", "3",
		"-start_number", "0",
		"-f", "image2",
		SpritePattern(s.Dir, s.Prefix),
	}
}
