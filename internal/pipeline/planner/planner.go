// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package planner decides which renditions a job run still has to produce.
package planner

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// DefaultLadder is used when no quality list is configured.
var DefaultLadder = []int{2160, 1440, 1080, 720, 480, 360}

// ErrUnknownHeight means the source has no usable video height. Callers
// must fail the job as a probe error.
var ErrUnknownHeight = errors.New("unknown source height")

// Input collects everything PlanQualities looks at.
type Input struct {
	SourceHeight int
	Ladder       []int
	Forced       []int
	// Fallback is used when no rung fits the source. Empty means the lowest
	// ladder rung.
	Fallback []int
	Resuming bool
	Produced []int
}

// Plan is the rendition plan of one run. It is immutable once computed.
type Plan struct {
	Qualities []int
	// Candidates is the full ladder for the source before subtracting
	// already produced renditions.
	Candidates []int
	// NothingToDo is set when every candidate already exists.
	NothingToDo bool
	// ClearRemote asks the caller to empty the remote output folder before
	// encoding, because an interrupted run may have left partial files.
	ClearRemote bool
}

// PlanQualities computes the rendition plan.
func PlanQualities(in Input) (Plan, error) {
	if in.SourceHeight <= 0 {
		return Plan{}, ErrUnknownHeight
	}
	ladder := in.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}

	candidates := Candidates(in.SourceHeight, ladder, in.Forced)
	if len(candidates) == 0 {
		candidates = fallback(ladder, in.Fallback)
	}
	if len(candidates) == 0 {
		return Plan{}, fmt.Errorf("empty quality ladder")
	}

	plan := Plan{Candidates: candidates}
	if in.Resuming {
		plan.Qualities = slices.Clone(candidates)
	} else {
		for _, q := range candidates {
			if !slices.Contains(in.Produced, q) {
				plan.Qualities = append(plan.Qualities, q)
			}
		}
		if len(plan.Qualities) == 0 {
			plan.NothingToDo = true
			return plan, nil
		}
	}
	plan.ClearRemote = in.Resuming && len(plan.Qualities) == len(candidates)
	return plan, nil
}

// Candidates returns the ladder rungs not above height plus every forced
// rung, in ladder order followed by forced rungs outside the ladder.
func Candidates(height int, ladder, forced []int) []int {
	var out []int
	for _, q := range ladder {
		if (q <= height || slices.Contains(forced, q)) && !slices.Contains(out, q) {
			out = append(out, q)
		}
	}
	for _, q := range forced {
		if q > 0 && !slices.Contains(out, q) {
			out = append(out, q)
		}
	}
	return out
}

func fallback(ladder, explicit []int) []int {
	if len(explicit) > 0 {
		return slices.Clone(explicit)
	}
	if len(ladder) == 0 {
		return nil
	}
	return []int{slices.Min(ladder)}
}

// UploadedFile is one file found in the remote output folder.
type UploadedFile struct {
	StreamID string
	Name     string
}

// RegisteredStream is one rendition recorded on the source.
type RegisteredStream struct {
	ID      string
	Codec   int
	Quality int
}

// Produced returns the candidate qualities already present for codec: the
// rendition file exists remotely under a stream folder that is registered
// on the source and not scheduled for replacement.
func Produced(base string, candidates []int, files []UploadedFile, streams []RegisteredStream,
	codec model.Codec, replace []string) []int {
	uploaded := make(map[string]struct{})
	for _, f := range files {
		if f.StreamID == "" || slices.Contains(replace, f.StreamID) {
			continue
		}
		for _, q := range candidates {
			if f.Name == fmt.Sprintf("%s_%d.mp4", base, q) {
				uploaded[f.StreamID] = struct{}{}
				break
			}
		}
	}

	var out []int
	for _, s := range streams {
		if s.Codec != int(codec) {
			continue
		}
		if _, ok := uploaded[s.ID]; !ok {
			continue
		}
		if slices.Contains(candidates, s.Quality) && !slices.Contains(out, s.Quality) {
			out = append(out, s.Quality)
		}
	}
	return out
}
