// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manifest aggregates packaged renditions into the stream manifest
// a player uses to request adaptive playback.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ManuGH/transcoderd/internal/fsutil"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

const (
	version         = 7
	segmentDuration = 6
	playlistType    = "VOD"
	audioGroup      = "audio"
	defaultLanguage = "en"
)

// Manifest is the serialized form uploaded as manifest_<codec>.json.
type Manifest struct {
	Version         int          `json:"version"`
	VideoTracks     []VideoTrack `json:"videoTracks"`
	AudioTracks     []AudioTrack `json:"audioTracks"`
	TargetDuration  float64      `json:"targetDuration"`
	SegmentDuration int          `json:"segmentDuration"`
	MediaSequence   int          `json:"mediaSequence"`
	PlaylistType    string       `json:"playlistType"`
}

// VideoTrack describes one video rendition.
type VideoTrack struct {
	Codec       string        `json:"codec"`
	CodecID     int           `json:"codecID"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Par         string        `json:"par,omitempty"`
	Bandwidth   int64         `json:"bandwidth"`
	Duration    float64       `json:"duration"`
	Format      string        `json:"format"`
	MimeType    string        `json:"mimeType"`
	FrameRate   float64       `json:"frameRate"`
	Language    string        `json:"language,omitempty"`
	HLSSegment  *SegmentGroup `json:"hlsSegment,omitempty"`
	DashSegment DashSegment   `json:"dashSegment"`
	URI         string        `json:"uri"`
}

// AudioTrack describes one audio rendition.
type AudioTrack struct {
	Name         string        `json:"name"`
	Group        string        `json:"group"`
	Default      bool          `json:"default"`
	Autoselect   bool          `json:"autoselect"`
	Language     string        `json:"language"`
	Format       string        `json:"format"`
	Channels     int           `json:"channels"`
	SamplingRate int           `json:"samplingRate"`
	Codec        string        `json:"codec"`
	CodecID      int           `json:"codecID"`
	Bandwidth    int64         `json:"bandwidth"`
	Duration     float64       `json:"duration"`
	MimeType     string        `json:"mimeType"`
	HLSSegment   *SegmentGroup `json:"hlsSegment,omitempty"`
	DashSegment  DashSegment   `json:"dashSegment"`
	URI          string        `json:"uri"`
}

// DashSegment is the on-demand profile index of a rendition.
type DashSegment struct {
	MinBufferTime             float64 `json:"minBufferTime"`
	MediaPresentationDuration float64 `json:"mediaPresentationDuration"`
	MaxSubsegmentDuration     float64 `json:"maxSubsegmentDuration"`
	IndexRange                Range   `json:"indexRange"`
	InitRange                 Range   `json:"initRange"`
}

// Range is an inclusive byte range.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Files are the packaging sidecars read for one rendition.
type Files struct {
	MPD      string
	Playlist string
}

// VideoMeta is what the caller knows about a packaged video rendition.
type VideoMeta struct {
	Width     int
	Height    int
	Format    string
	MimeType  string
	FrameRate float64
	Language  string
	Codec     model.Codec
	URI       string
}

// AudioMeta is what the caller knows about a packaged audio rendition.
type AudioMeta struct {
	Format       string
	MimeType     string
	Default      bool
	Language     string
	Channels     int
	SamplingRate int
	Codec        model.AudioCodec
	URI          string
}

// Builder accumulates tracks in the order they are appended.
type Builder struct {
	mu sync.Mutex
	m  Manifest
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{m: Manifest{
		Version:         version,
		VideoTracks:     []VideoTrack{},
		AudioTracks:     []AudioTrack{},
		SegmentDuration: segmentDuration,
		PlaylistType:    playlistType,
	}}
}

// AppendVideo reads the sidecars of a packaged video rendition and appends
// its track.
func (b *Builder) AppendVideo(f Files, meta VideoMeta) error {
	mpd, seg, err := readSidecars(f)
	if err != nil {
		return err
	}
	rep := mpd.Period.AdaptationSet.Representation
	dash, err := mpd.dashSegment()
	if err != nil {
		return err
	}
	periodDur, err := ParseISODuration(mpd.Period.Duration)
	if err != nil {
		return fmt.Errorf("period duration: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.setTargetDuration(dash.MediaPresentationDuration)
	b.m.VideoTracks = append(b.m.VideoTracks, VideoTrack{
		Codec:       rep.Codecs,
		CodecID:     int(meta.Codec),
		Width:       meta.Width,
		Height:      meta.Height,
		Par:         mpd.Period.AdaptationSet.Par,
		Bandwidth:   rep.Bandwidth,
		Duration:    periodDur,
		Format:      meta.Format,
		MimeType:    meta.MimeType,
		FrameRate:   meta.FrameRate,
		Language:    meta.Language,
		HLSSegment:  seg,
		DashSegment: dash,
		URI:         meta.URI,
	})
	return nil
}

// AppendAudio reads the sidecars of a packaged audio rendition and appends
// its track.
func (b *Builder) AppendAudio(f Files, meta AudioMeta) error {
	mpd, seg, err := readSidecars(f)
	if err != nil {
		return err
	}
	rep := mpd.Period.AdaptationSet.Representation
	dash, err := mpd.dashSegment()
	if err != nil {
		return err
	}
	periodDur, err := ParseISODuration(mpd.Period.Duration)
	if err != nil {
		return fmt.Errorf("period duration: %w", err)
	}
	lang := meta.Language
	if lang == "" {
		lang = defaultLanguage
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.setTargetDuration(dash.MediaPresentationDuration)
	b.m.AudioTracks = append(b.m.AudioTracks, AudioTrack{
		Name:         AudioName(meta.Format, meta.Channels, meta.Codec),
		Group:        audioGroup,
		Default:      meta.Default,
		Autoselect:   meta.Default,
		Language:     lang,
		Format:       meta.Format,
		Channels:     meta.Channels,
		SamplingRate: meta.SamplingRate,
		Codec:        lower(rep.Codecs),
		CodecID:      int(meta.Codec),
		Bandwidth:    rep.Bandwidth,
		Duration:     periodDur,
		MimeType:     meta.MimeType,
		HLSSegment:   seg,
		DashSegment:  dash,
		URI:          meta.URI,
	})
	return nil
}

// The first rendition of the run decides the target duration.
func (b *Builder) setTargetDuration(d float64) {
	if b.m.TargetDuration == 0 {
		b.m.TargetDuration = d
	}
}

// Len returns the number of tracks appended so far.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.m.VideoTracks) + len(b.m.AudioTracks)
}

// Snapshot returns a copy of the current manifest.
func (b *Builder) Snapshot() Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.m
	m.VideoTracks = append([]VideoTrack{}, b.m.VideoTracks...)
	m.AudioTracks = append([]AudioTrack{}, b.m.AudioTracks...)
	return m
}

// Marshal serializes the manifest.
func (b *Builder) Marshal() ([]byte, error) {
	m := b.Snapshot()
	return json.Marshal(m)
}

// Save writes the manifest to path atomically.
func (b *Builder) Save(ctx context.Context, path string) error {
	data, err := b.Marshal()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return fsutil.WriteFileAtomic(ctx, path, data, 0o644)
}

// FileName is the manifest name for a codec pass.
func FileName(codec model.Codec) string {
	return fmt.Sprintf("manifest_%d.json", int(codec))
}

// AudioName labels an audio track for player menus.
func AudioName(format string, channels int, codec model.AudioCodec) string {
	switch channels {
	case 1:
		return format + " Mono"
	case 2:
		return format + " Stereo"
	}
	return fmt.Sprintf("%s %d.1 - %d", format, channels-1, int(codec))
}

func readSidecars(f Files) (*MPD, *SegmentGroup, error) {
	raw, err := os.ReadFile(f.MPD)
	if err != nil {
		return nil, nil, fmt.Errorf("read mpd: %w", err)
	}
	mpd, err := ParseMPD(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(f.MPD), err)
	}
	pl, err := os.ReadFile(f.Playlist)
	if err != nil {
		return nil, nil, fmt.Errorf("read playlist: %w", err)
	}
	seg, err := ParsePlaylist(string(pl))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(f.Playlist), err)
	}
	return mpd, seg, nil
}
