// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package probe derives source and rendition characteristics from ffprobe
// and mediainfo JSON output.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"golang.org/x/text/language"
)

var (
	ErrNoVideoTrack = errors.New("no video track")
	ErrNoAudioTrack = errors.New("no audio track")
)

// Prober runs ffprobe and mediainfo under the supervisor so that probing
// honors job cancellation.
type Prober struct {
	FFprobe   string
	MediaInfo string
	Runner    supervisor.Runner
}

// New returns a Prober using the given binaries.
func New(ffprobe, mediainfo string, runner supervisor.Runner) *Prober {
	return &Prober{FFprobe: ffprobe, MediaInfo: mediainfo, Runner: runner}
}

// Source probes the fetched source. Tool failures are returned wrapped;
// missing tracks are reported as ErrNoVideoTrack or ErrNoAudioTrack.
func (p *Prober) Source(ctx context.Context, jobID, path string) (model.SourceInfo, error) {
	ff, mi, err := p.run(ctx, jobID, path)
	if err != nil {
		return model.SourceInfo{}, err
	}
	return Assemble(ff, mi)
}

// Rendition reads back the real characteristics of a packaged rendition.
func (p *Prober) Rendition(ctx context.Context, jobID, path string) (model.RenditionInfo, error) {
	ff, mi, err := p.run(ctx, jobID, path)
	if err != nil {
		return model.RenditionInfo{}, err
	}
	return ReadBack(ff, mi)
}

func (p *Prober) run(ctx context.Context, jobID, path string) (*FFprobeResult, *MediaInfoResult, error) {
	res, err := p.Runner.Run(ctx, supervisor.Invocation{
		Kind:  supervisor.KindList,
		Bin:   p.FFprobe,
		Args:  []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path},
		JobID: jobID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ffprobe: %w", err)
	}
	ff, err := ParseFFprobe(res.Output)
	if err != nil {
		return nil, nil, err
	}

	res, err = p.Runner.Run(ctx, supervisor.Invocation{
		Kind:  supervisor.KindList,
		Bin:   p.MediaInfo,
		Args:  []string{path, "--Output=JSON"},
		JobID: jobID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mediainfo: %w", err)
	}
	mi, err := ParseMediaInfo(res.Output)
	if err != nil {
		return nil, nil, err
	}
	logger := log.WithContext(ctx, log.WithComponent("probe"))
	logger.Debug().
		Str(log.FieldPath, path).
		Int("streams", len(ff.Streams)).
		Msg("probed")
	return ff, mi, nil
}

// FFprobeResult is the subset of `ffprobe -show_streams -show_format` used.
type FFprobeResult struct {
	Streams []FFprobeStream `json:"streams"`
	Format  struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// FFprobeStream is one stream entry.
type FFprobeStream struct {
	Index         int               `json:"index"`
	CodecType     string            `json:"codec_type"`
	CodecName     string            `json:"codec_name"`
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	RFrameRate    string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate  string            `json:"avg_frame_rate,omitempty"`
	BitRate       string            `json:"bit_rate,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	SampleRate    string            `json:"sample_rate,omitempty"`
	ColorTransfer string            `json:"color_transfer,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	Disposition   map[string]int    `json:"disposition,omitempty"`
}

// ParseFFprobe decodes ffprobe JSON.
func ParseFFprobe(data []byte) (*FFprobeResult, error) {
	var r FFprobeResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	return &r, nil
}

// MediaInfoResult is the subset of `mediainfo --Output=JSON` used. Every
// value is a string in mediainfo's JSON.
type MediaInfoResult struct {
	Media struct {
		Track []MediaInfoTrack `json:"track"`
	} `json:"media"`
}

// MediaInfoTrack is one track entry.
type MediaInfoTrack struct {
	Type            string `json:"@type"`
	Format          string `json:"Format"`
	Duration        string `json:"Duration"`
	FrameRate       string `json:"FrameRate"`
	BitRate         string `json:"BitRate"`
	Width           string `json:"Width"`
	Height          string `json:"Height"`
	Channels        string `json:"Channels"`
	SamplingRate    string `json:"SamplingRate"`
	Language        string `json:"Language"`
	HDRFormat       string `json:"HDR_Format"`
	EncodedSettings string `json:"Encoded_Library_Settings"`
}

// ParseMediaInfo decodes mediainfo JSON.
func ParseMediaInfo(data []byte) (*MediaInfoResult, error) {
	var r MediaInfoResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode mediainfo output: %w", err)
	}
	return &r, nil
}

func (r *MediaInfoResult) track(typ string) *MediaInfoTrack {
	if r == nil {
		return nil
	}
	for i := range r.Media.Track {
		if r.Media.Track[i].Type == typ {
			return &r.Media.Track[i]
		}
	}
	return nil
}

func (r *FFprobeResult) first(codecType string) *FFprobeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == codecType {
			return &r.Streams[i]
		}
	}
	return nil
}

// Assemble combines both probes into SourceInfo.
func Assemble(ff *FFprobeResult, mi *MediaInfoResult) (model.SourceInfo, error) {
	var info model.SourceInfo
	v := ff.first("video")
	miv := mi.track("Video")
	if v == nil || miv == nil {
		return info, ErrNoVideoTrack
	}

	for _, s := range ff.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info.AudioTracks = append(info.AudioTracks, model.AudioTrack{
			Index:    s.Index,
			Channels: s.Channels,
			Language: NormalizeLanguage(s.Tags["language"]),
			Codec:    s.CodecName,
			Default:  s.Disposition["default"] == 1,
		})
	}
	if len(info.AudioTracks) == 0 {
		return info, ErrNoAudioTrack
	}

	runtime := math.Trunc(parseFloat(ff.Format.Duration))
	info.Duration = runtime
	if d := parseFloat(v.Duration); d > 0 {
		info.Duration = math.Trunc(d)
	}

	info.FPS = parseFloat(miv.FrameRate)
	if info.FPS <= 0 {
		info.FPS = parseRatio(v.RFrameRate)
	}
	if info.FPS <= 0 {
		info.FPS = parseRatio(v.AvgFrameRate)
	}

	if br := parseFloat(v.BitRate); br > 0 {
		info.Bitrate = int(math.Round(br / 1000))
	} else if br := parseFloat(miv.BitRate); br > 0 {
		info.Bitrate = int(math.Round(br / 1000))
	}

	info.Codec = v.CodecName
	if strings.EqualFold(v.CodecName, "h264") {
		info.EncoderSettings = miv.EncodedSettings
	}
	info.Width = v.Width
	info.Height = v.Height
	info.HDR = isHDR(v.ColorTransfer) || miv.HDRFormat != ""
	return info, nil
}

// Runtime returns the container duration in whole seconds.
func Runtime(ff *FFprobeResult) float64 {
	return math.Trunc(parseFloat(ff.Format.Duration))
}

func isHDR(transfer string) bool {
	switch transfer {
	case "smpte2084", "arib-std-b67":
		return true
	}
	return false
}

// ReadBack extracts rendition characteristics, preferring mediainfo.
func ReadBack(ff *FFprobeResult, mi *MediaInfoResult) (model.RenditionInfo, error) {
	var out model.RenditionInfo
	if miv := mi.track("Video"); miv != nil {
		out.Codec = miv.Format
		out.Width = parseInt(miv.Width)
		out.Height = parseInt(miv.Height)
		out.FPS = parseFloat(miv.FrameRate)
		if out.FPS <= 0 {
			if g := mi.track("General"); g != nil {
				out.FPS = parseFloat(g.FrameRate)
			}
		}
		out.Bitrate = parseInt(miv.BitRate)
		out.Language = NormalizeLanguage(miv.Language)
		return out, nil
	}

	mia := mi.track("Audio")
	a := ff.first("audio")
	if mia == nil || a == nil {
		return out, errors.New("no encoded track found")
	}
	out.Codec = mia.Format
	out.Channels = parseInt(mia.Channels)
	if out.Channels == 0 {
		out.Channels = a.Channels
	}
	if out.Channels == 0 {
		out.Channels = 2
	}
	out.SampleRate = parseInt(mia.SamplingRate)
	if out.SampleRate == 0 {
		out.SampleRate = parseInt(a.SampleRate)
	}
	out.Bitrate = parseInt(mia.BitRate)
	out.Language = NormalizeLanguage(mia.Language)
	return out, nil
}

// NormalizeLanguage maps ISO 639-2 tags like "eng" to their shortest BCP 47
// base ("en"). Unknown or undetermined tags yield "".
func NormalizeLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.EqualFold(tag, "und") {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	base, conf := t.Base()
	if conf == language.No {
		return strings.ToLower(tag)
	}
	return base.String()
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseInt(s string) int {
	return int(parseFloat(s))
}

func parseRatio(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}
