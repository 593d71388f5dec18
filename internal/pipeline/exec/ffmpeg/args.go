// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// DefaultGOP is used when the source frame rate is unknown.
const DefaultGOP = 48

// SegmentDir is the working subfolder used by split encodes.
const SegmentDir = "segments"

// Segment selects one fixed-duration chunk of the source.
type Segment struct {
	Index    int
	Start    float64 // seconds
	Duration float64 // seconds
}

// VideoSpec is everything needed to encode one video rendition.
type VideoSpec struct {
	Input   string // local path or streaming URL
	Dir     string // working directory
	Base    string // source basename without extension
	Codec   model.Codec
	Quality int
	Params  []string // codec parameter list, e.g. "-c:v libx264 -preset veryslow"
	Source  model.SourceInfo
	Setting *model.EncodingSetting
	Tune    string
	Segment *Segment
}

// AudioSpec is everything needed to encode one audio rendition.
type AudioSpec struct {
	Input      string
	Dir        string
	Base       string
	Codec      model.AudioCodec
	Channels   int
	Downmix    bool
	TrackIndex int
	Params     []string
}

// GOPSize returns the keyframe interval for a source frame rate.
func GOPSize(fps float64) int {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return DefaultGOP
	}
	g := int(math.Round(fps * 2))
	if g < 1 {
		return DefaultGOP
	}
	return g
}

// RenditionPath is the canonical output file of a video rendition.
func RenditionPath(dir, base string, quality int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.mp4", base, quality))
}

// SegmentPath is the output file of one segment of a split encode.
func SegmentPath(dir, base string, quality, index int) string {
	return filepath.Join(dir, SegmentDir, fmt.Sprintf("%s_%d_%05d.mp4", base, quality, index))
}

// ConcatListPath is the concat demuxer list for a split rendition.
func ConcatListPath(dir, base string, quality int) string {
	return filepath.Join(dir, SegmentDir, fmt.Sprintf("%s_%d.txt", base, quality))
}

// AudioPath is the output file of an audio rendition.
func AudioPath(dir, base string, trackIndex int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_audio_%d.mp4", base, trackIndex))
}

// PassLogPrefix is shared by both passes of a two-pass encode.
func PassLogPrefix(dir, base string) string {
	return filepath.Join(dir, base+"_2pass.log")
}

func nullSink() string {
	if runtime.GOOS == "windows" {
		return "NUL"
	}
	return "/dev/null"
}

// OutputPath returns where s writes its encoded video.
func (s VideoSpec) OutputPath() string {
	if s.Segment != nil {
		return SegmentPath(s.Dir, s.Base, s.Quality, s.Segment.Index)
	}
	return RenditionPath(s.Dir, s.Base, s.Quality)
}

// BuildVideoArgs returns one argument list per pass: a single list for
// CRF families and two lists (analysis, output) for two-pass families.
func BuildVideoArgs(s VideoSpec) [][]string {
	switch s.Codec {
	case model.CodecH264, model.CodecH265:
		return [][]string{SinglePassArgs(s)}
	case model.CodecVP9, model.CodecAV1:
		p1, p2 := TwoPassArgs(s)
		return [][]string{p1, p2}
	}
	return nil
}

// SinglePassArgs builds a CRF encode writing s.OutputPath().
func SinglePassArgs(s VideoSpec) []string {
	args := videoHead(s)
	args = append(args,
		"-map", "0:v:0",
		"-map_chapters", "-1",
		"-vf", VideoFilter(s.Codec, s.Quality, s.Source.HDR),
		"-f", "mp4",
		s.OutputPath(),
	)
	return args
}

// TwoPassArgs builds both passes. Pass 1 drops audio and writes to a null
// sink; pass 2 reads the pass 1 log and writes s.OutputPath().
func TwoPassArgs(s VideoSpec) (pass1, pass2 []string) {
	logPrefix := PassLogPrefix(s.Dir, s.Base)
	filter := VideoFilter(s.Codec, s.Quality, s.Source.HDR)

	pass1 = videoHead(s)
	pass1 = append(pass1,
		"-map", "0:v:0",
		"-vf", filter,
		"-passlogfile", logPrefix,
		"-pass", "1", "-an",
		"-f", "null", nullSink(),
	)

	pass2 = videoHead(s)
	pass2 = append(pass2,
		"-map", "0:v:0",
		"-map_chapters", "-1",
		"-vf", filter,
		"-passlogfile", logPrefix,
		"-pass", "2",
		"-f", "mp4",
		s.OutputPath(),
	)
	return pass1, pass2
}

func videoHead(s VideoSpec) []string {
	gop := strconv.Itoa(GOPSize(s.Source.FPS))
	args := []string{
		"-hide_banner", "-y",
		"-progress", "pipe:1",
		"-loglevel", "error",
	}
	if s.Segment != nil {
		args = append(args, "-ss", formatSeconds(s.Segment.Start))
	}
	args = append(args, "-i", s.Input)
	if s.Segment != nil && s.Segment.Duration > 0 {
		args = append(args, "-t", formatSeconds(s.Segment.Duration))
	}
	args = append(args, s.Params...)
	args = append(args,
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
	)
	if s.Setting != nil {
		args = append(args, RateControlArgs(s.Codec, *s.Setting, s.Source)...)
	}
	if s.Codec == model.CodecH264 {
		args = append(args, h264Args(s)...)
	}
	return args
}

// RateControlArgs emits the quality value and bitrate cap for codec.
// When UseLowerRate is set and the source bitrate baseline is below the
// configured cap, the cap follows the source instead.
func RateControlArgs(codec model.Codec, set model.EncodingSetting, src model.SourceInfo) []string {
	var args []string
	if q := qualityValue(codec, set); q > 0 {
		args = append(args, "-crf", strconv.Itoa(q))
	}

	base := src.Bitrate
	if !strings.EqualFold(src.Codec, "h264") {
		base *= 2
	}
	maxRate, bufSize := set.MaxRate, set.BufSize
	if set.UseLowerRate && base > 0 && base < set.MaxRate {
		maxRate, bufSize = base, base*2
	}
	if set.MaxRate > 0 {
		args = append(args, "-maxrate", fmt.Sprintf("%dK", maxRate))
	}
	if set.BufSize > 0 {
		args = append(args, "-bufsize", fmt.Sprintf("%dK", bufSize))
	}
	return args
}

func qualityValue(codec model.Codec, set model.EncodingSetting) int {
	switch codec {
	case model.CodecH264:
		return set.CRF
	case model.CodecH265:
		return set.H265CRF
	case model.CodecVP9, model.CodecAV1:
		return set.CQ
	}
	return 0
}

// HighQualityThreshold is the first rung that gets an explicit H264 level.
const HighQualityThreshold = 1440

func h264Args(s VideoSpec) []string {
	var args []string
	if s.Tune != "" {
		args = append(args, "-tune", s.Tune)
	}
	if s.Quality >= HighQualityThreshold {
		if level, ok := H264Level(s.Source.Width, s.Source.Height, s.Quality, s.Source.FPS); ok {
			args = append(args, "-level:v", level)
		}
	}
	if s.Source.EncoderSettings != "" {
		if p := X264Params(s.Source.EncoderSettings, s.Source.Height == s.Quality); p != "" {
			args = append(args, "-x264-params", p)
		}
	}
	return args
}

const tonemapChain = "zscale=t=linear:npl=100,format=gbrpf32le,zscale=p=bt709," +
	"tonemap=tonemap=hable:desat=0,zscale=t=bt709:m=bt709:r=tv,format="

// VideoFilter returns the -vf chain. HDR sources are tone mapped to a pixel
// format matching the codec family before scaling.
func VideoFilter(codec model.Codec, quality int, hdr bool) string {
	scale := fmt.Sprintf("scale=-2:%d", quality)
	if !hdr {
		return scale
	}
	return tonemapChain + PixelFormat(codec) + "," + scale
}

// PixelFormat is the tone-mapping target for codec.
func PixelFormat(codec model.Codec) string {
	switch codec {
	case model.CodecH264:
		return "yuv420p"
	case model.CodecH265, model.CodecVP9, model.CodecAV1:
		return "yuv420p10le"
	}
	return "yuv420p"
}

// Stereo down-mix for the AAC family. The LFE is low-passed before mixing.
const aacDownmixFilter = "lowpass=c=LFE:f=120," +
	"pan=stereo|FL=.3FL+.21FC+.3FLC+.21SL+.21BL+.15BC+.21LFE|FR=.3FR+.21FC+.3FRC+.21SR+.21BR+.15BC+.21LFE," +
	"volume=1.6"

// MaxAudioChannels is the 7.1 limit shared by both audio families.
const MaxAudioChannels = 8

// OpusBitrate returns the -b:a value in kbit/s, or 0 to leave it to params.
func OpusBitrate(codec model.AudioCodec, channels int) int {
	switch codec {
	case model.AudioOpus:
		return 128
	case model.AudioOpusSurround:
		return 64 * channels
	}
	return 0
}

// BuildAudioArgs builds one audio encode.
func BuildAudioArgs(a AudioSpec) []string {
	args := []string{
		"-hide_banner", "-y",
		"-progress", "pipe:1",
		"-loglevel", "error",
		"-i", a.Input,
		"-vn",
	}
	if br := OpusBitrate(a.Codec, a.Channels); br > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dK", br))
	}
	args = append(args, a.Params...)

	switch {
	case a.Downmix && a.Codec == model.AudioAAC:
		args = append(args, "-af", aacDownmixFilter)
	case a.Downmix && a.Codec == model.AudioOpus:
		args = append(args, "-ac", "2", "-mapping_family", "0")
	case !a.Downmix && a.Channels > 2:
		args = append(args, "-ac", strconv.Itoa(min(a.Channels, MaxAudioChannels)))
		if a.Codec == model.AudioOpusSurround {
			args = append(args, "-mapping_family", "1")
		}
	}

	args = append(args,
		"-map", fmt.Sprintf("0:%d", a.TrackIndex),
		"-map_chapters", "-1",
		"-f", "mp4",
		AudioPath(a.Dir, a.Base, a.TrackIndex),
	)
	return args
}

// ConcatArgs merges the segments listed in listFile with a stream copy.
func ConcatArgs(listFile, output string) []string {
	return []string{
		"-hide_banner", "-y",
		"-progress", "pipe:1",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-map", "0",
		"-c", "copy",
		"-f", "mp4",
		output,
	}
}

// ConcatList renders the concat demuxer list for paths.
func ConcatList(paths []string) []byte {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return []byte(b.String())
}

// SplitParams turns a space separated parameter string into a list.
func SplitParams(s string) []string {
	return strings.Fields(s)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
