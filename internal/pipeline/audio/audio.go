// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package audio encodes the audio renditions of a job: the primary
// normal and surround tracks plus any explicitly requested extra tracks,
// each in a compatible and an efficient codec.
package audio

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/metrics"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/manifest"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/pipeline/rendition"
)

const mimeType = "audio/mp4"

// Params are the encoder parameter lists per audio variant.
type Params struct {
	AAC          []string
	Opus         []string
	AACSurround  []string
	OpusSurround []string
}

// Reporter is notified once per uploaded audio rendition.
type Reporter interface {
	AudioAdded(ctx context.Context, job *model.Job, streamID, file string, codec model.AudioCodec, channels int) error
}

// Selection is the set of source tracks to encode.
type Selection struct {
	// Primary is encoded as the normal (stereo or mono) rendition. It is
	// down-mixed when it has more than two channels.
	Primary model.AudioTrack
	// Surround, when set, is encoded first and becomes the default track.
	Surround *model.AudioTrack
	Extras   []model.AudioTrack
}

// Select picks tracks from the probed list. The allow list defaults to the
// track with the default disposition, or the first track.
func Select(tracks []model.AudioTrack, opts model.AdvancedOptions) (Selection, error) {
	if len(tracks) == 0 {
		return Selection{}, fmt.Errorf("no audio tracks")
	}
	def := tracks[0]
	for _, t := range tracks {
		if t.Default {
			def = t
			break
		}
	}
	allowed := opts.SelectAudioTracks
	if len(allowed) == 0 {
		allowed = []int{def.Index}
	}

	var normal, surround *model.AudioTrack
	for i := range tracks {
		t := &tracks[i]
		if !slices.Contains(allowed, t.Index) {
			continue
		}
		if t.Channels <= 2 && normal == nil {
			normal = t
		}
		if t.Channels > 2 && surround == nil {
			surround = t
		}
	}

	sel := Selection{Primary: def}
	switch {
	case normal != nil:
		sel.Primary = *normal
	case surround != nil:
		sel.Primary = *surround
	}
	if surround != nil {
		s := *surround
		sel.Surround = &s
	}
	for _, t := range tracks {
		if normal != nil && t.Index == normal.Index {
			continue
		}
		if surround != nil && t.Index == surround.Index {
			continue
		}
		if slices.Contains(opts.ExtraAudioTracks, t.Index) {
			sel.Extras = append(sel.Extras, t)
		}
	}
	return sel, nil
}

// SurroundLayout reports whether channels is a 4.1 to 7.1 layout.
func SurroundLayout(channels int) bool {
	return channels >= 5 && channels <= ffmpeg.MaxAudioChannels
}

// Pipeline encodes and publishes audio renditions.
type Pipeline struct {
	env *rendition.Env
	rep Reporter
}

// New returns an audio pipeline.
func New(env *rendition.Env, rep Reporter) *Pipeline {
	return &Pipeline{env: env, rep: rep}
}

// Request is one audio pass of a job.
type Request struct {
	Job       *model.Job
	Workspace rendition.Workspace
	Source    model.SourceInfo
	Params    Params
	Manifest  *manifest.Builder
	// Language labels the primary tracks. Empty falls back to the language
	// read back from the rendition.
	Language string
}

type encode struct {
	track    model.AudioTrack
	codec    model.AudioCodec
	params   []string
	isDef    bool
	downmix  bool
	language string
}

// plan expands a selection into the ordered list of encodes.
func plan(sel Selection, p Params, lang string) []encode {
	var out []encode
	trackEncodes := func(t model.AudioTrack, surround, isDef, downmix bool, language string) {
		aac, opus := model.AudioAAC, model.AudioOpus
		aacParams, opusParams := p.AAC, p.Opus
		if surround {
			aac, opus = model.AudioAACSurround, model.AudioOpusSurround
			aacParams, opusParams = p.AACSurround, p.OpusSurround
		}
		out = append(out, encode{track: t, codec: aac, params: aacParams, isDef: isDef, downmix: downmix, language: language})
		if !surround || SurroundLayout(channelsOf(t, surround)) {
			out = append(out, encode{track: t, codec: opus, params: opusParams, downmix: downmix, language: language})
		}
	}

	if sel.Surround != nil {
		trackEncodes(*sel.Surround, true, true, false, lang)
	}
	trackEncodes(sel.Primary, false, sel.Surround == nil, sel.Primary.Channels > 2, lang)
	for _, t := range sel.Extras {
		trackEncodes(t, t.Channels > 2, false, false, t.Language)
	}
	return out
}

func channelsOf(t model.AudioTrack, surround bool) int {
	if t.Channels > 0 {
		return t.Channels
	}
	if surround {
		return 0
	}
	return 2
}

// Run encodes every selected track. Any failure aborts the pass.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	sel, err := Select(req.Source.AudioTracks, req.Job.Data.AdvancedOptions)
	if err != nil {
		return err
	}
	for _, e := range plan(sel, req.Params, req.Language) {
		if err := p.encodeOne(ctx, req, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) encodeOne(ctx context.Context, req Request, e encode) (err error) {
	job, ws := req.Job, req.Workspace
	logger := log.WithContext(ctx, log.WithComponent("audio")).With().
		Int(log.FieldTrack, e.track.Index).
		Str(log.FieldCodec, e.codec.String()).
		Logger()
	start := time.Now()

	streamID, err := p.env.StreamID()
	if err != nil {
		return err
	}
	logger = logger.With().Str(log.FieldStreamID, streamID).Logger()
	defer func() {
		if err == nil {
			return
		}
		logger.Warn().Err(err).Msg("removing unfinished stream")
		if perr := p.env.Discard(ctx, job, streamID); perr != nil {
			logger.Error().Err(perr).Msg("purge unfinished stream")
		}
	}()
	channels := channelsOf(e.track, e.codec.IsSurround())
	args := ffmpeg.BuildAudioArgs(ffmpeg.AudioSpec{
		Input:      ws.Source,
		Dir:        ws.Dir,
		Base:       ws.Base,
		Codec:      e.codec,
		Channels:   channels,
		Downmix:    e.downmix,
		TrackIndex: e.track.Index,
		Params:     e.params,
	})
	logger.Info().Int(log.FieldChannels, channels).Bool("downmix", e.downmix).Msg("encoding audio")
	if _, err := p.env.Runner.Run(ctx, supervisor.Invocation{
		Kind:     supervisor.KindEncode,
		Bin:      p.env.FFmpeg,
		Args:     args,
		Dir:      ws.Dir,
		JobID:    job.ID,
		Duration: req.Source.Duration,
	}); err != nil {
		return fmt.Errorf("encode audio track %d (%s): %w", e.track.Index, e.codec, err)
	}

	name := fmt.Sprintf("%s_audio_%d", ws.Base, e.track.Index)
	pk, err := p.env.Package(ctx, job, ws, name)
	if err != nil {
		return err
	}
	lang := e.language
	if lang == "" {
		lang = pk.Info.Language
	}
	file := pk.FileName()
	if err := req.Manifest.AppendAudio(pk.Files(), manifest.AudioMeta{
		Format:       pk.Info.Codec,
		MimeType:     mimeType,
		Default:      e.isDef,
		Language:     lang,
		Channels:     pk.Info.Channels,
		SamplingRate: pk.Info.SampleRate,
		Codec:        e.codec,
		URI:          rendition.URI(streamID, file),
	}); err != nil {
		return fmt.Errorf("manifest %s: %w", file, err)
	}
	if err := p.env.Upload(ctx, job, pk.Outputs.Media, streamID); err != nil {
		return err
	}
	if err := p.rep.AudioAdded(ctx, job, streamID, file, e.codec, pk.Info.Channels); err != nil {
		return err
	}
	metrics.RecordRendition("audio", e.codec.String(), time.Since(start).Seconds())
	logger.Info().Msg("audio rendition uploaded")
	return nil
}
