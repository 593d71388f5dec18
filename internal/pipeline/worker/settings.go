// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"fmt"

	"github.com/ManuGH/transcoderd/internal/pipeline/audio"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/store"
)

// Effective overlays the stored settings onto the configured defaults.
// A stored field wins when it is set.
func Effective(defaults, stored store.Settings) store.Settings {
	out := defaults
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if len(stored.QualityList) > 0 {
		out.QualityList = stored.QualityList
	}
	if len(stored.EncodingSettings) > 0 {
		out.EncodingSettings = stored.EncodingSettings
	}
	pick(&out.AudioParams, stored.AudioParams)
	pick(&out.AudioSpeedParams, stored.AudioSpeedParams)
	pick(&out.AudioSurroundParams, stored.AudioSurroundParams)
	pick(&out.AudioSurroundOpusParams, stored.AudioSurroundOpusParams)
	pick(&out.VideoH264Params, stored.VideoH264Params)
	pick(&out.VideoH265Params, stored.VideoH265Params)
	pick(&out.VideoVP9Params, stored.VideoVP9Params)
	pick(&out.VideoAV1Params, stored.VideoAV1Params)
	return out
}

// AudioParams splits the four audio parameter strings.
func AudioParams(s store.Settings) audio.Params {
	return audio.Params{
		AAC:          ffmpeg.SplitParams(s.AudioParams),
		Opus:         ffmpeg.SplitParams(s.AudioSpeedParams),
		AACSurround:  ffmpeg.SplitParams(s.AudioSurroundParams),
		OpusSurround: ffmpeg.SplitParams(s.AudioSurroundOpusParams),
	}
}

// VideoParams returns the encoder parameter list of codec.
func VideoParams(codec model.Codec, s store.Settings) ([]string, error) {
	var p string
	switch codec {
	case model.CodecH264:
		p = s.VideoH264Params
	case model.CodecH265:
		p = s.VideoH265Params
	case model.CodecVP9:
		p = s.VideoVP9Params
	case model.CodecAV1:
		p = s.VideoAV1Params
	default:
		return nil, fmt.Errorf("unsupported codec %d", int(codec))
	}
	return ffmpeg.SplitParams(p), nil
}
