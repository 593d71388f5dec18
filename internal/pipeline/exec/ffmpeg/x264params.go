// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import "strings"

// x264 options that can be replayed from a source's encoder settings.
var sameResolutionX264Keys = keySet(
	"cabac", "ref", "deblock", "analyse", "me", "subme", "psy", "psy_rd", "mixed_ref", "me_range",
	"chroma_me", "trellis", "8x8dct", "deadzone", "fast_pskip", "nr", "decimate", "interlaced",
	"bluray_compat", "constrained_intra", "bframes", "b_pyramid", "b_adapt", "b_bias", "direct",
	"weightb", "weightp", "scenecut", "intra_refresh", "rc_lookahead", "mbtree", "nal_hrd", "filler",
	"ip_ratio", "aq",
)

// Rescaled encodes drop chroma_me, b_adapt and direct.
var rescaledX264Keys = keySet(
	"cabac", "ref", "deblock", "analyse", "me", "subme", "psy", "psy_rd", "mixed_ref", "me_range",
	"trellis", "8x8dct", "deadzone", "fast_pskip", "nr", "decimate", "interlaced", "bluray_compat",
	"constrained_intra", "bframes", "b_pyramid", "b_bias", "weightb", "weightp", "scenecut",
	"intra_refresh", "rc_lookahead", "mbtree", "nal_hrd", "filler", "ip_ratio", "aq",
)

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// X264Params filters an encoder settings string ("cabac=1 / ref=4 / ...")
// down to a -x264-params value. Colons inside values are escaped.
func X264Params(settings string, sameResolution bool) string {
	if settings == "" {
		return ""
	}
	allowed := rescaledX264Keys
	if sameResolution {
		allowed = sameResolutionX264Keys
	}
	escaped := strings.ReplaceAll(settings, ":", `\:`)
	var kept []string
	for _, opt := range strings.Split(escaped, " / ") {
		key, _, _ := strings.Cut(opt, "=")
		if _, ok := allowed[strings.TrimSpace(key)]; ok {
			kept = append(kept, strings.TrimSpace(opt))
		}
	}
	return strings.Join(kept, ":")
}
