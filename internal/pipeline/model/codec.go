// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"strings"
)

// Codec is the closed set of video codec families a worker slot can produce.
// The numeric values are the wire ids exchanged with the producer.
type Codec int

const (
	CodecH264 Codec = 1
	CodecVP9  Codec = 2
	CodecAV1  Codec = 4
	CodecH265 Codec = 8
)

// AllCodecs lists every codec family in canonical order.
var AllCodecs = []Codec{CodecH264, CodecH265, CodecVP9, CodecAV1}

// CanonicalCodec is the codec pass that also produces audio and thumbnails.
const CanonicalCodec = CodecH264

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecVP9:
		return "vp9"
	case CodecAV1:
		return "av1"
	}
	return fmt.Sprintf("codec(%d)", int(c))
}

// Valid reports whether c is one of the known codec families.
func (c Codec) Valid() bool {
	switch c {
	case CodecH264, CodecH265, CodecVP9, CodecAV1:
		return true
	}
	return false
}

// TwoPass reports whether renditions of this family are encoded in two passes.
func (c Codec) TwoPass() bool {
	switch c {
	case CodecVP9, CodecAV1:
		return true
	case CodecH264, CodecH265:
		return false
	}
	return false
}

// IsCanonical reports whether c is the codec pass that carries audio.
func (c Codec) IsCanonical() bool {
	return c == CanonicalCodec
}

// ParseCodec accepts the family name ("h264", "hevc", ...) or its wire id.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h264", "avc", "1":
		return CodecH264, nil
	case "h265", "hevc", "8":
		return CodecH265, nil
	case "vp9", "2":
		return CodecVP9, nil
	case "av1", "4":
		return CodecAV1, nil
	}
	return 0, fmt.Errorf("unknown codec %q", s)
}

// AudioCodec identifies an audio rendition variant.
type AudioCodec int

const (
	AudioAAC          AudioCodec = 1
	AudioOpus         AudioCodec = 2
	AudioAACSurround  AudioCodec = 4
	AudioOpusSurround AudioCodec = 8
)

func (c AudioCodec) String() string {
	switch c {
	case AudioAAC:
		return "aac"
	case AudioOpus:
		return "opus"
	case AudioAACSurround:
		return "aac_surround"
	case AudioOpusSurround:
		return "opus_surround"
	}
	return fmt.Sprintf("audio(%d)", int(c))
}

// IsOpus reports whether the variant is encoded with the opus family.
func (c AudioCodec) IsOpus() bool {
	return c == AudioOpus || c == AudioOpusSurround
}

// IsSurround reports whether the variant keeps more than two channels.
func (c AudioCodec) IsSurround() bool {
	return c == AudioAACSurround || c == AudioOpusSurround
}
