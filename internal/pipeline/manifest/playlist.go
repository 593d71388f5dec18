// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ByteRange addresses a part of the single packaged media file.
type ByteRange struct {
	Length int64 `json:"length"`
	Offset int64 `json:"offset"`
}

// Segment is one media segment of the byte-range playlist.
type Segment struct {
	Timeline  int        `json:"timeline"`
	Duration  float64    `json:"duration"`
	ByteRange *ByteRange `json:"byterange,omitempty"`
}

// SegmentGroup is the init range plus the ordered media segments.
type SegmentGroup struct {
	ByteRange *ByteRange `json:"byterange,omitempty"`
	Segments  []Segment  `json:"segments"`
}

// ParsePlaylist extracts the segment layout of a byte-range media playlist.
// It returns nil when the playlist has no segments.
func ParsePlaylist(playlist string) (*SegmentGroup, error) {
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	group := &SegmentGroup{}

	var (
		nextDuration float64
		nextRange    *ByteRange
		mapRange     *ByteRange
		timeline     int
		nextOffset   int64
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "#EXT-X-DISCONTINUITY":
			timeline++
			continue

		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-MAP:"))
			if v, ok := attrs["BYTERANGE"]; ok {
				br, err := parseByteRange(v, 0)
				if err != nil {
					return nil, fmt.Errorf("invalid EXT-X-MAP byterange: %w", err)
				}
				mapRange = br
			}
			continue

		case strings.HasPrefix(line, "#EXTINF:"):
			// Format: #EXTINF:6.000,
			durPart := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(durPart, ","); idx != -1 {
				durPart = durPart[:idx]
			}
			secs, err := strconv.ParseFloat(durPart, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid EXTINF duration: %s", durPart)
			}
			nextDuration = secs
			continue

		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			br, err := parseByteRange(strings.TrimPrefix(line, "#EXT-X-BYTERANGE:"), nextOffset)
			if err != nil {
				return nil, err
			}
			nextRange = br
			continue

		case strings.HasPrefix(line, "#"):
			continue
		}

		// URI line closes a segment.
		seg := Segment{Timeline: timeline, Duration: nextDuration, ByteRange: nextRange}
		if nextRange != nil {
			nextOffset = nextRange.Offset + nextRange.Length
		}
		group.Segments = append(group.Segments, seg)
		nextDuration = 0
		nextRange = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(group.Segments) == 0 {
		return nil, nil
	}
	group.ByteRange = mapRange
	return group, nil
}

// parseByteRange parses "length[@offset]". Without an offset the range
// continues where the previous one ended.
func parseByteRange(s string, defaultOffset int64) (*ByteRange, error) {
	lenPart, offPart, hasOffset := strings.Cut(strings.TrimSpace(s), "@")
	length, err := strconv.ParseInt(lenPart, 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid byterange: %s", s)
	}
	offset := defaultOffset
	if hasOffset {
		if offset, err = strconv.ParseInt(offPart, 10, 64); err != nil || offset < 0 {
			return nil, fmt.Errorf("invalid byterange: %s", s)
		}
	}
	return &ByteRange{Length: length, Offset: offset}, nil
}

// parseAttributes splits an attribute list such as URI="a.mp4",BYTERANGE="10@0".
func parseAttributes(s string) map[string]string {
	out := make(map[string]string)
	for len(s) > 0 {
		key, rest, ok := strings.Cut(s, "=")
		if !ok {
			break
		}
		var val string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				val, rest = rest[1:], ""
			} else {
				val, rest = rest[1:end+1], rest[end+2:]
			}
		} else {
			val, rest, _ = strings.Cut(rest, ",")
		}
		out[strings.TrimSpace(key)] = val
		s = strings.TrimPrefix(rest, ",")
	}
	return out
}
