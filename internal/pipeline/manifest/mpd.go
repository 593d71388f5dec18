// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// MPD is the subset of an on-demand MP4Box MPD the manifest needs. Packaged
// renditions carry exactly one adaptation set with one representation.
type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	MaxSubsegmentDuration     string   `xml:"maxSubsegmentDuration,attr"`
	Period                    struct {
		Duration      string `xml:"duration,attr"`
		AdaptationSet struct {
			Par            string         `xml:"par,attr"`
			Lang           string         `xml:"lang,attr"`
			Representation Representation `xml:"Representation"`
		} `xml:"AdaptationSet"`
	} `xml:"Period"`
}

// Representation is the single stream of a packaged rendition.
type Representation struct {
	ID                string `xml:"id,attr"`
	MimeType          string `xml:"mimeType,attr"`
	Codecs            string `xml:"codecs,attr"`
	AudioSamplingRate int    `xml:"audioSamplingRate,attr"`
	Bandwidth         int64  `xml:"bandwidth,attr"`
	SegmentBase       struct {
		IndexRange     string `xml:"indexRange,attr"`
		Initialization struct {
			Range string `xml:"range,attr"`
		} `xml:"Initialization"`
	} `xml:"SegmentBase"`
}

// ParseMPD decodes an MPD document.
func ParseMPD(data []byte) (*MPD, error) {
	var m MPD
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode mpd: %w", err)
	}
	return &m, nil
}

func (m *MPD) dashSegment() (DashSegment, error) {
	var d DashSegment
	var err error
	if d.MinBufferTime, err = ParseISODuration(m.MinBufferTime); err != nil {
		return d, fmt.Errorf("minBufferTime: %w", err)
	}
	if d.MediaPresentationDuration, err = ParseISODuration(m.MediaPresentationDuration); err != nil {
		return d, fmt.Errorf("mediaPresentationDuration: %w", err)
	}
	if d.MaxSubsegmentDuration, err = ParseISODuration(m.MaxSubsegmentDuration); err != nil {
		return d, fmt.Errorf("maxSubsegmentDuration: %w", err)
	}
	base := m.Period.AdaptationSet.Representation.SegmentBase
	if d.IndexRange, err = ParseRange(base.IndexRange); err != nil {
		return d, fmt.Errorf("indexRange: %w", err)
	}
	if d.InitRange, err = ParseRange(base.Initialization.Range); err != nil {
		return d, fmt.Errorf("initialization range: %w", err)
	}
	return d, nil
}

// ParseRange parses "start-end".
func ParseRange(s string) (Range, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	start, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	end, err := strconv.ParseInt(b, 10, 64)
	if err != nil || end < start {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	return Range{Start: start, End: end}, nil
}

// ParseISODuration converts an ISO-8601 duration such as "PT0H0M10.000S"
// into seconds. Years and months use 365 and 30 day approximations. An empty
// string is zero.
func ParseISODuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	const day = 24 * 3600.0
	var total float64
	parts := 0
	inTime := false
	num := ""
	for _, r := range s[1:] {
		switch {
		case r == 'T':
			if inTime || num != "" {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			inTime = true
			continue
		case (r >= '0' && r <= '9') || r == '.' || r == ',':
			if r == ',' {
				r = '.'
			}
			num += string(r)
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		num = ""
		parts++
		switch {
		case r == 'Y' && !inTime:
			total += v * 365 * day
		case r == 'M' && !inTime:
			total += v * 30 * day
		case r == 'W' && !inTime:
			total += v * 7 * day
		case r == 'D' && !inTime:
			total += v * day
		case r == 'H' && inTime:
			total += v * 3600
		case r == 'M' && inTime:
			total += v * 60
		case r == 'S' && inTime:
			total += v
		default:
			return 0, fmt.Errorf("invalid duration %q", s)
		}
	}
	if num != "" || parts == 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}

func lower(s string) string { return strings.ToLower(s) }
