// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// SourceInfo is derived once by probing the fetched source.
type SourceInfo struct {
	Duration        float64 // seconds
	FPS             float64
	Bitrate         int // kbit/s
	Codec           string
	EncoderSettings string
	Width           int
	Height          int
	HDR             bool
	Language        string
	AudioTracks     []AudioTrack
}

// HasVideo reports whether probing found a decodable video track.
func (s *SourceInfo) HasVideo() bool {
	return s != nil && s.Height > 0 && s.Width > 0
}

// AudioTrack is one probed audio stream. Index is the absolute stream index
// inside the container.
type AudioTrack struct {
	Index    int
	Channels int
	Language string
	Codec    string
	Default  bool
}

// RenditionInfo is read back from a packaged rendition.
type RenditionInfo struct {
	Codec      string
	Width      int
	Height     int
	FPS        float64
	Channels   int
	SampleRate int
	Bitrate    int
	Language   string
}

// ProgressSnapshot is the decoded state of an encoder's progress stream.
type ProgressSnapshot struct {
	Frame      int64
	FPS        float64
	Bitrate    string
	TotalSize  int64
	OutTimeUS  int64
	DupFrames  int64
	DropFrames int64
	Speed      string
	Progress   string
	Percent    int
}

// Progress is the event-specific payload of a result message.
type Progress struct {
	SourceID string  `json:"sourceId,omitempty"`
	StreamID string  `json:"streamId,omitempty"`
	FileName string  `json:"fileName,omitempty"`
	Codec    int     `json:"codec,omitempty"`
	Runtime  float64 `json:"runtime,omitempty"`
	Quality  int     `json:"quality,omitempty"`
	Channels int     `json:"channels,omitempty"`
}

// Result is one outbound message on the result queue.
type Result struct {
	Event       Event     `json:"name"`
	JobID       string    `json:"jobId"`
	Data        JobData   `json:"data"`
	Progress    *Progress `json:"progress,omitempty"`
	ErrorCode   ErrorCode `json:"errorCode,omitempty"`
	KeepStreams bool      `json:"keepStreams,omitempty"`
}
