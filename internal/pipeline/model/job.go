// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Job is one transcode request as delivered by the queue. The worker only
// reads it; attempt bookkeeping belongs to the transport.
type Job struct {
	ID           string  `json:"id" validate:"required"`
	Data         JobData `json:"data"`
	AttemptsMade int     `json:"attemptsMade" validate:"gte=0"`
	Attempts     int     `json:"attempts" validate:"gte=1"`
}

// LastAttempt reports whether a retryable failure of the current attempt is final.
func (j *Job) LastAttempt() bool {
	return j.AttemptsMade >= j.Attempts
}

// JobData describes the source file and target of a transcode.
type JobData struct {
	SourceID        string          `json:"_id" validate:"required"`
	Filename        string          `json:"filename" validate:"required"`
	Path            string          `json:"path" validate:"required"`
	Size            int64           `json:"size" validate:"gte=0"`
	MimeType        string          `json:"mimeType,omitempty"`
	ProducerURL     string          `json:"producerUrl,omitempty"`
	Storage         string          `json:"storage" validate:"required"`
	LinkedStorage   string          `json:"linkedStorage,omitempty"`
	Media           string          `json:"media" validate:"required"`
	Episode         string          `json:"episode,omitempty"`
	Codec           Codec           `json:"codec" validate:"required"`
	IsPrimary       bool            `json:"isPrimary,omitempty"`
	User            string          `json:"user,omitempty"`
	Update          bool            `json:"update,omitempty"`
	ReplaceStreams  []string        `json:"replaceStreams,omitempty"`
	AdvancedOptions AdvancedOptions `json:"advancedOptions"`
}

// RemoteFolder is the folder on Storage that holds the source record and
// every output of the job.
func (d *JobData) RemoteFolder() string {
	return d.SourceID
}

// SourceStorage is the storage the source file is fetched from.
func (d *JobData) SourceStorage() string {
	if d.LinkedStorage != "" {
		return d.LinkedStorage
	}
	return d.Storage
}

// IsReplaced reports whether streamID is scheduled for replacement.
func (d *JobData) IsReplaced(streamID string) bool {
	for _, id := range d.ReplaceStreams {
		if id == streamID {
			return true
		}
	}
	return false
}

// AdvancedOptions carries per-job overrides set by the producer.
type AdvancedOptions struct {
	SelectAudioTracks []int             `json:"selectAudioTracks,omitempty" validate:"dive,gte=0"`
	ExtraAudioTracks  []int             `json:"extraAudioTracks,omitempty" validate:"dive,gte=0"`
	ForceVideoQuality []int             `json:"forceVideoQuality,omitempty" validate:"dive,gt=0"`
	H264Tune          string            `json:"h264Tune,omitempty"`
	OverrideSettings  []EncodingSetting `json:"overrideSettings,omitempty" validate:"dive"`
}

// EncodingSetting is the per-quality rate control policy. Rates are kbit/s.
type EncodingSetting struct {
	Quality      int  `json:"quality" yaml:"quality" validate:"gt=0"`
	CRF          int  `json:"crf,omitempty" yaml:"crf,omitempty"`
	H265CRF      int  `json:"h265Crf,omitempty" yaml:"h265Crf,omitempty"`
	CQ           int  `json:"cq,omitempty" yaml:"cq,omitempty"`
	MaxRate      int  `json:"maxrate,omitempty" yaml:"maxrate,omitempty"`
	BufSize      int  `json:"bufsize,omitempty" yaml:"bufsize,omitempty"`
	UseLowerRate bool `json:"useLowerRate,omitempty" yaml:"useLowerRate,omitempty"`
}

// Merge overlays the non-zero fields of o onto s.
func (s EncodingSetting) Merge(o EncodingSetting) EncodingSetting {
	if o.CRF != 0 {
		s.CRF = o.CRF
	}
	if o.H265CRF != 0 {
		s.H265CRF = o.H265CRF
	}
	if o.CQ != 0 {
		s.CQ = o.CQ
	}
	if o.MaxRate != 0 {
		s.MaxRate = o.MaxRate
	}
	if o.BufSize != 0 {
		s.BufSize = o.BufSize
	}
	if o.UseLowerRate {
		s.UseLowerRate = true
	}
	return s
}

// SettingFor returns the setting for quality from list, merged with any
// matching override. The zero setting carries only the quality.
func SettingFor(quality int, list, overrides []EncodingSetting) EncodingSetting {
	out := EncodingSetting{Quality: quality}
	for _, s := range list {
		if s.Quality == quality {
			out = s
			break
		}
	}
	for _, o := range overrides {
		if o.Quality == quality {
			out = out.Merge(o)
		}
	}
	return out
}
