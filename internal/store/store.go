// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store is the metadata lookup used by the worker: global encoding
// settings, media and source records, and external storage credentials.
// Records are JSON documents addressed by kind and id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("record not found")

// Settings are the operator-controlled encoding defaults. Empty fields fall
// back to the worker configuration.
type Settings struct {
	QualityList             []int                   `json:"videoQualityList,omitempty"`
	EncodingSettings        []model.EncodingSetting `json:"videoEncodingSettings,omitempty"`
	AudioParams             string                  `json:"audioParams,omitempty"`
	AudioSpeedParams        string                  `json:"audioSpeedParams,omitempty"`
	AudioSurroundParams     string                  `json:"audioSurroundParams,omitempty"`
	AudioSurroundOpusParams string                  `json:"audioSurroundOpusParams,omitempty"`
	VideoH264Params         string                  `json:"videoH264Params,omitempty"`
	VideoH265Params         string                  `json:"videoH265Params,omitempty"`
	VideoVP9Params          string                  `json:"videoVP9Params,omitempty"`
	VideoAV1Params          string                  `json:"videoAV1Params,omitempty"`
}

// Media is the title a source belongs to.
type Media struct {
	ID           string `json:"_id"`
	OriginalLang string `json:"originalLang,omitempty"`
}

// Stream is one rendition already registered on a source.
type Stream struct {
	ID      string `json:"_id"`
	Codec   int    `json:"codec"`
	Quality int    `json:"quality,omitempty"`
}

// MediaSource is an uploaded source file and the streams produced from it.
type MediaSource struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name,omitempty"`
	Quality int      `json:"quality,omitempty"`
	Streams []Stream `json:"streams,omitempty"`
}

// ExternalStorage is a cloud drive remote. Secrets are stored encrypted.
type ExternalStorage struct {
	ID           string    `json:"_id"`
	Kind         int       `json:"kind"`
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"clientSecret"`
	AccessToken  string    `json:"accessToken,omitempty"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry"`
	FolderID     string    `json:"folderId,omitempty"`
}

// Reader is the read side used by the worker.
type Reader interface {
	Settings(ctx context.Context) (Settings, error)
	Media(ctx context.Context, id string) (Media, error)
	MediaSource(ctx context.Context, id string) (MediaSource, error)
	ExternalStorage(ctx context.Context, id string) (ExternalStorage, error)
}

// Writer seeds records, mainly from the CLI and tests.
type Writer interface {
	PutSettings(ctx context.Context, s Settings) error
	PutMedia(ctx context.Context, m Media) error
	PutMediaSource(ctx context.Context, m MediaSource) error
	PutExternalStorage(ctx context.Context, s ExternalStorage) error
}

// Store is a complete backend.
type Store interface {
	Reader
	Writer
	Close() error
}

// Record kinds.
const (
	kindSettings        = "settings"
	kindMedia           = "media"
	kindMediaSource     = "media_source"
	kindExternalStorage = "external_storage"

	settingsID = "default"
)

// docStore is the key-document primitive every backend implements.
type docStore interface {
	get(ctx context.Context, kind, id string) ([]byte, error)
	put(ctx context.Context, kind, id string, doc []byte) error
	Close() error
}

// typed adapts a docStore to Store.
type typed struct {
	docs docStore
}

func (t typed) Close() error { return t.docs.Close() }

func load[T any](ctx context.Context, d docStore, kind, id string) (T, error) {
	var out T
	raw, err := d.get(ctx, kind, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s %q: %w", kind, id, err)
	}
	return out, nil
}

func save(ctx context.Context, d docStore, kind, id string, v any) error {
	if id == "" {
		return fmt.Errorf("%s: empty id", kind)
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", kind, id, err)
	}
	return d.put(ctx, kind, id, buf)
}

// Settings returns the zero Settings when none were stored.
func (t typed) Settings(ctx context.Context) (Settings, error) {
	s, err := load[Settings](ctx, t.docs, kindSettings, settingsID)
	if errors.Is(err, ErrNotFound) {
		return Settings{}, nil
	}
	return s, err
}

func (t typed) Media(ctx context.Context, id string) (Media, error) {
	return load[Media](ctx, t.docs, kindMedia, id)
}

func (t typed) MediaSource(ctx context.Context, id string) (MediaSource, error) {
	return load[MediaSource](ctx, t.docs, kindMediaSource, id)
}

func (t typed) ExternalStorage(ctx context.Context, id string) (ExternalStorage, error) {
	return load[ExternalStorage](ctx, t.docs, kindExternalStorage, id)
}

func (t typed) PutSettings(ctx context.Context, s Settings) error {
	return save(ctx, t.docs, kindSettings, settingsID, s)
}

func (t typed) PutMedia(ctx context.Context, m Media) error {
	return save(ctx, t.docs, kindMedia, m.ID, m)
}

func (t typed) PutMediaSource(ctx context.Context, m MediaSource) error {
	return save(ctx, t.docs, kindMediaSource, m.ID, m)
}

func (t typed) PutExternalStorage(ctx context.Context, s ExternalStorage) error {
	return save(ctx, t.docs, kindExternalStorage, s.ID, s)
}

// Open selects a backend by name: "memory", "sqlite" or "badger".
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(path, DefaultSQLiteConfig())
	case "badger":
		return OpenBadger(path)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
