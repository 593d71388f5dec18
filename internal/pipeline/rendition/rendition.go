// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rendition holds the steps every encoded rendition goes through
// after encoding: packaging, read-back, and upload into its own stream
// folder.
package rendition

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ManuGH/transcoderd/internal/pipeline/exec/mp4box"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/manifest"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// Packager packages an encoded rendition in place.
type Packager interface {
	Package(ctx context.Context, req mp4box.Request) (mp4box.Outputs, error)
}

// Reader reads back the characteristics of a packaged rendition.
type Reader interface {
	Rendition(ctx context.Context, jobID, path string) (model.RenditionInfo, error)
}

// Remote moves finished files into remote storage.
type Remote interface {
	Move(ctx context.Context, jobID, src, storage, dest, include string) error
	Purge(ctx context.Context, jobID, storage, target string) error
}

// Workspace is the local working directory of one job run.
type Workspace struct {
	Dir    string
	Base   string // source file name without extension
	Source string // fetched source file
	// Refetch downloads the source again after low-disk packaging.
	Refetch func(ctx context.Context) error
}

// Env bundles the collaborators shared by the audio and video pipelines.
type Env struct {
	FFmpeg   string
	Runner   supervisor.Runner
	Packager Packager
	Reader   Reader
	Remote   Remote
	// NewStreamID names the remote folder of an uploaded rendition.
	NewStreamID func() (string, error)
}

// NewStreamID returns a random URL-safe stream id.
func NewStreamID() (string, error) {
	return gonanoid.New()
}

// StreamID generates a stream id with e.NewStreamID, falling back to NewStreamID.
func (e *Env) StreamID() (string, error) {
	gen := e.NewStreamID
	if gen == nil {
		gen = NewStreamID
	}
	id, err := gen()
	if err != nil {
		return "", fmt.Errorf("generate stream id: %w", err)
	}
	return id, nil
}

// Packaged is a rendition ready for upload.
type Packaged struct {
	Outputs mp4box.Outputs
	Info    model.RenditionInfo
}

// Files returns the sidecars the manifest builder reads.
func (p Packaged) Files() manifest.Files {
	return manifest.Files{MPD: p.Outputs.MPD, Playlist: p.Outputs.Playlist}
}

// FileName is the base name of the packaged media file.
func (p Packaged) FileName() string {
	return filepath.Base(p.Outputs.Media)
}

// Package packages <ws.Dir>/<name>.mp4 and reads it back.
func (e *Env) Package(ctx context.Context, job *model.Job, ws Workspace, name string) (Packaged, error) {
	out, err := e.Packager.Package(ctx, mp4box.Request{
		JobID:   job.ID,
		Dir:     ws.Dir,
		Name:    name,
		Source:  ws.Source,
		Refetch: ws.Refetch,
	})
	if err != nil {
		return Packaged{}, fmt.Errorf("package %s: %w", name, err)
	}
	info, err := e.Reader.Rendition(ctx, job.ID, out.Media)
	if err != nil {
		return Packaged{}, fmt.Errorf("read back %s: %w", name, err)
	}
	return Packaged{Outputs: out, Info: info}, nil
}

// StreamFolder is the remote folder of one stream.
func StreamFolder(job *model.Job, streamID string) string {
	return path.Join(job.Data.RemoteFolder(), streamID)
}

// URI is the manifest reference of a file inside a stream folder.
func URI(streamID, file string) string {
	return streamID + "/" + file
}

// Upload moves file into the stream folder of streamID.
func (e *Env) Upload(ctx context.Context, job *model.Job, file, streamID string) error {
	if err := e.Remote.Move(ctx, job.ID, file, job.Data.Storage, StreamFolder(job, streamID), ""); err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(file), err)
	}
	return nil
}

// Discard purges a partially uploaded stream folder. It is best effort and
// never masks the error that caused it.
func (e *Env) Discard(ctx context.Context, job *model.Job, streamID string) error {
	return e.Remote.Purge(context.WithoutCancel(ctx), job.ID, job.Data.Storage, StreamFolder(job, streamID))
}

// SaveManifest writes the manifest of codec into ws, uploads it into a new
// stream folder and returns that stream id and the file name. A failed
// upload purges the new folder.
func (e *Env) SaveManifest(ctx context.Context, job *model.Job, ws Workspace, m *manifest.Builder, codec model.Codec) (string, string, error) {
	name := manifest.FileName(codec)
	local := filepath.Join(ws.Dir, name)
	if err := m.Save(ctx, local); err != nil {
		return "", "", fmt.Errorf("save manifest: %w", err)
	}
	streamID, err := e.StreamID()
	if err != nil {
		return "", "", err
	}
	if err := e.Upload(ctx, job, local, streamID); err != nil {
		_ = e.Discard(ctx, job, streamID)
		return "", "", err
	}
	return streamID, name, nil
}
