// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package remote drives rclone against the cloud storages outputs are
// uploaded to and sources are fetched from.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/store"
	"golang.org/x/sync/singleflight"
)

// ErrStorageNotFound is returned when a storage id has no record to build
// its remote configuration from.
var ErrStorageNotFound = errors.New("storage not found")

// exitDirNotFound is rclone's exit status for a missing directory.
const exitDirNotFound = 3

// File is one entry of an lsjson listing.
type File struct {
	Path     string `json:"Path"`
	Name     string `json:"Name"`
	Size     int64  `json:"Size"`
	MimeType string `json:"MimeType,omitempty"`
	IsDir    bool   `json:"IsDir"`
}

// StreamID is the first path element of an output file, the folder every
// rendition is uploaded to.
func (f File) StreamID() string {
	id, _, _ := strings.Cut(f.Path, "/")
	return id
}

// Gateway runs rclone commands through the supervisor.
type Gateway struct {
	Bin        string
	ConfigPath string
	Runner     supervisor.Runner
	Storages   StorageLookup
	Decrypter  Decrypter

	mu sync.Mutex // serializes config file rewrites
	sf singleflight.Group
}

// StorageLookup resolves storage records.
type StorageLookup interface {
	ExternalStorage(ctx context.Context, id string) (store.ExternalStorage, error)
}

// New returns a Gateway.
func New(bin, configPath string, runner supervisor.Runner, storages StorageLookup, dec Decrypter) *Gateway {
	if dec == nil {
		dec = PlainText{}
	}
	return &Gateway{Bin: bin, ConfigPath: configPath, Runner: runner, Storages: storages, Decrypter: dec}
}

// Remote formats "<storage>:<path>".
func Remote(storage string, elem ...string) string {
	return storage + ":" + path.Join(elem...)
}

func (g *Gateway) transferArgs(cmd string, rest ...string) []string {
	args := []string{
		"--config", g.ConfigPath,
		"--low-level-retries", "5",
		"-v", "--use-json-log",
		"--stats", "3m",
		cmd,
	}
	return append(args, rest...)
}

func (g *Gateway) run(ctx context.Context, kind supervisor.Kind, jobID string, args []string) (supervisor.Result, error) {
	logger := log.WithContext(ctx, log.WithComponent("remote"))
	logger.Info().
		Strs("args", args).
		Msg("rclone")
	return g.Runner.Run(ctx, supervisor.Invocation{
		Kind:  kind,
		Bin:   g.Bin,
		Args:  args,
		JobID: jobID,
	})
}

// Download copies <storage>:<folder>/<file> into destDir.
func (g *Gateway) Download(ctx context.Context, jobID, storage, folder, file, destDir string) error {
	args := g.transferArgs("copy", Remote(storage, folder, file), destDir)
	args = append(args, "--ignore-checksum")
	if _, err := g.run(ctx, supervisor.KindUpload, jobID, args); err != nil {
		return fmt.Errorf("download %s: %w", file, err)
	}
	return nil
}

// Move uploads a local file or directory to <storage>:<dest>. A non-empty
// include restricts what is moved.
func (g *Gateway) Move(ctx context.Context, jobID, src, storage, dest, include string) error {
	args := g.transferArgs("move", src, Remote(storage, dest))
	if include != "" {
		args = append(args, "--include", include)
	}
	if _, err := g.run(ctx, supervisor.KindUpload, jobID, args); err != nil {
		return fmt.Errorf("move %s: %w", path.Base(src), err)
	}
	return nil
}

// Sync makes <storage>:<dest> identical to the local directory src.
func (g *Gateway) Sync(ctx context.Context, jobID, src, storage, dest string) error {
	if _, err := g.run(ctx, supervisor.KindUpload, jobID, g.transferArgs("sync", src, Remote(storage, dest))); err != nil {
		return fmt.Errorf("sync %s: %w", path.Base(src), err)
	}
	return nil
}

// List returns every file below <storage>:<folder>. A missing folder is an
// empty listing.
func (g *Gateway) List(ctx context.Context, jobID, storage, folder, exclude string) ([]File, error) {
	args := []string{
		"--config", g.ConfigPath,
		"lsjson", Remote(storage, folder),
		"--recursive", "--files-only",
	}
	if exclude != "" {
		args = append(args, "--exclude", exclude)
	}
	res, err := g.run(ctx, supervisor.KindList, jobID, args)
	if err != nil {
		if code, ok := model.ExitCodeOf(err); ok && code == exitDirNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var files []File
	if err := json.Unmarshal(res.Output, &files); err != nil {
		return nil, fmt.Errorf("decode listing of %s: %w", folder, err)
	}
	return files, nil
}

// Purge removes <storage>:<target> and everything below it.
func (g *Gateway) Purge(ctx context.Context, jobID, storage, target string) error {
	args := []string{"--config", g.ConfigPath, "purge", Remote(storage, target)}
	if _, err := g.run(ctx, supervisor.KindList, jobID, args); err != nil {
		if code, ok := model.ExitCodeOf(err); ok && code == exitDirNotFound {
			return nil
		}
		return fmt.Errorf("purge %s: %w", target, err)
	}
	return nil
}

// EmptyFolder deletes every subfolder of <storage>:<folder> while keeping
// files stored directly in it, such as the uploaded source.
func (g *Gateway) EmptyFolder(ctx context.Context, jobID, storage, folder string) error {
	args := []string{
		"--config", g.ConfigPath,
		"delete", Remote(storage, folder),
		"--include", "*/**",
		"--rmdirs",
	}
	if _, err := g.run(ctx, supervisor.KindList, jobID, args); err != nil {
		if code, ok := model.ExitCodeOf(err); ok && code == exitDirNotFound {
			return nil
		}
		return fmt.Errorf("empty %s: %w", folder, err)
	}
	return nil
}

// Mkdir creates <storage>:<folder>.
func (g *Gateway) Mkdir(ctx context.Context, jobID, storage, folder string) error {
	args := []string{"--config", g.ConfigPath, "mkdir", Remote(storage, folder)}
	if _, err := g.run(ctx, supervisor.KindList, jobID, args); err != nil {
		return fmt.Errorf("mkdir %s: %w", folder, err)
	}
	return nil
}
