// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil holds file helpers shared by the pipeline.
package fsutil

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/google/renameio/v2"
)

// WriteAtomic writes path through a pending file that is fsynced and
// renamed into place only when write succeeds.
func WriteAtomic(ctx context.Context, path string, perm os.FileMode, write func(io.Writer) error) error {
	logger := log.FromContext(ctx)

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(log.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if err := write(pendingFile); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic is WriteAtomic for an in-memory payload.
func WriteFileAtomic(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(ctx, path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
