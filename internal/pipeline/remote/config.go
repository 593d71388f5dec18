// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ManuGH/transcoderd/internal/fsutil"
	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/store"
)

// Storage kinds with a dedicated rclone backend.
const (
	KindGoogleDrive = 3
)

// EnsureRemote makes sure the rclone config file has a section for
// storageID, building it from the storage record when missing. Concurrent
// calls for the same id share one lookup.
func (g *Gateway) EnsureRemote(ctx context.Context, storageID string) error {
	_, err, _ := g.sf.Do(storageID, func() (any, error) {
		return nil, g.ensureRemote(ctx, storageID)
	})
	return err
}

func (g *Gateway) ensureRemote(ctx context.Context, storageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, err := os.ReadFile(g.ConfigPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read rclone config: %w", err)
	}
	if hasSection(current, storageID) {
		return nil
	}

	logger := log.WithContext(ctx, log.WithComponent("remote"))
	logger.Info().Str("storage", storageID).Msg("remote config not found, generating")

	rec, err := g.Storages.ExternalStorage(ctx, storageID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrStorageNotFound, storageID)
	}
	if err != nil {
		return fmt.Errorf("lookup storage %s: %w", storageID, err)
	}
	if rec, err = decryptStorage(g.Decrypter, rec); err != nil {
		return fmt.Errorf("decrypt storage %s: %w", storageID, err)
	}
	section, err := RenderSection(rec)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(current)
	if len(current) > 0 && !bytes.HasSuffix(current, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(section)
	if err := fsutil.WriteFileAtomic(ctx, g.ConfigPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write rclone config: %w", err)
	}
	logger.Info().Str("storage", storageID).Msg("generated remote config")
	return nil
}

func hasSection(config []byte, id string) bool {
	header := "[" + id + "]"
	for _, line := range strings.Split(string(config), "\n") {
		if strings.TrimSpace(line) == header {
			return true
		}
	}
	return false
}

func decryptStorage(d Decrypter, s store.ExternalStorage) (store.ExternalStorage, error) {
	var err error
	if s.ClientSecret, err = d.Decrypt(s.ClientSecret); err != nil {
		return s, err
	}
	if s.AccessToken != "" {
		if s.AccessToken, err = d.Decrypt(s.AccessToken); err != nil {
			return s, err
		}
	}
	if s.RefreshToken, err = d.Decrypt(s.RefreshToken); err != nil {
		return s, err
	}
	return s, nil
}

// RenderSection renders the rclone config section of a storage record.
// Google Drive storages are rooted at their folder id; everything else is
// a OneDrive business drive.
func RenderSection(s store.ExternalStorage) (string, error) {
	token, err := json.Marshal(struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		Expiry       string `json:"expiry"`
	}{s.AccessToken, "Bearer", s.RefreshToken, s.Expiry.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", s.ID)
	if s.Kind == KindGoogleDrive {
		b.WriteString("type = drive\n")
	} else {
		b.WriteString("type = onedrive\n")
	}
	fmt.Fprintf(&b, "client_id = %s\n", s.ClientID)
	fmt.Fprintf(&b, "client_secret = %s\n", s.ClientSecret)
	fmt.Fprintf(&b, "token = %s\n", token)
	if s.Kind == KindGoogleDrive {
		fmt.Fprintf(&b, "root_folder_id = %s\n\n", s.FolderID)
	} else {
		fmt.Fprintf(&b, "drive_id = %s\n", s.FolderID)
		b.WriteString("drive_type = business\n\n")
	}
	return b.String(), nil
}
