// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafeName rejects names that would leave their parent directory once
// joined: empty names, dot entries and anything with a path separator.
func SafeName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid file name %q", name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("file name %q contains a separator", name)
	}
	return nil
}

// Confine joins root with the given path elements and fails when the
// result is not strictly below root.
func Confine(root string, elem ...string) (string, error) {
	for _, e := range elem {
		if err := SafeName(e); err != nil {
			return "", err
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	full := filepath.Join(append([]string{absRoot}, elem...)...)
	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes %s", absRoot)
	}
	return full, nil
}
