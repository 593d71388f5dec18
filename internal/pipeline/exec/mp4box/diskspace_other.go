// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package mp4box

import "errors"

// FreeSpace is not implemented on this platform; packaging then always
// takes the low-space path.
func FreeSpace(string) (uint64, error) {
	return 0, errors.New("free space query not supported")
}
