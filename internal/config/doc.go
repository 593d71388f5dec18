// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the worker configuration with the precedence
// defaults, then the YAML file, then TRANSCODER_* environment variables,
// and validates the result. A Holder hot-reloads the encoding defaults when
// the file changes.
package config
