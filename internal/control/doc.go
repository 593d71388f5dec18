// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package control exposes the worker's HTTP control surface (pause, resume,
// close, retry and priority) and the client a secondary worker uses to yield
// to a primary one.
package control
