// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingComponents is returned when an App is created without components.
	ErrMissingComponents = errors.New("components are required")

	// ErrAlreadyRunning is returned when Run is called twice on one App.
	ErrAlreadyRunning = errors.New("app already running")

	// ErrServerStartFailed is returned when the control API fails to start.
	ErrServerStartFailed = errors.New("server failed to start")

	// ErrStartupFailed is returned when the startup sequence ends with an
	// error other than cancellation.
	ErrStartupFailed = errors.New("startup sequence failed")
)
