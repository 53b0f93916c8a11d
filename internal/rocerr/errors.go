// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package rocerr declares the sentinel error kinds used at the toolkit's
// component boundaries.
package rocerr

import "errors"

var (
	// ErrNoMem means allocation from a pool failed.
	ErrNoMem = errors.New("roc: pool allocation failed")
	// ErrDrain means a non-blocking read found nothing.
	ErrDrain = errors.New("roc: no data available")
	// ErrStreamEnd means the peer closed gracefully; no further data.
	ErrStreamEnd = errors.New("roc: stream ended")
	// ErrNoDriver means a device-side open had no matching driver.
	ErrNoDriver = errors.New("roc: no driver")
	// ErrNoDevice means a device-side open found no matching device.
	ErrNoDevice = errors.New("roc: no device")
	// ErrFailure means an unrecoverable I/O error; the affected port or
	// connection is marked failed.
	ErrFailure = errors.New("roc: unrecoverable failure")
	// ErrWouldBlock means the socket would block; the caller must wait for
	// readiness.
	ErrWouldBlock = errors.New("roc: would block")
)
