// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log re-exports github.com/luxfi/log's Logger interface for the
// Alpenglow components and supplies the no-op default used by tests and by
// exploration harnesses that don't want log output.
package log

import "github.com/luxfi/log"

// Logger is the shared logging interface used across votor, rotor,
// network, and the driver.
type Logger = log.Logger

// NewNoOpLogger returns a Logger that discards everything. Components
// default to this when constructed without an explicit logger.
func NewNoOpLogger() Logger {
	return log.NewNoOpLogger()
}
