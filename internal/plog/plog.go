// Copyright 2024 The Panini-FS Authors
// This file is part of Panini-FS.
//
// Panini-FS is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Panini-FS is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Panini-FS. If not, see <http://www.gnu.org/licenses/>.

// Package plog constructs the zap logger used throughout the storage
// substrate. There is no package-level global logger: every constructor
// that needs one takes it explicitly, per the no-global-statics design
// note in the specification this module implements.
package plog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Development bool
	Level       zapcore.Level
}

// New builds a zap.Logger suitable for either interactive CLI use
// (development=true, console encoding) or long-running daemon use
// (development=false, JSON encoding).
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(opts.Level)
	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests that don't
// assert on log output.
func Nop() *zap.Logger {
	return zap.NewNop()
}
