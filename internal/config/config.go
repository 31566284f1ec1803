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

// Package config loads the on-disk TOML configuration recognized by the
// storage substrate (§6 of the specification this module implements).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"
)

// Config holds every option the core and its adjuncts recognize.
type Config struct {
	StorageRoot          string            `toml:"storage_root"`
	MaxAtomSize          datasize.ByteSize `toml:"max_atom_size"`
	ChunkSize            datasize.ByteSize `toml:"chunk_size"`
	EnableDedup          bool              `toml:"enable_dedup"`
	Compression          string            `toml:"compression"` // reserved, unused by the core
	ReconcileInterval    time.Duration     `toml:"reconcile_interval"`
	ReconstructCacheSize int               `toml:"reconstruct_cache_size"`
}

// Default returns the configuration defaults named in §6.
func Default() Config {
	return Config{
		StorageRoot:          "./panini-data",
		MaxAtomSize:          10 * datasize.MB,
		ChunkSize:            64 * datasize.KB,
		EnableDedup:          true,
		Compression:          "",
		ReconcileInterval:    5 * time.Minute,
		ReconstructCacheSize: 256,
	}
}

// Load reads and merges a TOML file over the defaults. A missing file is
// not an error; Default() is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the option combinations the rest of the system assumes
// hold.
func (c Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.ReconstructCacheSize < 0 {
		return fmt.Errorf("reconstruct_cache_size must not be negative")
	}
	return nil
}
