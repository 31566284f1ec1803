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

package main

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stephanedenis/panini-fs/internal/cas"
	"github.com/stephanedenis/panini-fs/internal/config"
	"github.com/stephanedenis/panini-fs/internal/decompose"
	"github.com/stephanedenis/panini-fs/internal/objstore"
	"github.com/stephanedenis/panini-fs/internal/persist"
	"github.com/stephanedenis/panini-fs/internal/plog"
	"github.com/stephanedenis/panini-fs/internal/reconcile"
	"github.com/stephanedenis/panini-fs/internal/reconstruct"
	"github.com/stephanedenis/panini-fs/internal/temporal"
)

// app bundles the wired-up core for one CLI invocation. The temporal index
// is loaded from (and, on mutation, saved back to) the sqlite durability
// file named by --db, since each CLI invocation is otherwise a fresh
// process with no in-memory history to build on.
type app struct {
	cfg           config.Config
	log           *zap.Logger
	backend       *objstore.LocalFS
	store         *cas.CAS
	decomposer    *decompose.Decomposer
	reconstructor *reconstruct.CachedReconstructor
	index         *temporal.Index
	db            *persist.Store
}

func newApp(cfgPath string, verbose bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	log, err := plog.New(plog.Options{Development: true, Level: level})
	if err != nil {
		return nil, err
	}

	backend, err := objstore.NewLocalFS(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}

	store := cas.New(backend, cfg.EnableDedup)
	decomposer := decompose.New(int(cfg.ChunkSize))
	reconstructor, err := reconstruct.NewCached(store, cfg.ReconstructCacheSize)
	if err != nil {
		backend.Close()
		return nil, err
	}

	db, err := persist.Open(flagDB)
	if err != nil {
		backend.Close()
		return nil, err
	}
	index, err := db.Load()
	if err != nil {
		db.Close()
		backend.Close()
		return nil, err
	}

	// Every CLI invocation is a fresh process: the CAS index starts empty
	// and has to be rebuilt from the backend before this command's atoms
	// (and refcounts) are visible. Per §6, rebuild is a scan that records
	// every discovered key at refcount 0, followed by replaying the
	// higher-layer references recorded in the loaded temporal index.
	ctx := context.Background()
	r := reconcile.New(store, backend, backend.Size, log)
	if err := r.ScanOnce(ctx); err != nil {
		db.Close()
		backend.Close()
		return nil, err
	}
	for _, c := range index.ListConcepts() {
		for _, v := range c.Versions {
			for _, digest := range v.Atoms {
				store.IncRef(digest)
			}
		}
	}

	return &app{
		cfg:           cfg,
		log:           log,
		backend:       backend,
		store:         store,
		decomposer:    decomposer,
		reconstructor: reconstructor,
		index:         index,
		db:            db,
	}, nil
}

// saveIndex persists the current temporal index, for commands that mutate
// concept/snapshot state. Read-only commands (history, diff) skip it.
func (a *app) saveIndex() error {
	return a.db.Save(a.index)
}

func (a *app) Close() error {
	defer a.log.Sync()
	if err := a.db.Close(); err != nil {
		a.backend.Close()
		return err
	}
	return a.backend.Close()
}
