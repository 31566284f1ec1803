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

// Package reconcile implements the periodic reconciliation adjunct
// mentioned in §4.3: a background scan that re-imports backend objects not
// yet present in the CAS's in-memory index, as refcount-0 orphans, so a
// failed delete-then-prune sequence never leaves an atom permanently
// invisible.
package reconcile

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Tracker is the subset of cas.CAS the reconciler needs.
type Tracker interface {
	Tracked(digest string) bool
	Reimport(digest string, size uint64)
}

// Lister is the subset of objstore.Backend the reconciler needs.
type Lister interface {
	ListKeys(ctx context.Context) ([]string, error)
}

// Reconciler periodically scans a backend's keys and reimports any the CAS
// doesn't track yet.
type Reconciler struct {
	tracker Tracker
	lister  Lister
	sizeOf  func(ctx context.Context, key string) (uint64, error)
	log     *zap.Logger
	limiter *rate.Limiter
	watcher *fsnotify.Watcher
}

// New builds a Reconciler. sizeOf resolves the byte size of a backend key
// for the reimported atom's metadata.
func New(tracker Tracker, lister Lister, sizeOf func(ctx context.Context, key string) (uint64, error), log *zap.Logger) *Reconciler {
	return &Reconciler{
		tracker: tracker,
		lister:  lister,
		sizeOf:  sizeOf,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// ScanOnce lists the backend once and reimports any untracked key. Retries
// the listing with exponential backoff on transient failure.
func (r *Reconciler) ScanOnce(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	var keys []string
	op := func() error {
		var err error
		keys, err = r.lister.ListKeys(ctx)
		return err
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return err
	}

	var reimported int
	for _, key := range keys {
		if r.tracker.Tracked(key) {
			continue
		}
		size, err := r.sizeOf(ctx, key)
		if err != nil {
			r.log.Warn("reconcile: could not size untracked object", zap.String("key", key), zap.Error(err))
			continue
		}
		r.tracker.Reimport(key, size)
		reimported++
	}
	if reimported > 0 {
		r.log.Info("reconcile: reimported orphaned objects", zap.Int("count", reimported))
	}
	return nil
}

// Run scans every interval until ctx is cancelled, and also on every
// filesystem change event if watchDir is non-empty (best effort; a failure
// to set up the watcher only disables the event-triggered path, not the
// interval-triggered one).
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, watchDir string) error {
	if interval <= 0 && watchDir == "" {
		return nil
	}

	if watchDir != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			r.log.Warn("reconcile: fsnotify unavailable, falling back to interval-only", zap.Error(err))
		} else {
			r.watcher = w
			if err := w.Add(watchDir); err != nil {
				r.log.Warn("reconcile: could not watch storage_root", zap.Error(err))
			}
			defer w.Close()
		}
	}

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	var events <-chan fsnotify.Event
	if r.watcher != nil {
		events = r.watcher.Events
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickC:
			if err := r.ScanOnce(ctx); err != nil {
				r.log.Warn("reconcile: scan failed", zap.Error(err))
			}
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := r.ScanOnce(ctx); err != nil {
				r.log.Warn("reconcile: scan failed", zap.Error(err))
			}
		}
	}
}
