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

package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"

	"github.com/stephanedenis/panini-fs/internal/paninierr"
)

// mmapThreshold is the payload size above which Get memory-maps the file
// instead of reading it into a heap buffer.
const mmapThreshold = 1 << 20 // 1 MiB

// LocalFS is the local-filesystem object backend: two-level sharded
// layout, flush-before-return durability, a single-writer-per-process
// advisory lock over the storage root.
type LocalFS struct {
	root string
	lock *flock.Flock

	mu sync.Mutex // serializes the mkdir+rename dance per process
}

// NewLocalFS opens (and if necessary creates) a storage root, taking an
// exclusive advisory lock so a second process can't concurrently write the
// same root and silently corrupt its sharded layout.
func NewLocalFS(root string) (*LocalFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &paninierr.IoError{Op: "mkdir storage_root", Cause: err}
	}
	lockPath := filepath.Join(root, ".panini-fs.lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, &paninierr.IoError{Op: "lock storage_root", Cause: err}
	}
	if !locked {
		return nil, &paninierr.IoError{Op: "lock storage_root", Cause: fmt.Errorf("storage_root %s is already locked by another process", root)}
	}
	return &LocalFS{root: root, lock: fl}, nil
}

// keyToPath implements the two-level shard <root>/<key[0:2]>/<key[2:4]>/<key>,
// falling back to a flat layout for keys too short to shard (defensive;
// digests are always 64 hex chars in practice).
func (l *LocalFS) keyToPath(key string) string {
	if len(key) < 4 {
		return filepath.Join(l.root, key)
	}
	return filepath.Join(l.root, key[0:2], key[2:4], key)
}

func (l *LocalFS) Put(ctx context.Context, key string, payload []byte) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	path := l.keyToPath(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	if info, err := os.Stat(path); err == nil {
		return PutResult{Key: key, Size: uint64(info.Size()), AlreadyExisted: true}, nil
	} else if !os.IsNotExist(err) {
		return PutResult{}, &paninierr.IoError{Op: "stat", Cause: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return PutResult{}, &paninierr.IoError{Op: "mkdir shard", Cause: err}
	}

	// Write to a temp file and rename into place so a crash mid-write
	// never leaves a truncated object readable at the final key (§5).
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return PutResult{}, &paninierr.IoError{Op: "create temp", Cause: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return PutResult{}, &paninierr.IoError{Op: "write", Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return PutResult{}, &paninierr.IoError{Op: "flush", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return PutResult{}, &paninierr.IoError{Op: "close", Cause: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return PutResult{}, &paninierr.IoError{Op: "rename", Cause: err}
	}

	return PutResult{Key: key, Size: uint64(len(payload)), AlreadyExisted: false}, nil
}

func (l *LocalFS) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := l.keyToPath(key)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &paninierr.NotFound{What: "atom", Key: key}
		}
		return nil, &paninierr.IoError{Op: "open", Cause: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &paninierr.IoError{Op: "stat", Cause: err}
	}
	if info.Size() < mmapThreshold {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, &paninierr.IoError{Op: "read", Cause: err}
		}
		return data, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, &paninierr.IoError{Op: "mmap", Cause: err}
	}
	defer m.Unmap()
	out := make([]byte, len(m))
	copy(out, m)
	return out, nil
}

func (l *LocalFS) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := l.keyToPath(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &paninierr.IoError{Op: "delete", Cause: err}
	}
	return nil
}

func (l *LocalFS) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(l.keyToPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &paninierr.IoError{Op: "stat", Cause: err}
}

func (l *LocalFS) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if bytes.HasPrefix([]byte(name), []byte(".")) {
			return nil // skip the lock file and temp files
		}
		keys = append(keys, name)
		return nil
	})
	if err != nil {
		return nil, &paninierr.IoError{Op: "list_keys", Cause: err}
	}
	return keys, nil
}

func (l *LocalFS) Stats(ctx context.Context) (Stats, error) {
	keys, err := l.ListKeys(ctx)
	if err != nil {
		return Stats{}, err
	}
	var total uint64
	for _, k := range keys {
		info, err := os.Stat(l.keyToPath(k))
		if err != nil {
			continue
		}
		total += uint64(info.Size())
	}
	return Stats{ObjectCount: uint64(len(keys)), TotalBytes: total}, nil
}

func (l *LocalFS) Size(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := os.Stat(l.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &paninierr.NotFound{What: "atom", Key: key}
		}
		return 0, &paninierr.IoError{Op: "stat", Cause: err}
	}
	return uint64(info.Size()), nil
}

func (l *LocalFS) Close() error {
	return l.lock.Unlock()
}
