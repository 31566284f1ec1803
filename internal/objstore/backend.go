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

// Package objstore implements the durable key→bytes backend (C1): a
// sharded on-disk object store keyed by fixed-charset hex digests. The core
// needs exactly one implementation (local filesystem), but the capability
// set below is kept as an interface so future backends plug in without the
// CAS needing to change.
package objstore

import "context"

// PutResult reports the outcome of a Put call.
type PutResult struct {
	Key            string
	Size           uint64
	AlreadyExisted bool
}

// Stats summarizes the backend's contents.
type Stats struct {
	ObjectCount uint64
	TotalBytes  uint64
}

// Backend is the capability set §9 of the specification calls out:
// {put, get, delete, exists, list_keys, stats}. A single writer per key is
// assumed, enforced upstream by the CAS refcount lock; multiple concurrent
// readers are always safe.
type Backend interface {
	Put(ctx context.Context, key string, payload []byte) (PutResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (Stats, error)
	// Size returns the byte length of key's object without reading its
	// payload, used by the reconciliation adjunct to size objects it is
	// about to reimport.
	Size(ctx context.Context, key string) (uint64, error)
	// Close releases the backend's resources, including the
	// single-writer-per-process lock held over its storage root.
	Close() error
}
