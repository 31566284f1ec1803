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

// Package reconstruct implements the reconstructor (C5): atom list plus
// fetched bytes back into the original byte stream, verified by digest.
package reconstruct

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stephanedenis/panini-fs/internal/atom"
	"github.com/stephanedenis/panini-fs/internal/paninierr"
)

// Reconstruct concatenates payloads in order, failing HashMismatch if any
// payload's digest disagrees with its atom's recorded digest.
func Reconstruct(atoms []*atom.Atom, payloads [][]byte) ([]byte, error) {
	if len(atoms) != len(payloads) {
		return nil, &paninierr.InvalidArgument{Detail: "atoms and payloads length mismatch"}
	}
	for i, a := range atoms {
		got := atom.Digest(payloads[i])
		if got != a.Digest {
			return nil, &paninierr.HashMismatch{Expected: a.Digest, Actual: got}
		}
	}
	return concat(payloads), nil
}

// ReconstructUnverified skips the digest check. Used only by the mount
// projection's hot read path, which already receives bytes looked up by
// digest.
func ReconstructUnverified(atoms []*atom.Atom, payloads [][]byte) ([]byte, error) {
	if len(atoms) != len(payloads) {
		return nil, &paninierr.InvalidArgument{Detail: "atoms and payloads length mismatch"}
	}
	return concat(payloads), nil
}

func concat(payloads [][]byte) []byte {
	var total int
	for _, p := range payloads {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range payloads {
		out = append(out, p...)
	}
	return out
}

// TotalSize sums the recorded size of every atom.
func TotalSize(atoms []*atom.Atom) uint64 {
	var total uint64
	for _, a := range atoms {
		total += a.Size
	}
	return total
}

// Fetcher resolves a digest to its payload bytes; cas.CAS implements it.
type Fetcher interface {
	Fetch(ctx context.Context, digest string) ([]byte, error)
}

// CachedReconstructor wraps a Fetcher with a bounded LRU cache of recently
// fetched atom bytes, used on the mount projection's hot read path. Cache
// entries never need invalidation: atom bytes are immutable once written.
type CachedReconstructor struct {
	fetcher Fetcher
	cache   *lru.Cache[string, []byte]
}

// NewCached builds a CachedReconstructor with room for size recently
// fetched atoms (§6's reconstruct_cache_size).
func NewCached(fetcher Fetcher, size int) (*CachedReconstructor, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedReconstructor{fetcher: fetcher, cache: c}, nil
}

// FetchCached returns digest's bytes, consulting the cache first.
func (c *CachedReconstructor) FetchCached(ctx context.Context, digest string) ([]byte, error) {
	if data, ok := c.cache.Get(digest); ok {
		return data, nil
	}
	data, err := c.fetcher.Fetch(ctx, digest)
	if err != nil {
		return nil, err
	}
	c.cache.Add(digest, data)
	return data, nil
}
