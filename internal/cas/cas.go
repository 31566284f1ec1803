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

// Package cas implements the content-addressed store (C3): insert/fetch
// with deduplication, reference-counted garbage collection, and the atom
// composition graph.
package cas

import (
	"context"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/emicklei/dot"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/stephanedenis/panini-fs/internal/atom"
	"github.com/stephanedenis/panini-fs/internal/mathx"
	"github.com/stephanedenis/panini-fs/internal/objstore"
	"github.com/stephanedenis/panini-fs/internal/paninierr"
)

// Stats mirrors §4.3's stats() contract.
type Stats struct {
	TotalAtoms   uint64
	TotalBytes   uint64
	DedupAtoms   uint64
	DedupSavings uint64
	UniqueAtoms  uint64
}

// GcStats mirrors §4.3's gc() result.
type GcStats struct {
	DeletedCount uint64
	BytesFreed   uint64
}

// CAS wraps an object backend and maintains the in-memory atom index and
// composition graph described in §4.3. The atoms map is guarded by an
// RWMutex; the hot path (Fetch, IncRef) takes a read lock, Insert and GC
// take a write lock.
type CAS struct {
	backend     objstore.Backend
	enableDedup bool

	mu    sync.RWMutex
	atoms map[string]*atom.Meta

	// orphans tracks digests with refcount==0 as a compact bitset over a
	// stable digest->ordinal mapping, avoiding a full scan on Orphans().
	ordinals    map[string]uint32
	nextOrdinal uint32
	ordinalKey  []string // ordinal -> digest, parallel to ordinals
	orphanBits  *roaring.Bitmap

	graph     *dot.Graph
	graphMu   sync.Mutex
	graphNode map[string]dot.Node

	// inFlight serializes concurrent first-inserters of the same new
	// digest so only one of them calls backend.Put; this is the fix for
	// the lock-release race flagged in §5/§9 of the specification.
	inFlight singleflight.Group
}

// New constructs a CAS over backend. enableDedup matches §6's
// configuration option of the same name.
func New(backend objstore.Backend, enableDedup bool) *CAS {
	g := dot.NewGraph(dot.Directed)
	return &CAS{
		backend:     backend,
		enableDedup: enableDedup,
		atoms:       make(map[string]*atom.Meta),
		ordinals:    make(map[string]uint32),
		orphanBits:  roaring.New(),
		graph:       g,
		graphNode:   make(map[string]dot.Node),
	}
}

func (c *CAS) ordinalFor(digest string) uint32 {
	if ord, ok := c.ordinals[digest]; ok {
		return ord
	}
	ord := c.nextOrdinal
	c.nextOrdinal++
	c.ordinals[digest] = ord
	c.ordinalKey = append(c.ordinalKey, digest)
	return ord
}

func (c *CAS) markOrphan(digest string) {
	c.orphanBits.Add(c.ordinalFor(digest))
}

func (c *CAS) clearOrphan(digest string) {
	if ord, ok := c.ordinals[digest]; ok {
		c.orphanBits.Remove(ord)
	}
}

// Insert stores payload (deduplicated by digest) and returns the resulting
// atom. See §4.3 for the exact algorithm this implements, including the
// in-flight map that prevents a duplicate upload race.
func (c *CAS) Insert(ctx context.Context, payload []byte, kind atom.Kind) (*atom.Atom, error) {
	digest := atom.Digest(payload)

	c.mu.Lock()
	if existing, ok := c.atoms[digest]; ok && c.enableDedup {
		existing.RefCount = mathx.AddUint64(existing.RefCount, 1)
		c.clearOrphan(digest)
		a := metaToAtom(existing)
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	// The digest is new (or dedup is disabled): release the write lock
	// across the backend I/O. A per-digest in-flight group ensures only
	// one concurrent caller actually uploads and registers the atom; the
	// rest wait on its result and then bump the refcount themselves below.
	ran := false
	_, err, _ := c.inFlight.Do(digest, func() (interface{}, error) {
		ran = true
		c.mu.Lock()
		if existing, ok := c.atoms[digest]; ok && c.enableDedup {
			existing.RefCount = mathx.AddUint64(existing.RefCount, 1)
			c.clearOrphan(digest)
			c.mu.Unlock()
			return nil, nil
		}
		c.mu.Unlock()

		if _, err := c.backend.Put(ctx, digest, payload); err != nil {
			return nil, errors.Wrap(err, "cas: backend put failed")
		}

		c.mu.Lock()
		if existing, ok := c.atoms[digest]; ok {
			// dedup disabled and this digest was already tracked: the
			// backend write above is a re-write (idempotent at the key
			// level), but the atom is still logically referenced once
			// more.
			existing.RefCount = mathx.AddUint64(existing.RefCount, 1)
			c.clearOrphan(digest)
		} else {
			c.atoms[digest] = &atom.Meta{
				Digest:    digest,
				Kind:      kind,
				Size:      uint64(len(payload)),
				RefCount:  1,
				CreatedAt: time.Now().UTC(),
				Attrs:     map[string]string{},
			}
			c.ordinalFor(digest)
		}
		c.mu.Unlock()

		c.registerNode(digest)
		return nil, nil
	})
	if err != nil {
		return nil, &paninierr.IoError{Op: "insert", Cause: err}
	}

	c.mu.Lock()
	meta := c.atoms[digest]
	if !ran {
		meta.RefCount = mathx.AddUint64(meta.RefCount, 1)
		c.clearOrphan(digest)
	}
	a := metaToAtom(meta)
	c.mu.Unlock()
	return a, nil
}

func metaToAtom(m *atom.Meta) *atom.Atom {
	return &atom.Atom{
		Digest:    m.Digest,
		Kind:      m.Kind,
		Size:      m.Size,
		RefCount:  m.RefCount,
		CreatedAt: m.CreatedAt,
		Attrs:     m.Attrs,
	}
}

func (c *CAS) registerNode(digest string) {
	c.graphMu.Lock()
	defer c.graphMu.Unlock()
	if _, ok := c.graphNode[digest]; ok {
		return
	}
	n := c.graph.Node(digest)
	c.graphNode[digest] = n
}

// Link records a parent/child composition edge in the graph, used by the
// decomposer to relate a container atom to the atoms it composes. It does
// not affect refcount accounting.
func (c *CAS) Link(parent, child string) {
	c.graphMu.Lock()
	defer c.graphMu.Unlock()
	p, ok := c.graphNode[parent]
	if !ok {
		p = c.graph.Node(parent)
		c.graphNode[parent] = p
	}
	ch, ok := c.graphNode[child]
	if !ok {
		ch = c.graph.Node(child)
		c.graphNode[child] = ch
	}
	c.graph.Edge(p, ch)
}

// Fetch returns the payload for digest, failing NotFound if it isn't
// tracked in the index (even if it happens to still exist in the backend —
// that case is the reconciliation adjunct's job, not Fetch's).
func (c *CAS) Fetch(ctx context.Context, digest string) ([]byte, error) {
	c.mu.RLock()
	_, ok := c.atoms[digest]
	c.mu.RUnlock()
	if !ok {
		return nil, &paninierr.NotFound{What: "atom", Key: digest}
	}
	data, err := c.backend.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Meta returns the tracked metadata for digest.
func (c *CAS) Meta(digest string) (atom.Meta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.atoms[digest]
	if !ok {
		return atom.Meta{}, &paninierr.NotFound{What: "atom", Key: digest}
	}
	return *m, nil
}

// IncRef bumps digest's refcount by one, saturating. No-op if digest is
// untracked.
func (c *CAS) IncRef(digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.atoms[digest]
	if !ok {
		return
	}
	m.RefCount = mathx.AddUint64(m.RefCount, 1)
	c.clearOrphan(digest)
}

// DecRef decrements digest's refcount by one, saturating at zero. Reaching
// zero marks the atom eligible for GC; it does not delete it.
func (c *CAS) DecRef(digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.atoms[digest]
	if !ok {
		return
	}
	newCount, _ := mathx.SubUint64(m.RefCount, 1)
	m.RefCount = newCount
	if newCount == 0 {
		c.markOrphan(digest)
	}
}

// Orphans returns a snapshot of every digest currently at refcount 0.
func (c *CAS) Orphans() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	it := c.orphanBits.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if int(ord) < len(c.ordinalKey) {
			out = append(out, c.ordinalKey[ord])
		}
	}
	return out
}

// GC deletes every orphaned atom from the backend and the in-memory index.
// Per §4.3, deletion from the backend happens before the in-memory entry is
// pruned, so a crash mid-GC leaves the atom rediscoverable by the
// reconciliation adjunct rather than silently missing from both.
func (c *CAS) GC(ctx context.Context) (GcStats, error) {
	orphans := c.Orphans()

	var stats GcStats
	for _, digest := range orphans {
		c.mu.RLock()
		m, ok := c.atoms[digest]
		c.mu.RUnlock()
		if !ok || m.RefCount != 0 {
			continue // raced with a concurrent IncRef; leave it alone
		}

		if err := c.backend.Delete(ctx, digest); err != nil {
			return stats, &paninierr.IoError{Op: "gc delete", Cause: err}
		}

		c.mu.Lock()
		if m2, ok := c.atoms[digest]; ok && m2.RefCount == 0 {
			delete(c.atoms, digest)
			c.clearOrphan(digest)
			stats.DeletedCount++
			stats.BytesFreed = mathx.AddUint64(stats.BytesFreed, m2.Size)
		}
		c.mu.Unlock()
	}
	return stats, nil
}

// Stats computes the aggregate view of §4.3.
func (c *CAS) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var s Stats
	s.TotalAtoms = uint64(len(c.atoms))
	s.UniqueAtoms = s.TotalAtoms
	for _, m := range c.atoms {
		s.TotalBytes = mathx.AddUint64(s.TotalBytes, m.Size)
		if m.RefCount > 1 {
			s.DedupAtoms++
			s.DedupSavings = mathx.AddUint64(s.DedupSavings, m.Size*(m.RefCount-1))
		}
	}
	return s
}

// ExportGraph renders the atom composition graph as DOT, for offline
// inspection — the §6 export_graph façade operation.
func (c *CAS) ExportGraph() string {
	c.graphMu.Lock()
	defer c.graphMu.Unlock()
	return c.graph.String()
}

// Reimport registers digest as a tracked atom with refcount 0, used by the
// reconciliation adjunct to absorb backend objects the in-memory index
// doesn't yet know about (§4.3).
func (c *CAS) Reimport(digest string, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.atoms[digest]; ok {
		return
	}
	c.atoms[digest] = &atom.Meta{
		Digest:    digest,
		Kind:      atom.Raw,
		Size:      size,
		RefCount:  0,
		CreatedAt: time.Now().UTC(),
		Attrs:     map[string]string{},
	}
	c.ordinalFor(digest)
	c.markOrphan(digest)
}

// Tracked reports whether digest is currently present in the in-memory
// index, used by the reconciliation adjunct to find backend keys it
// doesn't know about yet.
func (c *CAS) Tracked(digest string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.atoms[digest]
	return ok
}

// Backend exposes the underlying object backend, for components (like the
// reconciliation adjunct) that need to list or stat it directly.
func (c *CAS) Backend() objstore.Backend {
	return c.backend
}
