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

package temporal

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/stephanedenis/panini-fs/internal/paninierr"
)

// timelineKey orders events by timestamp, ties broken by insertion order,
// matching §4.6's ordering guarantee.
type timelineKey struct {
	ts    time.Time
	order uint64
}

func lessTimelineKey(a, b timelineKey) bool {
	if a.ts.Equal(b.ts) {
		return a.order < b.order
	}
	return a.ts.Before(b.ts)
}

type timelineEntry struct {
	key   timelineKey
	event *TimelineEvent
}

func lessEntry(a, b timelineEntry) bool {
	return lessTimelineKey(a.key, b.key)
}

// Index is the temporal index (C6). The concepts map and timeline tree are
// guarded by a single RWMutex; reads (History, StateAt, TimelineRange)
// take a read lock, mutations take a write lock.
type Index struct {
	mu        sync.RWMutex
	concepts  map[string]*Concept
	snapshots map[string]*Snapshot
	timeline  *btree.BTreeG[timelineEntry]
	nextOrder uint64
}

// NewIndex constructs an empty temporal index.
func NewIndex() *Index {
	return &Index{
		concepts:  make(map[string]*Concept),
		snapshots: make(map[string]*Snapshot),
		timeline:  btree.NewG(32, lessEntry),
	}
}

func (idx *Index) emit(ev TimelineEvent, ts time.Time) {
	ev.Timestamp = ts
	idx.nextOrder++
	ev.insertionOrder = idx.nextOrder
	idx.timeline.ReplaceOrInsert(timelineEntry{
		key:   timelineKey{ts: ts, order: ev.insertionOrder},
		event: &ev,
	})
}

// PutConcept inserts (or, idempotently by id, replaces) a first-version
// concept and emits ConceptCreated at concept.CreatedAt. Replacing an
// existing id is a deliberate last-write-wins choice to support
// rehydration from persistence (§4.6).
func (idx *Index) PutConcept(c *Concept) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.concepts[c.ID] = c
	idx.emit(TimelineEvent{Kind: ConceptCreated, ConceptID: c.ID, VersionID: c.Head}, c.CreatedAt)
}

// GetConcept returns the concept by id.
func (idx *Index) GetConcept(id string) (*Concept, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.concepts[id]
	if !ok {
		return nil, &paninierr.NotFound{What: "concept", Key: id}
	}
	return c, nil
}

// ListConcepts returns every tracked concept, in no particular order.
func (idx *Index) ListConcepts() []*Concept {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*Concept, 0, len(idx.concepts))
	for _, c := range idx.concepts {
		out = append(out, c)
	}
	return out
}

// PushVersion appends a new version to an existing concept, updating its
// head, and emits ConceptModified at now.
func (idx *Index) PushVersion(conceptID string, atoms []string, size uint64, author, message string) (string, error) {
	return idx.pushVersionAt(conceptID, atoms, size, author, message, time.Now().UTC())
}

func (idx *Index) pushVersionAt(conceptID string, atoms []string, size uint64, author, message string, ts time.Time) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	c, ok := idx.concepts[conceptID]
	if !ok {
		return "", &paninierr.NotFound{What: "concept", Key: conceptID}
	}

	prevHead := c.Head
	v := newVersion(prevHead, atoms, size, author, message, ts)
	c.Versions[v.VersionID] = v
	c.order = append(c.order, v.VersionID)
	c.Head = v.VersionID
	c.UpdatedAt = ts

	idx.emit(TimelineEvent{
		Kind:          ConceptModified,
		ConceptID:     conceptID,
		VersionID:     v.VersionID,
		PreviousVerID: prevHead,
	}, ts)

	return v.VersionID, nil
}

// History returns every version of a concept in chronological order.
func (idx *Index) History(conceptID string) ([]*Version, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.concepts[conceptID]
	if !ok {
		return nil, &paninierr.NotFound{What: "concept", Key: conceptID}
	}
	return c.History(), nil
}

// Diff computes the set-difference of two versions' atom lists.
func (idx *Index) Diff(conceptID, fromVid, toVid string) (Diff, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.concepts[conceptID]
	if !ok {
		return Diff{}, &paninierr.NotFound{What: "concept", Key: conceptID}
	}
	from, ok := c.Versions[fromVid]
	if !ok {
		return Diff{}, &paninierr.NotFound{What: "version", Key: fromVid}
	}
	to, ok := c.Versions[toVid]
	if !ok {
		return Diff{}, &paninierr.NotFound{What: "version", Key: toVid}
	}

	fromSet := make(map[string]bool, len(from.Atoms))
	for _, d := range from.Atoms {
		fromSet[d] = true
	}
	toSet := make(map[string]bool, len(to.Atoms))
	for _, d := range to.Atoms {
		toSet[d] = true
	}

	var added, removed []string
	for d := range toSet {
		if !fromSet[d] {
			added = append(added, d)
		}
	}
	for d := range fromSet {
		if !toSet[d] {
			removed = append(removed, d)
		}
	}

	return Diff{
		Added:     added,
		Removed:   removed,
		SizeDelta: int64(to.Size) - int64(from.Size),
	}, nil
}

// Revert pushes a new version whose atoms/size equal the target version's.
// Revert never mutates history; it only adds a new version on top.
func (idx *Index) Revert(conceptID, targetVid, author string) (string, error) {
	idx.mu.RLock()
	c, ok := idx.concepts[conceptID]
	if !ok {
		idx.mu.RUnlock()
		return "", &paninierr.NotFound{What: "concept", Key: conceptID}
	}
	target, ok := c.Versions[targetVid]
	if !ok {
		idx.mu.RUnlock()
		return "", &paninierr.NotFound{What: "version", Key: targetVid}
	}
	atoms := append([]string(nil), target.Atoms...)
	size := target.Size
	idx.mu.RUnlock()

	message := "Revert to version " + targetVid
	return idx.PushVersion(conceptID, atoms, size, author, message)
}

// CreateSnapshot captures every concept's current head at call time.
func (idx *Index) CreateSnapshot(name string) *Snapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ts := time.Now().UTC()
	bindings := make(map[string]string, len(idx.concepts))
	for id, c := range idx.concepts {
		bindings[id] = c.Head
	}
	s := &Snapshot{
		ID:        generateSnapshotID(name, ts),
		Name:      name,
		Timestamp: ts,
		Bindings:  bindings,
	}
	idx.snapshots[s.ID] = s
	idx.emit(TimelineEvent{Kind: SnapshotCreated, SnapshotID: s.ID}, ts)
	return s
}

// ListSnapshots returns every snapshot, in no particular order.
func (idx *Index) ListSnapshots() []*Snapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*Snapshot, 0, len(idx.snapshots))
	for _, s := range idx.snapshots {
		out = append(out, s)
	}
	return out
}

// GetSnapshot returns a snapshot by id.
func (idx *Index) GetSnapshot(id string) (*Snapshot, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s, ok := idx.snapshots[id]
	if !ok {
		return nil, &paninierr.NotFound{What: "snapshot", Key: id}
	}
	return s, nil
}

// StateAt replays the timeline up to and including t, returning the head
// binding of every concept as of that instant. Snapshots are spectators:
// they don't affect replay, only record it. An absent concept has no
// binding.
func (idx *Index) StateAt(t time.Time) map[string]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bindings := make(map[string]string)
	idx.timeline.Ascend(func(e timelineEntry) bool {
		if e.key.ts.After(t) {
			return false
		}
		switch e.event.Kind {
		case ConceptCreated, ConceptModified:
			bindings[e.event.ConceptID] = e.event.VersionID
		}
		return true
	})
	return bindings
}

// TimelineRange returns every event with timestamp in [start, end],
// inclusive on both ends.
func (idx *Index) TimelineRange(start, end time.Time) []TimelineEvent {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []TimelineEvent
	idx.timeline.AscendRange(
		timelineEntry{key: timelineKey{ts: start, order: 0}},
		timelineEntry{key: timelineKey{ts: end.Add(time.Nanosecond), order: 0}},
		func(e timelineEntry) bool {
			out = append(out, *e.event)
			return true
		},
	)
	return out
}
