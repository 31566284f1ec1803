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
	"time"

	"github.com/google/btree"
)

// RehydrateConcept rebuilds a Concept from persisted rows. versions must be
// given in their original insertion order, since History() replays that
// order rather than sorting by timestamp.
func RehydrateConcept(id, name, head string, createdAt, updatedAt time.Time, metadata map[string]string, versions []*Version) *Concept {
	order := make([]string, len(versions))
	vmap := make(map[string]*Version, len(versions))
	for i, v := range versions {
		order[i] = v.VersionID
		vmap[v.VersionID] = v
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Concept{
		ID:        id,
		Name:      name,
		Head:      head,
		Versions:  vmap,
		order:     order,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Metadata:  metadata,
	}
}

// Dump returns every concept, snapshot and timeline event currently held by
// the index, the latter in ascending timeline order. Used by the
// persistence adjunct to serialize the whole index.
func (idx *Index) Dump() ([]*Concept, []*Snapshot, []TimelineEvent) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	concepts := make([]*Concept, 0, len(idx.concepts))
	for _, c := range idx.concepts {
		concepts = append(concepts, c)
	}
	snapshots := make([]*Snapshot, 0, len(idx.snapshots))
	for _, s := range idx.snapshots {
		snapshots = append(snapshots, s)
	}
	var events []TimelineEvent
	idx.timeline.Ascend(func(e timelineEntry) bool {
		events = append(events, *e.event)
		return true
	})
	return concepts, snapshots, events
}

// Restore replaces the index's contents wholesale with persisted state.
// events must be given in their original relative order; Restore
// renumbers them sequentially rather than trusting a persisted
// insertionOrder, so gaps left by a partial load never reopen.
func (idx *Index) Restore(concepts []*Concept, snapshots []*Snapshot, events []TimelineEvent) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.concepts = make(map[string]*Concept, len(concepts))
	for _, c := range concepts {
		idx.concepts[c.ID] = c
	}
	idx.snapshots = make(map[string]*Snapshot, len(snapshots))
	for _, s := range snapshots {
		idx.snapshots[s.ID] = s
	}

	idx.timeline = btree.NewG(32, lessEntry)
	idx.nextOrder = 0
	for _, ev := range events {
		idx.nextOrder++
		e := ev
		e.insertionOrder = idx.nextOrder
		idx.timeline.ReplaceOrInsert(timelineEntry{
			key:   timelineKey{ts: e.Timestamp, order: e.insertionOrder},
			event: &e,
		})
	}
}
