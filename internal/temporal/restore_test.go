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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDumpRestoreRoundTrip(t *testing.T) {
	idx := NewIndex()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewConcept("doc", []string{"a", "b"}, 2, "u", "init", ts)
	idx.PutConcept(c)
	_, err := idx.pushVersionAt(c.ID, []string{"a", "b", "c"}, 3, "u", "append", ts.Add(time.Minute))
	require.NoError(t, err)
	snap := idx.CreateSnapshot("s1")

	concepts, snapshots, events := idx.Dump()
	require.Len(t, concepts, 1)
	require.Len(t, snapshots, 1)
	require.Len(t, events, 3) // created, modified, snapshot

	restored := NewIndex()
	rebuilt := make([]*Version, 0)
	for _, v := range concepts[0].History() {
		rebuilt = append(rebuilt, v)
	}
	rc := RehydrateConcept(concepts[0].ID, concepts[0].Name, concepts[0].Head, concepts[0].CreatedAt, concepts[0].UpdatedAt, concepts[0].Metadata, rebuilt)
	restored.Restore([]*Concept{rc}, snapshots, events)

	got, err := restored.GetConcept(c.ID)
	require.NoError(t, err)
	require.Equal(t, c.Head, got.Head)
	require.Len(t, got.History(), 2)

	gotSnap, err := restored.GetSnapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, snap.Bindings, gotSnap.Bindings)

	// The snapshot event carries the wall-clock time CreateSnapshot ran at,
	// so the range has to reach past now to include it.
	restoredEvents := restored.TimelineRange(ts.Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.Len(t, restoredEvents, 3)
}
