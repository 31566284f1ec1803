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

package persist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stephanedenis/panini-fs/internal/temporal"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := temporal.NewIndex()
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	c := temporal.NewConcept("doc", []string{"a", "b"}, 2, "alice", "init", ts)
	idx.PutConcept(c)

	store, err := Open(filepath.Join(t.TempDir(), "panini.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(idx))

	loaded, err := store.Load()
	require.NoError(t, err)

	got, err := loaded.GetConcept(c.ID)
	require.NoError(t, err)
	require.Equal(t, c.Name, got.Name)
	require.Equal(t, c.Head, got.Head)
	require.Len(t, got.History(), 1)
}

func TestSaveIsIdempotentAcrossCalls(t *testing.T) {
	idx := temporal.NewIndex()
	ts := time.Now().UTC()
	c := temporal.NewConcept("doc", []string{"a"}, 1, "alice", "init", ts)
	idx.PutConcept(c)

	store, err := Open(filepath.Join(t.TempDir(), "panini.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(idx))
	require.NoError(t, store.Save(idx)) // second save must not duplicate rows

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.ListConcepts(), 1)
}

func TestLoadOnEmptyStoreYieldsEmptyIndex(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "panini.db"))
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, loaded.ListConcepts())
}
