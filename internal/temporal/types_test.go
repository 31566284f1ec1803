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
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContentHashIsOverDigestStrings(t *testing.T) {
	atoms := []string{"aaa", "bbb"}
	v := newVersion("", atoms, 6, "u", "m", time.Now().UTC())

	h := sha256.New()
	h.Write([]byte("aaa"))
	h.Write([]byte("bbb"))
	want := hex.EncodeToString(h.Sum(nil))

	require.Equal(t, want, v.ContentHash)
}

func TestVersionIDFormat(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	v := newVersion("", []string{"a"}, 1, "u", "m", ts)
	require.Contains(t, v.VersionID, "_")
	require.Len(t, v.VersionID[len(v.VersionID)-17:], 17) // "_" + 16 hex chars
}

func TestConceptIDDerivedFromInitialVersion(t *testing.T) {
	ts := time.Now().UTC()
	c := NewConcept("name", []string{"a", "b"}, 2, "u", "m", ts)
	require.Contains(t, c.ID, "concept_")
	require.Len(t, c.ID, len("concept_")+16)
}
