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

package reconstruct

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stephanedenis/panini-fs/internal/atom"
)

func TestReconstructVerifiesDigests(t *testing.T) {
	payloads := [][]byte{[]byte("hello "), []byte("world")}
	atoms := []*atom.Atom{
		atom.FromBytes(payloads[0], atom.Raw),
		atom.FromBytes(payloads[1], atom.Raw),
	}
	out, err := Reconstruct(atoms, payloads)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), out)
}

func TestReconstructDetectsMismatch(t *testing.T) {
	payloads := [][]byte{[]byte("hello ")}
	atoms := []*atom.Atom{atom.FromBytes([]byte("different"), atom.Raw)}
	_, err := Reconstruct(atoms, payloads)
	require.Error(t, err)
}

func TestReconstructEmptyYieldsEmpty(t *testing.T) {
	out, err := Reconstruct(nil, nil)
	require.NoError(t, err)
	require.Empty(t, out)
}

type fakeFetcher struct{ calls int }

func (f *fakeFetcher) Fetch(ctx context.Context, digest string) ([]byte, error) {
	f.calls++
	return []byte(digest), nil
}

func TestCachedReconstructorCachesByDigest(t *testing.T) {
	f := &fakeFetcher{}
	cr, err := NewCached(f, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cr.FetchCached(ctx, "deadbeef")
	require.NoError(t, err)
	_, err = cr.FetchCached(ctx, "deadbeef")
	require.NoError(t, err)

	require.Equal(t, 1, f.calls)
}
