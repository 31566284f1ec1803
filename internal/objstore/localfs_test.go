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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stephanedenis/panini-fs/internal/atom"
	"github.com/stephanedenis/panini-fs/internal/paninierr"
)

func TestLocalFSPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	be, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	defer be.Close()

	payload := []byte("Hello, World!")
	key := atom.Digest(payload)

	res, err := be.Put(ctx, key, payload)
	require.NoError(t, err)
	require.False(t, res.AlreadyExisted)
	require.Equal(t, uint64(13), res.Size)

	got, err := be.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	exists, err := be.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestLocalFSPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	be, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	defer be.Close()

	payload := []byte("abc")
	key := atom.Digest(payload)

	_, err = be.Put(ctx, key, payload)
	require.NoError(t, err)

	res, err := be.Put(ctx, key, payload)
	require.NoError(t, err)
	require.True(t, res.AlreadyExisted)

	keys, err := be.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestLocalFSGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	be, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	defer be.Close()

	_, err = be.Get(ctx, "deadbeef")
	var nf *paninierr.NotFound
	require.True(t, errors.As(err, &nf))
}

func TestLocalFSDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	be, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	defer be.Close()

	require.NoError(t, be.Delete(ctx, "deadbeef"))
	require.NoError(t, be.Delete(ctx, "deadbeef"))
}

func TestLocalFSSecondOpenFails(t *testing.T) {
	dir := t.TempDir()
	be1, err := NewLocalFS(dir)
	require.NoError(t, err)
	defer be1.Close()

	_, err = NewLocalFS(dir)
	require.Error(t, err)
}
