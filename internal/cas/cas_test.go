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

package cas

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stephanedenis/panini-fs/internal/atom"
	"github.com/stephanedenis/panini-fs/internal/objstore"
	"github.com/stephanedenis/panini-fs/internal/paninierr"
)

func newTestCAS(t *testing.T) *CAS {
	t.Helper()
	be, err := objstore.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { be.Close() })
	return New(be, true)
}

func TestInsertFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCAS(t)

	a, err := c.Insert(ctx, []byte("Hello, World!"), atom.Raw)
	require.NoError(t, err)
	require.Equal(t, "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f", a.Digest)
	require.Equal(t, uint64(13), a.Size)
	require.Equal(t, uint64(1), a.RefCount)

	got, err := c.Fetch(ctx, a.Digest)
	require.NoError(t, err)
	require.Equal(t, []byte("Hello, World!"), got)

	meta, err := c.Meta(a.Digest)
	require.NoError(t, err)
	require.Equal(t, uint64(1), meta.RefCount)
}

func TestDeduplication(t *testing.T) {
	ctx := context.Background()
	c := newTestCAS(t)

	_, err := c.Insert(ctx, []byte("abc"), atom.Container)
	require.NoError(t, err)
	_, err = c.Insert(ctx, []byte("abc"), atom.Raw)
	require.NoError(t, err)
	a, err := c.Insert(ctx, []byte("abc"), atom.ImageData)
	require.NoError(t, err)

	require.Equal(t, uint64(3), a.RefCount)

	keys, err := c.backend.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	stats := c.Stats()
	require.Equal(t, uint64(6), stats.DedupSavings)
}

func TestConcurrentFirstInsertOnlyUploadsOnce(t *testing.T) {
	ctx := context.Background()
	c := newTestCAS(t)
	payload := []byte("race me")

	var wg sync.WaitGroup
	n := 16
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Insert(ctx, payload, atom.Raw)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	meta, err := c.Meta(atom.Digest(payload))
	require.NoError(t, err)
	require.Equal(t, uint64(n), meta.RefCount)

	keys, err := c.backend.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestGCRemovesOnlyOrphans(t *testing.T) {
	ctx := context.Background()
	c := newTestCAS(t)

	a, _ := c.Insert(ctx, []byte("A"), atom.Raw)
	b, _ := c.Insert(ctx, []byte("B"), atom.Raw)
	cc, _ := c.Insert(ctx, []byte("C"), atom.Raw)

	c.DecRef(a.Digest)
	c.DecRef(b.Digest)

	orphans := c.Orphans()
	require.ElementsMatch(t, []string{a.Digest, b.Digest}, orphans)

	stats, err := c.GC(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.DeletedCount)
	require.Equal(t, uint64(2), stats.BytesFreed)

	_, err = c.Fetch(ctx, a.Digest)
	var nf *paninierr.NotFound
	require.ErrorAs(t, err, &nf)

	got, err := c.Fetch(ctx, cc.Digest)
	require.NoError(t, err)
	require.Equal(t, []byte("C"), got)

	require.Equal(t, uint64(1), c.Stats().TotalAtoms)
}

func TestDecRefDoesNotDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCAS(t)
	a, _ := c.Insert(ctx, []byte("x"), atom.Raw)
	c.DecRef(a.Digest)

	got, err := c.Fetch(ctx, a.Digest)
	require.NoError(t, err)
	require.Equal(t, []byte("x"), got)
}

func TestDecRefSaturatesAtZero(t *testing.T) {
	c := newTestCAS(t)
	ctx := context.Background()
	a, _ := c.Insert(ctx, []byte("x"), atom.Raw)
	c.DecRef(a.Digest)
	c.DecRef(a.Digest)
	meta, err := c.Meta(a.Digest)
	require.NoError(t, err)
	require.Equal(t, uint64(0), meta.RefCount)
}
