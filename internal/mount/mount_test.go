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

package mount

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stephanedenis/panini-fs/internal/atom"
	"github.com/stephanedenis/panini-fs/internal/paninierr"
	"github.com/stephanedenis/panini-fs/internal/temporal"
)

type fakeMeta struct {
	byDigest map[string]atom.Meta
}

func (f *fakeMeta) Meta(digest string) (atom.Meta, error) {
	m, ok := f.byDigest[digest]
	if !ok {
		return atom.Meta{}, &paninierr.NotFound{What: "atom", Key: digest}
	}
	return m, nil
}

func buildIndex(t *testing.T) (*temporal.Index, *fakeMeta) {
	t.Helper()
	idx := temporal.NewIndex()
	meta := &fakeMeta{byDigest: map[string]atom.Meta{
		"aaaa1111bbbb2222cccc3333dddd4444eeee5555ffff6666aaaa7777bbbb8888": {Kind: atom.Raw, Size: 4},
	}}
	c := temporal.NewConcept("hello", []string{"aaaa1111bbbb2222cccc3333dddd4444eeee5555ffff6666aaaa7777bbbb8888"}, 4, "tester", "init", time.Now().UTC())
	idx.PutConcept(c)
	return idx, meta
}

func TestLiveBindingsReflectsCurrentHeads(t *testing.T) {
	idx, _ := buildIndex(t)
	bs := liveBindings(idx)
	bindings, err := bs.resolve()
	require.NoError(t, err)
	require.Len(t, bindings, 1)
}

func TestSnapshotBindingsUsesCapturedState(t *testing.T) {
	idx, _ := buildIndex(t)
	snap := idx.CreateSnapshot("s1")
	bs := snapshotBindings(idx, snap.ID)
	bindings, err := bs.resolve()
	require.NoError(t, err)
	require.Equal(t, snap.Bindings, bindings)
}

func TestSnapshotBindingsUnknownIDFails(t *testing.T) {
	idx, _ := buildIndex(t)
	bs := snapshotBindings(idx, "nope")
	_, err := bs.resolve()
	require.Error(t, err)
}

func TestTimeBindingsBeforeCreationIsEmpty(t *testing.T) {
	idx, _ := buildIndex(t)
	bs := timeBindings(idx, time.Now().UTC().Add(-time.Hour))
	bindings, err := bs.resolve()
	require.NoError(t, err)
	require.Empty(t, bindings)
}

func TestConceptNodeFileNameUsesDigestPrefixAndKind(t *testing.T) {
	_, meta := buildIndex(t)
	fsys := &FS{meta: meta}
	n := &conceptNode{fsys: fsys}
	name, ok := n.fileName("aaaa1111bbbb2222cccc3333dddd4444eeee5555ffff6666aaaa7777bbbb8888")
	require.True(t, ok)
	require.Equal(t, "aaaa1111.raw", name)
}

func TestConceptNodeFileNameMissingDigestFails(t *testing.T) {
	_, meta := buildIndex(t)
	fsys := &FS{meta: meta}
	n := &conceptNode{fsys: fsys}
	_, ok := n.fileName("0000000000000000000000000000000000000000000000000000000000000000")
	require.False(t, ok)
}

func TestAllocInoIsSequentialAndDisjointFromReserved(t *testing.T) {
	fsys := &FS{nextIno: firstDynamicIno}
	a := fsys.allocIno()
	b := fsys.allocIno()
	require.GreaterOrEqual(t, a, uint64(firstDynamicIno))
	require.Equal(t, a+1, b)
}

func TestVersionLinkNodeReadlinkReturnsVersionID(t *testing.T) {
	n := &versionLinkNode{target: "123_abcdef0123456789"}
	target, errno := n.Readlink(context.Background())
	require.Equal(t, syscall.Errno(0), errno)
	require.Equal(t, "123_abcdef0123456789", string(target))
}
