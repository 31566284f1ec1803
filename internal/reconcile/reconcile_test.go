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

package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTracker struct {
	tracked   map[string]bool
	reimports map[string]uint64
}

func (f *fakeTracker) Tracked(digest string) bool { return f.tracked[digest] }
func (f *fakeTracker) Reimport(digest string, size uint64) {
	if f.reimports == nil {
		f.reimports = map[string]uint64{}
	}
	f.reimports[digest] = size
}

type fakeLister struct{ keys []string }

func (f *fakeLister) ListKeys(ctx context.Context) ([]string, error) { return f.keys, nil }

func TestScanOnceReimportsUntrackedKeys(t *testing.T) {
	tracker := &fakeTracker{tracked: map[string]bool{"a": true}}
	lister := &fakeLister{keys: []string{"a", "b", "c"}}
	sizeOf := func(ctx context.Context, key string) (uint64, error) { return uint64(len(key)), nil }

	r := New(tracker, lister, sizeOf, zap.NewNop())
	require.NoError(t, r.ScanOnce(context.Background()))

	require.Len(t, tracker.reimports, 2)
	require.Equal(t, uint64(1), tracker.reimports["b"])
	require.Equal(t, uint64(1), tracker.reimports["c"])
}

func TestScanOnceSkipsAlreadyTracked(t *testing.T) {
	tracker := &fakeTracker{tracked: map[string]bool{"a": true, "b": true}}
	lister := &fakeLister{keys: []string{"a", "b"}}
	sizeOf := func(ctx context.Context, key string) (uint64, error) { return 1, nil }

	r := New(tracker, lister, sizeOf, zap.NewNop())
	require.NoError(t, r.ScanOnce(context.Background()))
	require.Empty(t, tracker.reimports)
}
