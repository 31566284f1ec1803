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

package atom

import "testing"

func TestDigestIsStableSHA256(t *testing.T) {
	got := Digest([]byte("Hello, World!"))
	want := "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f"
	if got != want {
		t.Fatalf("Digest(%q) = %s, want %s", "Hello, World!", got, want)
	}
}

func TestFromBytesSizeAndDigest(t *testing.T) {
	payload := []byte("abc")
	a := FromBytes(payload, Raw)
	if a.Size != 3 {
		t.Fatalf("expected size 3, got %d", a.Size)
	}
	if a.Digest != Digest(payload) {
		t.Fatalf("digest mismatch")
	}
	if a.RefCount != 0 {
		t.Fatalf("expected fresh atom to have refcount 0, got %d", a.RefCount)
	}
}

func TestKindNeverAffectsDigest(t *testing.T) {
	payload := []byte("abc")
	a1 := FromBytes(payload, Container)
	a2 := FromBytes(payload, ImageData)
	if a1.Digest != a2.Digest {
		t.Fatal("kind must not affect digest identity")
	}
}
