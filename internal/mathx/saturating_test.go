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

package mathx

import "testing"

func TestAddUint64Saturates(t *testing.T) {
	got := AddUint64(^uint64(0), 5)
	if got != ^uint64(0) {
		t.Fatalf("expected saturation at max uint64, got %d", got)
	}
}

func TestSubUint64Saturates(t *testing.T) {
	got, underflowed := SubUint64(0, 1)
	if !underflowed {
		t.Fatal("expected underflow to be reported")
	}
	if got != 0 {
		t.Fatalf("expected saturation at 0, got %d", got)
	}
}

func TestSubUint64Normal(t *testing.T) {
	got, underflowed := SubUint64(5, 2)
	if underflowed {
		t.Fatal("unexpected underflow")
	}
	if got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestCeilDiv(t *testing.T) {
	cases := []struct{ x, y, want int }{
		{163840, 65536, 3},
		{65536, 65536, 1},
		{1, 65536, 1},
		{0, 65536, 0},
		{10, 0, 0},
	}
	for _, c := range cases {
		if got := CeilDiv(c.x, c.y); got != c.want {
			t.Fatalf("CeilDiv(%d, %d) = %d, want %d", c.x, c.y, got, c.want)
		}
	}
}
