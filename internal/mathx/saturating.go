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

// Package mathx provides small, allocation-free integer helpers shared by
// the refcount and chunking arithmetic across the storage substrate.
package mathx

import (
	"math/bits"
)

// SafeAdd returns x+y and reports whether the addition overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// SafeSub returns x-y and reports whether the subtraction underflowed.
func SafeSub(x, y uint64) (uint64, bool) {
	diff, borrowOut := bits.Sub64(x, y, 0)
	return diff, borrowOut != 0
}

// AddUint64 adds y to x, saturating at MaxUint64 instead of wrapping.
func AddUint64(x, y uint64) uint64 {
	sum, overflow := SafeAdd(x, y)
	if overflow {
		return ^uint64(0)
	}
	return sum
}

// SubUint64 subtracts y from x, saturating at 0 instead of wrapping.
// Refcounts are specified as saturating; a decrement past zero is a no-op,
// not a fatal error, but callers that observe an underflow here most likely
// have a refcount/insert accounting bug and should log it.
func SubUint64(x, y uint64) (result uint64, underflowed bool) {
	diff, underflow := SafeSub(x, y)
	if underflow {
		return 0, true
	}
	return diff, false
}

// CeilDiv returns ceil(x/y) for positive y, or 0 if y is zero or negative.
// This is the atom count a fixed chunk size y yields from x bytes.
func CeilDiv(x, y int) int {
	if y <= 0 {
		return 0
	}
	return (x + y - 1) / y
}
