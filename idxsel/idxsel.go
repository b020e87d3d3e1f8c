// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package idxsel is the "which rows" encoding every batch-wise
// accumulator and join operation is parameterized over: a single row,
// a contiguous [lo, hi) range, or an explicit list of row indices.
package idxsel

import (
	"fmt"
)

// Kind discriminates the three IdxSelection encodings.
type Kind int

const (
	KindSingle Kind = iota
	KindRange
	KindIndices
)

// Selection is a compact description of a set of row indices into a
// record batch. The zero value is Single(0), since KindSingle is the
// zero Kind.
//
// Only one of the three encodings is active at a time; which one is
// reported by Kind.
type Selection struct {
	kind    Kind
	single  uint32
	lo, hi  uint32
	indices []uint32
}

// Single returns a selection naming exactly one row.
func Single(idx uint32) Selection {
	return Selection{kind: KindSingle, single: idx}
}

// Range returns a selection naming the contiguous half-open row range
// [lo, hi). Range panics if hi < lo.
func Range(lo, hi uint32) Selection {
	if hi < lo {
		panic(fmt.Sprintf("idxsel.Range: hi %d < lo %d", hi, lo))
	}
	return Selection{kind: KindRange, lo: lo, hi: hi}
}

// Indices returns a selection naming exactly the rows in idx. idx is
// retained, not copied.
func Indices(idx []uint32) Selection {
	return Selection{kind: KindIndices, indices: idx}
}

// Kind reports which of the three encodings s holds.
func (s Selection) Kind() Kind { return s.kind }

// Len reports the number of rows named by s.
func (s Selection) Len() int {
	switch s.kind {
	case KindSingle:
		return 1
	case KindRange:
		return int(s.hi - s.lo)
	default:
		return len(s.indices)
	}
}

// SingleIndex returns the row index of a KindSingle selection. It
// panics if s is not KindSingle.
func (s Selection) SingleIndex() uint32 {
	if s.kind != KindSingle {
		panic("idxsel: SingleIndex on non-Single selection")
	}
	return s.single
}

// Bounds returns the [lo, hi) bounds of a KindRange selection. It
// panics if s is not KindRange.
func (s Selection) Bounds() (lo, hi uint32) {
	if s.kind != KindRange {
		panic("idxsel: Bounds on non-Range selection")
	}
	return s.lo, s.hi
}

// IndexSlice returns the backing index slice of a KindIndices
// selection. It panics if s is not KindIndices. The returned slice
// must not be mutated.
func (s Selection) IndexSlice() []uint32 {
	if s.kind != KindIndices {
		panic("idxsel: IndexSlice on non-Indices selection")
	}
	return s.indices
}

// ForEach calls fn once per row named by s, in selection order
// (ascending for a Range, as given for Indices), with the absolute
// row index into the backing batch.
func (s Selection) ForEach(fn func(row uint32)) {
	switch s.kind {
	case KindSingle:
		fn(s.single)
	case KindRange:
		for i := s.lo; i < s.hi; i++ {
			fn(i)
		}
	case KindIndices:
		for _, i := range s.indices {
			fn(i)
		}
	}
}

// Dense materializes s as a dense []uint32 of row indices. It always
// allocates and copies, even for KindIndices; callers on a hot path
// that already hold a dense slice should prefer IndexSlice+Kind
// checks instead.
func (s Selection) Dense() []uint32 {
	out := make([]uint32, 0, s.Len())
	s.ForEach(func(row uint32) { out = append(out, row) })
	return out
}

// Zip walks two selections in lockstep and calls fn with the i'th row
// of a and the i'th row of b. If one of the selections has length 1
// and the other does not, the length-1 selection is broadcast: its
// single row index is reused for every iteration. Zip panics if the
// lengths differ and neither is 1.
func Zip(a, b Selection, fn func(rowA, rowB uint32)) {
	na, nb := a.Len(), b.Len()
	switch {
	case na == nb:
		zipEqual(a, b, fn)
	case na == 1:
		ra := a.at(0)
		b.ForEach(func(rowB uint32) { fn(ra, rowB) })
	case nb == 1:
		rb := b.at(0)
		a.ForEach(func(rowA uint32) { fn(rowA, rb) })
	default:
		panic(fmt.Sprintf("idxsel.Zip: length mismatch %d vs %d", na, nb))
	}
}

func zipEqual(a, b Selection, fn func(rowA, rowB uint32)) {
	n := a.Len()
	// Avoid allocating Dense() slices on the common equal-length path
	// by resolving random access into each selection directly.
	for i := 0; i < n; i++ {
		fn(a.at(i), b.at(i))
	}
}

// at returns the i'th row index named by s. It is O(1) for Single and
// Range, O(1) for Indices (slice index).
func (s Selection) at(i int) uint32 {
	switch s.kind {
	case KindSingle:
		return s.single
	case KindRange:
		return s.lo + uint32(i)
	default:
		return s.indices[i]
	}
}

// At exposes the random-access row lookup used internally by Zip. It
// is O(1) for every encoding.
func (s Selection) At(i int) uint32 { return s.at(i) }
