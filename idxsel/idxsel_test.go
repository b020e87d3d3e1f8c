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

package idxsel

import (
	"reflect"
	"testing"
)

func TestSingleLenAndForEach(t *testing.T) {
	s := Single(7)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	var got []uint32
	s.ForEach(func(row uint32) { got = append(got, row) })
	if !reflect.DeepEqual(got, []uint32{7}) {
		t.Fatalf("got %v", got)
	}
}

func TestRangeDense(t *testing.T) {
	s := Range(3, 8)
	if s.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", s.Len())
	}
	want := []uint32{3, 4, 5, 6, 7}
	if got := s.Dense(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Dense() = %v, want %v", got, want)
	}
}

func TestRangeEmpty(t *testing.T) {
	s := Range(5, 5)
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
	if got := s.Dense(); len(got) != 0 {
		t.Fatalf("Dense() = %v, want empty", got)
	}
}

func TestIndices(t *testing.T) {
	idx := []uint32{9, 2, 2, 5}
	s := Indices(idx)
	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}
	if got := s.Dense(); !reflect.DeepEqual(got, idx) {
		t.Fatalf("Dense() = %v, want %v", got, idx)
	}
}

func TestZipEqualLength(t *testing.T) {
	a := Range(0, 3)
	b := Indices([]uint32{10, 11, 12})
	var pairs [][2]uint32
	Zip(a, b, func(ra, rb uint32) { pairs = append(pairs, [2]uint32{ra, rb}) })
	want := [][2]uint32{{0, 10}, {1, 11}, {2, 12}}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pairs = %v, want %v", pairs, want)
	}
}

func TestZipBroadcastSingle(t *testing.T) {
	a := Single(42)
	b := Range(0, 4)
	var pairs [][2]uint32
	Zip(a, b, func(ra, rb uint32) { pairs = append(pairs, [2]uint32{ra, rb}) })
	want := [][2]uint32{{42, 0}, {42, 1}, {42, 2}, {42, 3}}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pairs = %v, want %v", pairs, want)
	}
}

func TestZipBroadcastSingleOtherSide(t *testing.T) {
	a := Range(0, 2)
	b := Single(9)
	var pairs [][2]uint32
	Zip(a, b, func(ra, rb uint32) { pairs = append(pairs, [2]uint32{ra, rb}) })
	want := [][2]uint32{{0, 9}, {1, 9}}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pairs = %v, want %v", pairs, want)
	}
}

func TestZipMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on length mismatch")
		}
	}()
	Zip(Range(0, 2), Range(0, 3), func(uint32, uint32) {})
}

func TestSingleIndexPanicsOnWrongKind(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Range(0, 1).SingleIndex()
}
