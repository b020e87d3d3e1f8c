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

// Package rowhash provides the row-level hashing collaborator the
// join hash index depends on but does not itself implement: the
// index only fixes a seed and a bit mask, not a hash algorithm.
package rowhash

import (
	"encoding/binary"
	"math"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/dchest/siphash"
)

// Seed is the fixed seed the join hash index hashes build- and
// probe-side key rows with.
const Seed uint32 = 0x1E39FA04

// Mask restricts a hash to the low 30 bits, which is all the bits a
// MapValue word has room to store after its 2-bit tag.
const Mask uint32 = (1 << 30) - 1

// Hasher computes one hash per row over a set of key columns. Rows
// that compare equal under the join's key comparison must hash
// equal; rows that hash equal need not compare equal (a MapValue
// lookup matches on the masked hash only, so the join's caller
// re-verifies key equality against the build-side batch).
type Hasher interface {
	// HashBatch writes len(out) hashes, one per row 0..len(out), each
	// combining every column in cols, seeded with seed.
	HashBatch(cols []arrow.Array, seed uint32, out []uint32)
}

// Siphash is a reference Hasher built on a 128-bit SipHash-2-4 key
// derived from seed. It is deterministic and adequate for tests and
// for any caller with no hash algorithm requirement of its own, but
// it is not the only valid Hasher: production callers are free to
// substitute a faster or SIMD-vectorized implementation as long as it
// satisfies the equal-rows-hash-equal contract above.
type Siphash struct{}

func (Siphash) HashBatch(cols []arrow.Array, seed uint32, out []uint32) {
	k0 := uint64(seed) | uint64(seed)<<32
	k1 := ^k0
	var buf []byte
	for row := range out {
		buf = buf[:0]
		for _, col := range cols {
			buf = appendColumnValue(buf, col, row)
		}
		out[row] = uint32(siphash.Hash(k0, k1, buf))
	}
}

// appendColumnValue appends the row'th value of col (or a fixed
// sentinel byte for null) to buf. NULL must encode consistently
// regardless of the column's declared type so that two all-null key
// tuples are hash-equal candidates.
func appendColumnValue(buf []byte, col arrow.Array, row int) []byte {
	if col.IsNull(row) {
		return append(buf, 0xff)
	}
	var scratch [8]byte
	switch c := col.(type) {
	case *array.Int8:
		return append(buf, byte(c.Value(row)))
	case *array.Int16:
		binary.LittleEndian.PutUint16(scratch[:2], uint16(c.Value(row)))
		return append(buf, scratch[:2]...)
	case *array.Int32:
		binary.LittleEndian.PutUint32(scratch[:4], uint32(c.Value(row)))
		return append(buf, scratch[:4]...)
	case *array.Int64:
		binary.LittleEndian.PutUint64(scratch[:8], uint64(c.Value(row)))
		return append(buf, scratch[:8]...)
	case *array.Uint32:
		binary.LittleEndian.PutUint32(scratch[:4], c.Value(row))
		return append(buf, scratch[:4]...)
	case *array.Uint64:
		binary.LittleEndian.PutUint64(scratch[:8], c.Value(row))
		return append(buf, scratch[:8]...)
	case *array.Float32:
		binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(c.Value(row)))
		return append(buf, scratch[:4]...)
	case *array.Float64:
		binary.LittleEndian.PutUint64(scratch[:8], math.Float64bits(c.Value(row)))
		return append(buf, scratch[:8]...)
	case *array.Boolean:
		if c.Value(row) {
			return append(buf, 1)
		}
		return append(buf, 0)
	case *array.String:
		return append(buf, c.Value(row)...)
	case *array.Binary:
		return append(buf, c.Value(row)...)
	default:
		// Unknown column type: hash its string representation so the
		// result is still deterministic rather than panicking on an
		// exotic Arrow type the key evaluator happens to produce.
		return append(buf, col.ValueStr(row)...)
	}
}
