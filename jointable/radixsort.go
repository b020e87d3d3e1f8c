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

package jointable

// hashedRow pairs a build-side row index with its masked hash. Table
// construction sorts a slice of these by hash so that equal-hash rows
// end up contiguous, ready to be chunked into map items.
type hashedRow struct {
	idx  uint32
	hash uint32
}

const (
	radixBits  = 8
	radixSize  = 1 << radixBits
	radixShift = radixSize - 1
)

// radixSortByHash stably sorts rows by hash ascending using an LSD
// radix sort over 8-bit digits. Four passes cover the full 32-bit
// hash space (the table only ever stores 30-bit masked hashes, so the
// top digit pass is a no-op in practice, but the generic 32-bit
// sweep needs no special case for that).
func radixSortByHash(rows []hashedRow) {
	if len(rows) < 2 {
		return
	}
	tmp := make([]hashedRow, len(rows))
	src, dst := rows, tmp
	for shift := uint(0); shift < 32; shift += radixBits {
		var count [radixSize + 1]int
		for _, r := range src {
			d := (r.hash >> shift) & radixShift
			count[d+1]++
		}
		for i := 0; i < radixSize; i++ {
			count[i+1] += count[i]
		}
		for _, r := range src {
			d := (r.hash >> shift) & radixShift
			dst[count[d]] = r
			count[d]++
		}
		src, dst = dst, src
	}
	// 32/radixBits passes is even, so src already aliases rows.
}
