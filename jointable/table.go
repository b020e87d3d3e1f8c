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

import (
	"bytes"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/xm0830/blaze"
	"github.com/xm0830/blaze/coreio"
	"github.com/xm0830/blaze/rowhash"
)

// maxBuildRows mirrors the original implementation's row-count
// ceiling: a build batch must have fewer than 2^30 rows.
const maxBuildRows = 1 << 30

// table is the open-addressing probe structure built once over a set
// of build-side key columns. It is immutable after buildTable
// returns: concurrent Lookup calls are always safe.
type table struct {
	numValidItems int
	mapMod        uint32
	slots         []MapValue
	mappedIndices []uint32
}

func keyRowValid(cols []arrow.Array, row int) bool {
	for _, c := range cols {
		if c.IsNull(row) {
			return false
		}
	}
	return true
}

// buildTable hashes every row of keyCols with hasher, discards rows
// with any null key column, and builds the open-addressing map
// described in mapvalue.go.
func buildTable(numRows int, keyCols []arrow.Array, hasher rowhash.Hasher, overflowSlack int) (*table, error) {
	if numRows >= maxBuildRows {
		return nil, blaze.NewInvalidArgument("jointable: build side row count exceeds 2^30", nil)
	}
	hashes := make([]uint32, numRows)
	if len(keyCols) > 0 {
		hasher.HashBatch(keyCols, rowhash.Seed, hashes)
	}

	rows := make([]hashedRow, 0, numRows)
	for i := 0; i < numRows; i++ {
		if !keyRowValid(keyCols, i) {
			continue
		}
		rows = append(rows, hashedRow{idx: uint32(i), hash: MaskHash(hashes[i])})
	}
	numValidItems := len(rows)
	radixSortByHash(rows)

	var items []MapValue
	var mappedIndices []uint32
	i := 0
	for i < len(rows) {
		hash := rows[i].hash
		j := i
		for j < len(rows) && rows[j].hash == hash {
			j++
		}
		group := rows[i:j]
		if len(group) == 1 {
			items = append(items, NewSingle(hash, group[0].idx))
		} else {
			pos := len(mappedIndices)
			mappedIndices = append(mappedIndices, 0) // placeholder length
			for _, r := range group {
				mappedIndices = append(mappedIndices, r.idx)
			}
			start := pos + 1
			length := len(mappedIndices) - start
			mappedIndices[pos] = uint32(length)
			items = append(items, NewRange(hash, uint32(start)))
		}
		i = j
	}

	mapMod := uint32(len(items))*2 + 1
	slots := make([]MapValue, mapMod, int(mapMod)+overflowSlack)
	overflowed := 0
	for _, item := range items {
		idx := int(item.Hash() % mapMod)
		for idx < len(slots) && !slots[idx].IsEmpty() {
			idx++
		}
		if idx < len(slots) {
			slots[idx] = item
		} else {
			slots = append(slots, item)
			overflowed++
		}
	}
	if overflowed > overflowSlack {
		blaze.Debugf("jointable: build overflowed reserved slack (%d slots, slack %d)", overflowed, overflowSlack)
	}
	slots = append(slots, Empty)

	return &table{
		numValidItems: numValidItems,
		mapMod:        mapMod,
		slots:         slots,
		mappedIndices: mappedIndices,
	}, nil
}

// lookup returns the MapValue matching hash, or Empty if no
// build-side row hashed to it.
func (t *table) lookup(hash uint32) MapValue {
	hash = MaskHash(hash)
	i := int(hash % t.mapMod)
	for !t.slots[i].IsEmpty() {
		if t.slots[i].Hash() == hash {
			return t.slots[i]
		}
		i++
	}
	return Empty
}

// rangeOf returns the row indices a IsRange MapValue names.
func (t *table) rangeOf(v MapValue) []uint32 {
	start := int(v.RangeStart())
	length := int(t.mappedIndices[start-1])
	return t.mappedIndices[start : start+length]
}

// serialize writes the table to dst as: varint(numValidItems)
// varint(mapMod) varint(len(slots)) raw-little-endian-slots
// varint(len(mappedIndices)) varint(mappedIndices[i])...
func (t *table) serialize(dst io.Writer) error {
	bw := coreio.ByteWriter(dst)
	if err := coreio.WriteLen(bw, uint64(t.numValidItems)); err != nil {
		return err
	}
	if err := coreio.WriteLen(bw, uint64(t.mapMod)); err != nil {
		return err
	}
	if err := coreio.WriteLen(bw, uint64(len(t.slots))); err != nil {
		return err
	}
	if f, ok := bw.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return blaze.NewIoError("jointable: flush table header", err)
		}
	}
	if err := coreio.WriteUint32s(dst, flattenSlots(t.slots)); err != nil {
		return err
	}
	bw = coreio.ByteWriter(dst)
	if err := coreio.WriteLen(bw, uint64(len(t.mappedIndices))); err != nil {
		return err
	}
	for _, v := range t.mappedIndices {
		if err := coreio.WriteLen(bw, uint64(v)); err != nil {
			return err
		}
	}
	if f, ok := bw.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return blaze.NewIoError("jointable: flush mapped indices", err)
		}
	}
	return nil
}

// deserialize reverses serialize.
func deserializeTable(src []byte) (*table, error) {
	r := bytes.NewReader(src)
	br := coreio.ByteReader(r)

	numValidItems, err := coreio.ReadLen(br)
	if err != nil {
		return nil, err
	}
	mapMod, err := coreio.ReadLen(br)
	if err != nil {
		return nil, err
	}
	slotCount, err := coreio.ReadLen(br)
	if err != nil {
		return nil, err
	}
	flat, err := coreio.ReadUint32s(r, int(slotCount)*2)
	if err != nil {
		return nil, err
	}
	slots := unflattenSlots(flat)

	br = coreio.ByteReader(r)
	mappedLen, err := coreio.ReadLen(br)
	if err != nil {
		return nil, err
	}
	mappedIndices := make([]uint32, mappedLen)
	for i := range mappedIndices {
		v, err := coreio.ReadLen(br)
		if err != nil {
			return nil, err
		}
		mappedIndices[i] = uint32(v)
	}

	return &table{
		numValidItems: int(numValidItems),
		mapMod:        uint32(mapMod),
		slots:         slots,
		mappedIndices: mappedIndices,
	}, nil
}

func flattenSlots(slots []MapValue) []uint32 {
	out := make([]uint32, 0, len(slots)*2)
	for _, s := range slots {
		out = append(out, s.word0, s.word1)
	}
	return out
}

func unflattenSlots(flat []uint32) []MapValue {
	out := make([]MapValue, len(flat)/2)
	for i := range out {
		out[i] = MapValue{word0: flat[2*i], word1: flat[2*i+1]}
	}
	return out
}
