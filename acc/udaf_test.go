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

package acc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/xm0830/blaze/idxsel"
)

// fakeSumRuntime is an in-process HostRuntime standing in for the
// out-of-process host a real deployment would bridge to: each group
// slot is a running int64 sum, serialized as an 8-byte big-endian
// value per the big-endian row framing convention.
type fakeSumRuntime struct {
	rows [][]int64 // one handle slice per live handle; handle == index into rows
}

type fakeHandle int

func (f *fakeSumRuntime) Initialize(n int) (RowsHandle, error) {
	f.rows = append(f.rows, make([]int64, n))
	return fakeHandle(len(f.rows) - 1), nil
}

func (f *fakeSumRuntime) Resize(h RowsHandle, n int) error {
	i := h.(fakeHandle)
	cur := f.rows[i]
	if n <= len(cur) {
		f.rows[i] = cur[:n]
		return nil
	}
	grown := make([]int64, n)
	copy(grown, cur)
	f.rows[i] = grown
	return nil
}

func (f *fakeSumRuntime) MemUsed(h RowsHandle) (int64, error) {
	return int64(len(f.rows[h.(fakeHandle)])) * 8, nil
}

func (f *fakeSumRuntime) Update(h RowsHandle, accIdx, argIdx []int32, args Batch) error {
	col := args.Column(0).(*array.Int64)
	rows := f.rows[h.(fakeHandle)]
	for i := range accIdx {
		rows[accIdx[i]] += col.Value(int(argIdx[i]))
	}
	return nil
}

func (f *fakeSumRuntime) Merge(dst, src RowsHandle, dstIdx, srcIdx []int32) error {
	d := f.rows[dst.(fakeHandle)]
	s := f.rows[src.(fakeHandle)]
	for i := range dstIdx {
		d[dstIdx[i]] += s[srcIdx[i]]
	}
	return nil
}

func (f *fakeSumRuntime) Eval(h RowsHandle, accIdx []int32) (arrow.Array, error) {
	rows := f.rows[h.(fakeHandle)]
	b := array.NewInt64Builder(memory.NewGoAllocator())
	defer b.Release()
	for _, idx := range accIdx {
		b.Append(rows[idx])
	}
	return b.NewArray(), nil
}

func (f *fakeSumRuntime) SerializeRows(h RowsHandle, idx []int32) ([]byte, error) {
	rows := f.rows[h.(fakeHandle)]
	var out []byte
	for _, i := range idx {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], 8)
		out = append(out, lenBuf[:]...)
		var vbuf [8]byte
		binary.BigEndian.PutUint64(vbuf[:], uint64(rows[i]))
		out = append(out, vbuf[:]...)
	}
	return out, nil
}

func (f *fakeSumRuntime) DeserializeRows(data []byte) (RowsHandle, error) {
	var rows []int64
	cur := 0
	for cur < len(data) {
		n := binary.BigEndian.Uint32(data[cur:])
		cur += 4
		v := binary.BigEndian.Uint64(data[cur:])
		cur += int(n)
		rows = append(rows, int64(v))
	}
	f.rows = append(f.rows, rows)
	return fakeHandle(len(f.rows) - 1), nil
}

func TestUDAFUpdateAndEval(t *testing.T) {
	rt := &fakeSumRuntime{}
	u := &UDAF{ReturnType: arrow.PrimitiveTypes.Int64, Runtime: rt}
	col := u.CreateAccColumn()
	if err := col.Resize(2); err != nil {
		t.Fatal(err)
	}

	pool := memory.NewGoAllocator()
	b := array.NewInt64Builder(pool)
	b.AppendValues([]int64{10, 20, 30}, nil)
	argCol := b.NewArray()
	b.Release()
	schema := arrow.NewSchema([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int64}}, nil)
	rec := array.NewRecord(schema, []arrow.Array{argCol}, int64(3))

	// rows 0,1,2 all feed group 0; nothing feeds group 1.
	if err := u.PartialUpdate(col, idxsel.Single(0), rec, idxsel.Range(0, 3)); err != nil {
		t.Fatal(err)
	}

	out, err := u.FinalMerge(col, idxsel.Range(0, 2))
	if err != nil {
		t.Fatal(err)
	}
	ints := out.(*array.Int64)
	if ints.Value(0) != 60 {
		t.Fatalf("group 0 = %d, want 60", ints.Value(0))
	}
	if ints.Value(1) != 0 {
		t.Fatalf("group 1 = %d, want 0", ints.Value(1))
	}
}

func TestUDAFWithNewExprsReplacesArgsAndContextID(t *testing.T) {
	rt := &fakeSumRuntime{}
	orig := &UDAF{ReturnType: arrow.PrimitiveTypes.Int64, Runtime: rt}
	origID := orig.ContextID()

	arg := func(b Batch) (arrow.Array, error) { return nil, nil }
	replaced := orig.WithNewExprs([]Expr{arg})

	rc, ok := replaced.(*UDAF)
	if !ok {
		t.Fatalf("WithNewExprs returned %T, want *UDAF", replaced)
	}
	if len(rc.Exprs()) != 1 {
		t.Fatalf("replaced.Exprs() has %d entries, want 1", len(rc.Exprs()))
	}
	if len(orig.Exprs()) != 0 {
		t.Fatalf("WithNewExprs mutated the receiver: Exprs() = %v", orig.Exprs())
	}
	if rc.ReturnType != orig.ReturnType || rc.Runtime != orig.Runtime {
		t.Fatalf("WithNewExprs changed ReturnType/Runtime, want them carried over unchanged")
	}
	if rc.ContextID() == origID {
		t.Fatalf("replaced.ContextID() reused the original definition's id, want a fresh one")
	}
}

func TestUDAFSpillUnspillFixedLengthPrologue(t *testing.T) {
	rt := &fakeSumRuntime{}
	u := &UDAF{ReturnType: arrow.PrimitiveTypes.Int64, Runtime: rt}
	col := As[*UDAFAccColumn](u.CreateAccColumn())
	if err := col.Resize(2); err != nil {
		t.Fatal(err)
	}
	rt.rows[col.handle.(fakeHandle)][0] = 5
	rt.rows[col.handle.(fakeHandle)][1] = 9

	var buf bytes.Buffer
	if err := col.Spill(idxsel.Range(0, 2), &buf); err != nil {
		t.Fatal(err)
	}

	col2 := As[*UDAFAccColumn](u.CreateAccColumn())
	if err := col2.Unspill(2, &buf); err != nil {
		t.Fatal(err)
	}
	if col2.NumRecords() != 2 {
		t.Fatalf("NumRecords() = %d, want 2", col2.NumRecords())
	}
	out, err := u.FinalMerge(col2, idxsel.Range(0, 2))
	if err != nil {
		t.Fatal(err)
	}
	ints := out.(*array.Int64)
	if ints.Value(0) != 5 || ints.Value(1) != 9 {
		t.Fatalf("got [%d %d], want [5 9]", ints.Value(0), ints.Value(1))
	}
}

func TestUDAFFreezeUnfreezeRoundTrip(t *testing.T) {
	rt := &fakeSumRuntime{}
	u := &UDAF{ReturnType: arrow.PrimitiveTypes.Int64, Runtime: rt}
	col := As[*UDAFAccColumn](u.CreateAccColumn())
	col.Resize(2)
	rt.rows[col.handle.(fakeHandle)][0] = 42
	rt.rows[col.handle.(fakeHandle)][1] = 7

	dst := make([][]byte, 2)
	if err := col.FreezeToRows(idxsel.Range(0, 2), dst); err != nil {
		t.Fatal(err)
	}

	col2 := As[*UDAFAccColumn](u.CreateAccColumn())
	offsets := make([]int, 2)
	if err := col2.UnfreezeFromRows(dst, offsets); err != nil {
		t.Fatal(err)
	}
	out, err := u.FinalMerge(col2, idxsel.Range(0, 2))
	if err != nil {
		t.Fatal(err)
	}
	ints := out.(*array.Int64)
	if ints.Value(0) != 42 || ints.Value(1) != 7 {
		t.Fatalf("got [%d %d], want [42 7]", ints.Value(0), ints.Value(1))
	}
}

func TestUDAFContextIDStable(t *testing.T) {
	u := &UDAF{}
	id1 := u.ContextID()
	id2 := u.ContextID()
	if id1 != id2 {
		t.Fatalf("ContextID() not stable across calls: %v vs %v", id1, id2)
	}
}
