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
	"encoding/binary"
	"io"
	"sync"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/google/uuid"
	"github.com/xm0830/blaze"
	"github.com/xm0830/blaze/coreio"
	"github.com/xm0830/blaze/idxsel"
)

// RowsHandle is an opaque reference to a batch of per-group
// accumulator state owned by a HostRuntime. Neither its type nor its
// contents are interpreted by this package; a HostRuntime
// implementation is free to make it a pointer, an integer id, or
// anything else that round-trips through its own methods.
type RowsHandle any

// HostRuntime is the out-of-process (or out-of-core) collaborator an
// external UDAF delegates all per-group state to. This module never
// implements one: it is the boundary spec.md's scope explicitly
// stops at, analogous to the JVM bridge the original engine crosses
// via JNI and the Arrow C Data Interface. A HostRuntime implementation
// over an in-process Go callback, a gRPC service, or a cgo bridge to
// another runtime can all satisfy this interface unchanged.
type HostRuntime interface {
	// Initialize allocates a fresh rows object with n group slots.
	Initialize(n int) (RowsHandle, error)
	// Resize grows or shrinks h to exactly n group slots.
	Resize(h RowsHandle, n int) error
	// MemUsed reports h's approximate backing byte count.
	MemUsed(h RowsHandle) (int64, error)
	// Update feeds args[argIdx[i]] into h[accIdx[i]] for every i.
	Update(h RowsHandle, accIdx, argIdx []int32, args Batch) error
	// Merge combines src[srcIdx[i]] into dst[dstIdx[i]] for every i.
	Merge(dst, src RowsHandle, dstIdx, srcIdx []int32) error
	// Eval evaluates h[accIdx[i]] for every i into one result array.
	Eval(h RowsHandle, accIdx []int32) (arrow.Array, error)
	// SerializeRows serializes h[idx[i]] for every i into one blob:
	// each row is a big-endian uint32 length prefix followed by that
	// many bytes of opaque row data, back to back in idx order.
	SerializeRows(h RowsHandle, idx []int32) ([]byte, error)
	// DeserializeRows reverses SerializeRows, returning a handle whose
	// group count equals the number of rows packed into data.
	DeserializeRows(data []byte) (RowsHandle, error)
}

// UDAF is an Agg definition that delegates all accumulator state to a
// HostRuntime, the way Spark UDAFs are driven from the native engine
// across the JNI boundary in the original implementation. ContextID
// identifies this definition to the runtime; it is minted once, on
// first use, rather than at construction, so a UDAF value can be
// built before a runtime connection exists.
type UDAF struct {
	Serialized []byte
	ReturnType arrow.DataType
	Runtime    HostRuntime
	Args       []func(Batch) (arrow.Array, error)

	once      sync.Once
	contextID uuid.UUID
}

// ContextID returns the UUID this UDAF definition presents to its
// HostRuntime, minting it on first call.
func (u *UDAF) ContextID() uuid.UUID {
	u.once.Do(func() { u.contextID = uuid.New() })
	return u.contextID
}

func (u *UDAF) DataType() arrow.DataType { return u.ReturnType }
func (u *UDAF) Nullable() bool           { return true }

// Exprs returns the argument expressions this UDAF was built with.
func (u *UDAF) Exprs() []Expr { return u.Args }

// WithNewExprs returns a UDAF identical to u except for its argument
// expressions. The returned value mints its own ContextID on first
// use rather than reusing u's, since it is a distinct definition as
// far as the host runtime is concerned.
func (u *UDAF) WithNewExprs(exprs []Expr) Agg {
	return &UDAF{
		Serialized: u.Serialized,
		ReturnType: u.ReturnType,
		Runtime:    u.Runtime,
		Args:       exprs,
	}
}

func (u *UDAF) CreateAccColumn() AccColumn {
	h, err := u.Runtime.Initialize(0)
	if err != nil {
		// CreateAccColumn has no error return (it mirrors
		// create_acc_column in the original, which is infallible by
		// contract); a runtime that cannot even allocate zero rows is
		// broken beyond recovery within this call.
		panic(blaze.NewExternalError("acc: UDAF runtime initialize failed", err))
	}
	return &UDAFAccColumn{runtime: u.Runtime, handle: h}
}

func (u *UDAF) PartialUpdate(acc AccColumn, accSel idxsel.Selection, args Batch, argSel idxsel.Selection) error {
	col := As[*UDAFAccColumn](acc)
	n := max(accSel.Len(), argSel.Len())
	accIdx := make([]int32, 0, n)
	argIdx := make([]int32, 0, n)
	idxsel.Zip(accSel, argSel, func(a, b uint32) {
		accIdx = append(accIdx, int32(a))
		argIdx = append(argIdx, int32(b))
	})
	blaze.Debugf("acc: UDAF update ctx=%s rows=%d", u.ContextID(), len(accIdx))
	if err := u.Runtime.Update(col.handle, accIdx, argIdx, args); err != nil {
		return blaze.NewExternalError("acc: UDAF update", err)
	}
	return nil
}

func (u *UDAF) PartialMerge(acc AccColumn, accSel idxsel.Selection, other AccColumn, otherSel idxsel.Selection) error {
	dst := As[*UDAFAccColumn](acc)
	src := As[*UDAFAccColumn](other)
	n := max(accSel.Len(), otherSel.Len())
	dstIdx := make([]int32, 0, n)
	srcIdx := make([]int32, 0, n)
	idxsel.Zip(accSel, otherSel, func(a, b uint32) {
		dstIdx = append(dstIdx, int32(a))
		srcIdx = append(srcIdx, int32(b))
	})
	if err := u.Runtime.Merge(dst.handle, src.handle, dstIdx, srcIdx); err != nil {
		return blaze.NewExternalError("acc: UDAF merge", err)
	}
	return nil
}

func (u *UDAF) FinalMerge(acc AccColumn, sel idxsel.Selection) (arrow.Array, error) {
	col := As[*UDAFAccColumn](acc)
	idx := denseInt32(sel)
	out, err := u.Runtime.Eval(col.handle, idx)
	if err != nil {
		return nil, blaze.NewExternalError("acc: UDAF eval", err)
	}
	return out, nil
}

func denseInt32(sel idxsel.Selection) []int32 {
	out := make([]int32, 0, sel.Len())
	sel.ForEach(func(row uint32) { out = append(out, int32(row)) })
	return out
}

// UDAFAccColumn is the concrete AccColumn kind UDAF drives: a
// RowsHandle owned entirely by the bridged HostRuntime. Unlike
// CountAccColumn, unfreezing or unspilling this column replaces its
// handle outright rather than appending into existing state, because
// the runtime's deserializeRows call always returns a brand new rows
// object sized to exactly the rows just decoded -- the same
// whole-column replacement the original implementation performs by
// reassigning self.obj.
type UDAFAccColumn struct {
	runtime HostRuntime
	handle  RowsHandle
	numRows int
}

func (c *UDAFAccColumn) NumRecords() int { return c.numRows }

func (c *UDAFAccColumn) Resize(n int) error {
	if err := c.runtime.Resize(c.handle, n); err != nil {
		return blaze.NewExternalError("acc: UDAF resize", err)
	}
	c.numRows = n
	return nil
}

func (c *UDAFAccColumn) ShrinkToFit() {}

func (c *UDAFAccColumn) MemUsed() int64 {
	n, err := c.runtime.MemUsed(c.handle)
	if err != nil {
		return 0
	}
	return n
}

func (c *UDAFAccColumn) FreezeToRows(sel idxsel.Selection, dst [][]byte) error {
	if sel.Len() != len(dst) {
		return invalidLen("FreezeToRows", sel.Len(), len(dst))
	}
	idx := denseInt32(sel)
	data, err := c.runtime.SerializeRows(c.handle, idx)
	if err != nil {
		return blaze.NewExternalError("acc: UDAF serializeRows", err)
	}
	cur := 0
	for i := range dst {
		if cur+4 > len(data) {
			return blaze.NewCodecError("acc: UDAF serialized row stream truncated", nil)
		}
		rowLen := int(binary.BigEndian.Uint32(data[cur:]))
		cur += 4
		if cur+rowLen > len(data) {
			return blaze.NewCodecError("acc: UDAF serialized row stream truncated", nil)
		}
		if err := coreio.WriteLen(sliceByteWriter{&dst[i]}, uint64(rowLen)); err != nil {
			return err
		}
		dst[i] = append(dst[i], data[cur:cur+rowLen]...)
		cur += rowLen
	}
	return nil
}

func (c *UDAFAccColumn) UnfreezeFromRows(src [][]byte, offsets []int) error {
	if len(src) != len(offsets) {
		return invalidLen("UnfreezeFromRows", len(src), len(offsets))
	}
	var data []byte
	for i, raw := range src {
		r := sliceByteReader{raw, offsets[i]}
		rowLen, err := coreio.ReadLen(&r)
		if err != nil {
			return err
		}
		offsets[i] = r.pos
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(rowLen))
		data = append(data, lenBuf[:]...)
		data = append(data, raw[offsets[i]:offsets[i]+int(rowLen)]...)
		offsets[i] += int(rowLen)
	}
	h, err := c.runtime.DeserializeRows(data)
	if err != nil {
		return blaze.NewExternalError("acc: UDAF deserializeRows", err)
	}
	c.handle = h
	c.numRows = len(src)
	return nil
}

// Spill writes the rows named by sel as a varint total-length
// prologue followed by the raw big-endian-length-prefixed row blob
// SerializeRows returns, unmodified. The prologue is the fix for a
// bug in the implementation this module is grounded on: its unspill
// tried to recover the blob's total length by reading length prefixes
// out of the destination buffer before any bytes had been read into
// it. Recording the total length up front at spill time instead of
// recomputing it at unspill time removes the need to read from an
// empty buffer at all.
func (c *UDAFAccColumn) Spill(sel idxsel.Selection, w io.Writer) error {
	idx := denseInt32(sel)
	data, err := c.runtime.SerializeRows(c.handle, idx)
	if err != nil {
		return blaze.NewExternalError("acc: UDAF serializeRows", err)
	}
	bw := coreio.ByteWriter(w)
	if err := coreio.WriteLen(bw, uint64(len(data))); err != nil {
		return err
	}
	if f, ok := bw.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return blaze.NewIoError("acc: flush UDAF spill prologue", err)
		}
	}
	if _, err := w.Write(data); err != nil {
		return blaze.NewIoError("acc: write UDAF spill body", err)
	}
	return nil
}

func (c *UDAFAccColumn) Unspill(numRows int, r io.Reader) error {
	br := coreio.ByteReader(r)
	bodyReader, ok := br.(io.Reader)
	if !ok {
		bodyReader = r
	}
	totalLen, err := coreio.ReadLen(br)
	if err != nil {
		return err
	}
	data := make([]byte, totalLen)
	if _, err := io.ReadFull(bodyReader, data); err != nil {
		return blaze.NewIoError("acc: read UDAF spill body", err)
	}
	h, err := c.runtime.DeserializeRows(data)
	if err != nil {
		return blaze.NewExternalError("acc: UDAF deserializeRows", err)
	}
	c.handle = h
	c.numRows = numRows
	return nil
}

// sliceByteWriter adapts a *[]byte to io.ByteWriter so coreio.WriteLen
// can append a varint directly onto a growing row buffer.
type sliceByteWriter struct{ buf *[]byte }

func (w sliceByteWriter) WriteByte(b byte) error {
	*w.buf = append(*w.buf, b)
	return nil
}

// sliceByteReader adapts a []byte plus a starting offset to
// io.ByteReader so coreio.ReadLen can decode a varint in place without
// a copy.
type sliceByteReader struct {
	buf []byte
	pos int
}

func (r *sliceByteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}
