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
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/xm0830/blaze/coreio"
	"github.com/xm0830/blaze/idxsel"
)

// Count is the COUNT(*) / COUNT(expr) aggregate: with no argument
// columns it counts every selected row, with one or more argument
// columns it counts rows where every argument is non-null.
type Count struct {
	// Args are the argument expressions whose columns must be
	// non-null; PartialUpdate evaluates each of them against its args
	// batch. A zero-length Args means COUNT(*) semantics.
	Args []func(Batch) (arrow.Array, error)
	pool memory.Allocator
}

// NewCount builds a Count aggregate. pool may be nil, in which case
// FinalMerge allocates with memory.NewGoAllocator().
func NewCount(pool memory.Allocator, args ...func(Batch) (arrow.Array, error)) *Count {
	return &Count{Args: args, pool: pool}
}

func (c *Count) DataType() arrow.DataType { return arrow.PrimitiveTypes.Int64 }
func (c *Count) Nullable() bool           { return false }

func (c *Count) CreateAccColumn() AccColumn { return &CountAccColumn{} }

// Exprs returns the argument expressions this Count was built with. An
// empty result means COUNT(*) semantics.
func (c *Count) Exprs() []Expr { return c.Args }

// WithNewExprs returns a Count identical to c except for its argument
// expressions.
func (c *Count) WithNewExprs(exprs []Expr) Agg {
	return &Count{Args: exprs, pool: c.pool}
}

func (c *Count) PartialUpdate(acc AccColumn, accSel idxsel.Selection, args Batch, argSel idxsel.Selection) error {
	col := As[*CountAccColumn](acc)
	if len(c.Args) == 0 {
		idxsel.Zip(accSel, argSel, func(accIdx, _ uint32) {
			col.values[accIdx]++
		})
		return nil
	}
	cols := make([]arrow.Array, len(c.Args))
	for i, fn := range c.Args {
		a, err := fn(args)
		if err != nil {
			return err
		}
		cols[i] = a
	}
	idxsel.Zip(accSel, argSel, func(accIdx, argIdx uint32) {
		allValid := true
		for _, a := range cols {
			if a.IsNull(int(argIdx)) {
				allValid = false
				break
			}
		}
		if allValid {
			col.values[accIdx]++
		}
	})
	return nil
}

func (c *Count) PartialMerge(acc AccColumn, accSel idxsel.Selection, other AccColumn, otherSel idxsel.Selection) error {
	dst := As[*CountAccColumn](acc)
	src := As[*CountAccColumn](other)
	idxsel.Zip(accSel, otherSel, func(accIdx, otherIdx uint32) {
		dst.values[accIdx] += src.values[otherIdx]
	})
	return nil
}

func (c *Count) FinalMerge(acc AccColumn, sel idxsel.Selection) (arrow.Array, error) {
	col := As[*CountAccColumn](acc)
	pool := c.pool
	if pool == nil {
		pool = memory.NewGoAllocator()
	}
	b := array.NewInt64Builder(pool)
	defer b.Release()
	b.Reserve(sel.Len())
	sel.ForEach(func(row uint32) { b.UnsafeAppend(col.values[row]) })
	return b.NewArray(), nil
}

// CountAccColumn is the concrete AccColumn kind Count drives: one i64
// counter per group.
type CountAccColumn struct {
	values []int64
}

func (c *CountAccColumn) NumRecords() int { return len(c.values) }

func (c *CountAccColumn) Resize(n int) error {
	if n <= len(c.values) {
		c.values = c.values[:n]
		return nil
	}
	grown := make([]int64, n)
	copy(grown, c.values)
	c.values = grown
	return nil
}

func (c *CountAccColumn) ShrinkToFit() {
	if cap(c.values) == len(c.values) {
		return
	}
	shrunk := make([]int64, len(c.values))
	copy(shrunk, c.values)
	c.values = shrunk
}

// MemUsed mirrors the original's capacity-based accounting (values.capacity() * size_of::<i64>())
// rather than len-based, since the backing array is not shrunk on every Resize.
func (c *CountAccColumn) MemUsed() int64 { return int64(cap(c.values)) * 8 }

func (c *CountAccColumn) FreezeToRows(sel idxsel.Selection, dst [][]byte) error {
	if sel.Len() != len(dst) {
		return invalidLen("FreezeToRows", sel.Len(), len(dst))
	}
	i := 0
	sel.ForEach(func(row uint32) {
		var buf bytes.Buffer
		coreio.WriteLen(&buf, uint64(c.values[row]))
		dst[i] = append(dst[i], buf.Bytes()...)
		i++
	})
	return nil
}

func (c *CountAccColumn) UnfreezeFromRows(src [][]byte, offsets []int) error {
	if len(src) != len(offsets) {
		return invalidLen("UnfreezeFromRows", len(src), len(offsets))
	}
	base := len(c.values)
	c.values = append(c.values, make([]int64, len(src))...)
	for i, raw := range src {
		r := bytes.NewReader(raw[offsets[i]:])
		v, err := coreio.ReadLen(r)
		if err != nil {
			return err
		}
		c.values[base+i] = int64(v)
		offsets[i] += len(raw[offsets[i]:]) - r.Len()
	}
	return nil
}

func (c *CountAccColumn) Spill(sel idxsel.Selection, w io.Writer) error {
	bw := coreio.ByteWriter(w)
	var werr error
	sel.ForEach(func(row uint32) {
		if werr != nil {
			return
		}
		werr = coreio.WriteLen(bw, uint64(c.values[row]))
	})
	if werr != nil {
		return werr
	}
	if f, ok := bw.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (c *CountAccColumn) Unspill(numRows int, r io.Reader) error {
	br := coreio.ByteReader(r)
	base := len(c.values)
	c.values = append(c.values, make([]int64, numRows)...)
	for i := 0; i < numRows; i++ {
		v, err := coreio.ReadLen(br)
		if err != nil {
			return err
		}
		c.values[base+i] = int64(v)
	}
	return nil
}
