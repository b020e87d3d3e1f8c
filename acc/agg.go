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

// Package acc is the per-group accumulator state framework: a
// resizable AccColumn holding one accumulator slot per group, and the
// Agg definitions (Count, external UDAF) that know how to drive one.
package acc

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/xm0830/blaze/idxsel"
)

// Batch is an input record batch: the argument columns an Agg reads
// from, or the other accumulator's frozen-to-rows form being merged
// in. It is a thin alias kept separate from arrow.Record so call
// sites stay legible about which role a batch is playing.
type Batch = arrow.Record

// Expr is a physical expression that evaluates one column out of a
// Batch. This module never evaluates expressions itself (§1's
// deliberately-out-of-scope physical expression evaluation); an Agg
// only ever calls the Exprs it was built with against the batch it is
// handed.
type Expr = func(Batch) (arrow.Array, error)

// AccColumn is one resizable column of per-group accumulator state.
// Implementations are single-writer: nothing in this module
// synchronizes access to an AccColumn across goroutines, mirroring
// the per-partition ownership the surrounding hash-aggregate operator
// already provides.
type AccColumn interface {
	// NumRecords reports how many group slots this column currently
	// holds.
	NumRecords() int

	// Resize grows (or shrinks) the column to exactly n group slots.
	// New slots are the type's identity value (e.g. a count of 0).
	Resize(n int) error

	// ShrinkToFit releases any backing capacity beyond NumRecords.
	ShrinkToFit()

	// MemUsed reports an approximate byte count of live backing
	// storage, used by the host operator's spill heuristics.
	MemUsed() int64

	// FreezeToRows serializes the group slots named by sel, one group
	// per element of dst, by appending each group's encoded bytes to
	// the (possibly non-empty) byte slice already at that index. This
	// lets several AccColumns of the same group aggregate share one
	// row-wise buffer per group, each appending its own encoding in
	// turn. len(dst) must equal sel.Len().
	FreezeToRows(sel idxsel.Selection, dst [][]byte) error

	// UnfreezeFromRows is the inverse of FreezeToRows: for each row i
	// it decodes one group's state starting at offsets[i] within
	// src[i], appends that group to the column, and advances
	// offsets[i] past the bytes it consumed. len(src) == len(offsets)
	// is the number of groups being restored.
	UnfreezeFromRows(src [][]byte, offsets []int) error

	// Spill writes the group slots named by sel to w.
	Spill(sel idxsel.Selection, w io.Writer) error

	// Unspill appends numRows freshly read group slots to this column
	// by reading back a stream written by Spill.
	Unspill(numRows int, r io.Reader) error
}

// Agg is a group-aggregate definition: it knows how to create an
// AccColumn of its own concrete kind and how to drive partial
// update/merge and final evaluation over one.
type Agg interface {
	// DataType is the Arrow type Final produces.
	DataType() arrow.DataType

	// Nullable reports whether Final may produce a null result (true
	// for e.g. MIN/MAX/external UDAFs over an empty group; Count never
	// does).
	Nullable() bool

	// CreateAccColumn allocates a fresh, zero-length AccColumn of this
	// Agg's concrete kind.
	CreateAccColumn() AccColumn

	// PartialUpdate feeds the input batch's rows named by argSel into
	// the group slots of acc named by accSel (broadcast-of-length-1
	// applies to either selection per idxsel.Zip).
	PartialUpdate(acc AccColumn, accSel idxsel.Selection, args Batch, argSel idxsel.Selection) error

	// PartialMerge combines another AccColumn's group slots (named by
	// otherSel) into acc's group slots (named by accSel). other must
	// be the same concrete kind as acc.CreateAccColumn() produces.
	PartialMerge(acc AccColumn, accSel idxsel.Selection, other AccColumn, otherSel idxsel.Selection) error

	// FinalMerge evaluates every group slot named by sel into a single
	// Arrow array matching DataType/Nullable.
	FinalMerge(acc AccColumn, sel idxsel.Selection) (arrow.Array, error)

	// Exprs returns the argument (or, for a join key Agg stand-in, key)
	// expressions this Agg was built with, in evaluation order. The
	// core never inspects these beyond calling them against a Batch; it
	// holds them opaquely on the planner's behalf.
	Exprs() []Expr

	// WithNewExprs returns a copy of this Agg with its expressions
	// replaced by exprs, leaving every other field (return type,
	// runtime bindings, etc.) unchanged. The planner uses this to
	// rebind an existing Agg definition after rewriting its inputs
	// (e.g. column pruning, predicate pushdown) without having to
	// reconstruct the whole definition by hand.
	WithNewExprs(exprs []Expr) Agg
}

// KindError is raised when a caller passes an AccColumn of the wrong
// concrete kind to an Agg method (e.g. a *CountAccColumn where a UDAF
// accumulator was expected). It always indicates a programmer error
// in the caller, never a data-dependent condition, so it is reported
// by panic rather than as a returned error.
type KindError struct {
	Want, Got string
}

func (e *KindError) Error() string {
	return fmt.Sprintf("acc: expected AccColumn of kind %s, got %s", e.Want, e.Got)
}

// As downcasts acc to T, panicking with a *KindError if the
// underlying concrete type does not match. It centralizes the
// downcast-is-a-bug contract every Agg implementation otherwise
// repeats inline.
func As[T AccColumn](acc AccColumn) T {
	t, ok := acc.(T)
	if !ok {
		var want T
		panic(&KindError{Want: fmt.Sprintf("%T", want), Got: fmt.Sprintf("%T", acc)})
	}
	return t
}
