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

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/xm0830/blaze"
	"github.com/xm0830/blaze/coreconfig"
	"github.com/xm0830/blaze/rowhash"
)

// defaultOverflowSlack is applied when the caller does not specify
// WithOverflowSlack. It matches coreconfig.Default().JoinOverflowSlack
// but is inlined here so jointable does not need coreconfig at
// runtime for the overwhelmingly common case of accepting the default.
const defaultOverflowSlack = coreconfig.DefaultJoinOverflowSlack

// tableColumn is the name of the extra opaque binary column a
// JoinHashIndex's build batch grows when serialized by
// IntoHashMapBatch. It is spelled with a leading tilde so it never
// collides with a real SQL column name, the same convention sneller
// uses for its own synthetic columns.
const tableColumn = "~TABLE"

// KeyExpr evaluates one join key column from a build (or probe) side
// batch. This is the "physical expression evaluation" collaborator
// spec.md leaves external: the index never inspects how a KeyExpr
// produces its column, only the column it returns.
type KeyExpr func(arrow.Record) (arrow.Array, error)

// JoinHashIndex is a compact, rebuildable, probe-only hash index over
// a batch of build-side keys. It owns the build batch and the
// evaluated key columns until Release is called.
type JoinHashIndex struct {
	batch         arrow.Record
	keys          []KeyExpr
	keyCols       []arrow.Array
	table         *table
	pool          memory.Allocator
	overflowSlack int
}

// Option configures Build and Load.
type Option func(*JoinHashIndex)

// WithAllocator sets the Arrow allocator a JoinHashIndex uses when it
// materializes a hash-map batch. The default is memory.NewGoAllocator().
func WithAllocator(pool memory.Allocator) Option {
	return func(idx *JoinHashIndex) { idx.pool = pool }
}

// WithOverflowSlack sets the extra bucket capacity Build reserves past
// map_mod before its open-addressing insert has to grow the slot
// array (spec.md §3/§4.6). The default is
// coreconfig.DefaultJoinOverflowSlack; pass coreconfig.Load's
// JoinOverflowSlack field here to honor a tenant's configured value.
func WithOverflowSlack(n int) Option {
	return func(idx *JoinHashIndex) { idx.overflowSlack = n }
}

// Build evaluates keys against batch, hashes every row with hasher,
// and constructs a JoinHashIndex. batch is retained for the lifetime
// of the index; callers must call Release when done.
func Build(batch arrow.Record, keys []KeyExpr, hasher rowhash.Hasher, opts ...Option) (*JoinHashIndex, error) {
	idx := &JoinHashIndex{keys: keys, pool: memory.NewGoAllocator(), overflowSlack: defaultOverflowSlack}
	for _, o := range opts {
		o(idx)
	}
	keyCols := make([]arrow.Array, len(keys))
	for i, k := range keys {
		col, err := k(batch)
		if err != nil {
			return nil, blaze.NewExternalError("jointable: evaluate key expression", err)
		}
		keyCols[i] = col
	}
	t, err := buildTable(int(batch.NumRows()), keyCols, hasher, idx.overflowSlack)
	if err != nil {
		return nil, err
	}
	batch.Retain()
	idx.batch = batch
	idx.keyCols = keyCols
	idx.table = t
	return idx, nil
}

// Release drops the index's reference to its build batch. It is safe
// to call Release more than once.
func (idx *JoinHashIndex) Release() {
	if idx.batch != nil {
		idx.batch.Release()
		idx.batch = nil
	}
}

// Batch returns the build-side batch this index was built over (or
// loaded from). The returned record is owned by idx; callers must not
// release it directly.
func (idx *JoinHashIndex) Batch() arrow.Record { return idx.batch }

// NumValidItems reports how many build rows had every key column
// non-null and are therefore reachable by Lookup.
func (idx *JoinHashIndex) NumValidItems() int { return idx.table.numValidItems }

// Lookup returns the MapValue whose masked hash equals hash's low 30
// bits, or Empty if no build row hashed to it. A non-empty result
// only guarantees hash equality modulo 2^30; the caller must still
// compare full keys against the rows named by the result.
func (idx *JoinHashIndex) Lookup(hash uint32) MapValue { return idx.table.lookup(hash) }

// GetRange returns the build row indices a IsRange MapValue names, in
// the order they were appended during build. Calling GetRange on a
// IsSingle or Empty MapValue panics; callers should read
// MapValue.SingleIndex directly for a single match.
func (idx *JoinHashIndex) GetRange(v MapValue) []uint32 {
	if !v.IsRange() {
		panic("jointable: GetRange on a non-range MapValue")
	}
	return idx.table.rangeOf(v)
}

// IntoHashMapBatch serializes idx into a record batch whose schema is
// the build batch's schema with every field made nullable, plus one
// trailing binary column named "~TABLE": row 0 holds the serialized
// JoinTable, every other row is null. An empty build batch (zero
// rows) yields a batch with zero rows and only the schema populated.
func (idx *JoinHashIndex) IntoHashMapBatch() (arrow.Record, error) {
	srcFields := idx.batch.Schema().Fields()
	fields := make([]arrow.Field, 0, len(srcFields)+1)
	cols := make([]arrow.Array, 0, len(srcFields)+1)
	for i, f := range srcFields {
		nf := f
		nf.Nullable = true
		fields = append(fields, nf)
		c := idx.batch.Column(i)
		c.Retain()
		cols = append(cols, c)
	}
	fields = append(fields, arrow.Field{Name: tableColumn, Type: arrow.BinaryTypes.Binary, Nullable: true})

	nrows := idx.batch.NumRows()
	b := array.NewBinaryBuilder(idx.pool, arrow.BinaryTypes.Binary)
	defer b.Release()
	b.Reserve(int(nrows))
	if nrows > 0 {
		var buf bytes.Buffer
		if err := idx.table.serialize(&buf); err != nil {
			return nil, err
		}
		b.Append(buf.Bytes())
		for i := int64(1); i < nrows; i++ {
			b.AppendNull()
		}
	}
	tableCol := b.NewArray()
	cols = append(cols, tableCol)

	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, cols, nrows)
	for _, c := range cols {
		c.Release()
	}
	return rec, nil
}

// LoadFromHashMapBatch reverses IntoHashMapBatch: it strips the
// trailing "~TABLE" column, decodes the JoinTable from its first
// value, and re-evaluates keys against the remaining columns. A
// zero-row batch is treated as equivalent to an index built over an
// empty batch with the same keys.
func LoadFromHashMapBatch(rec arrow.Record, keys []KeyExpr, opts ...Option) (*JoinHashIndex, error) {
	fields := rec.Schema().Fields()
	if len(fields) == 0 || fields[len(fields)-1].Name != tableColumn {
		return nil, blaze.NewInvalidArgument("jointable: batch has no trailing "+tableColumn+" column", nil)
	}
	dataFields := fields[:len(fields)-1]
	dataCols := make([]arrow.Array, len(dataFields))
	for i := range dataFields {
		dataCols[i] = rec.Column(i)
	}
	dataSchema := arrow.NewSchema(dataFields, nil)
	dataRec := array.NewRecord(dataSchema, dataCols, rec.NumRows())
	defer dataRec.Release()

	idx := &JoinHashIndex{keys: keys, pool: memory.NewGoAllocator()}
	for _, o := range opts {
		o(idx)
	}

	keyCols := make([]arrow.Array, len(keys))
	for i, k := range keys {
		col, err := k(dataRec)
		if err != nil {
			return nil, blaze.NewExternalError("jointable: evaluate key expression", err)
		}
		keyCols[i] = col
	}

	var t *table
	if rec.NumRows() == 0 {
		t = &table{mapMod: 1, slots: []MapValue{Empty}}
	} else {
		tableArr, ok := rec.Column(len(fields) - 1).(*array.Binary)
		if !ok {
			return nil, blaze.NewInvalidArgument("jointable: "+tableColumn+" column is not binary", nil)
		}
		parsed, err := deserializeTable(tableArr.Value(0))
		if err != nil {
			return nil, err
		}
		t = parsed
	}

	dataRec.Retain()
	idx.batch = dataRec
	idx.keyCols = keyCols
	idx.table = t
	return idx, nil
}
