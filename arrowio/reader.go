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

package arrowio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/klauspost/compress/zstd"
	"github.com/xm0830/blaze"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderAllocator sets the allocator records are built with.
func WithReaderAllocator(pool memory.Allocator) ReaderOption {
	return func(r *Reader) { r.pool = pool }
}

// WithReaderZstd declares that every batch was wrapped in a zstd
// frame by WithZstd on the writing side.
func WithReaderZstd() ReaderOption {
	return func(r *Reader) { r.compress = true }
}

// WithReaderLengthPrefix declares that every batch is preceded by an
// 8-byte little-endian total length, as written by WithLengthPrefix
// on the writing side.
func WithReaderLengthPrefix() ReaderOption {
	return func(r *Reader) { r.lengthPrefix = true }
}

// Reader decodes the headless Arrow IPC bytes a Writer for the same
// schema produced. A Reader is bound to a single schema, supplied out
// of band exactly as the Writer's was.
type Reader struct {
	schema       *arrow.Schema
	pool         memory.Allocator
	compress     bool
	lengthPrefix bool
	finished     bool

	schemaPrefix []byte
	zstdDec      *zstd.Decoder
}

// NewReader builds a Reader for schema.
func NewReader(schema *arrow.Schema, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{schema: schema, pool: memory.NewGoAllocator()}
	for _, opt := range opts {
		opt(r)
	}
	prefix, err := schemaMessage(schema, r.pool)
	if err != nil {
		return nil, err
	}
	r.schemaPrefix = prefix
	if r.compress {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, blaze.NewCodecError("arrowio: create zstd decoder", err)
		}
		r.zstdDec = dec
	}
	return r, nil
}

// ReadOneBatch decodes the next batch from src. It returns io.EOF
// once src has been exhausted without a partial frame in flight; a
// length-prefixed stream additionally treats a zero-length frame as
// an explicit end marker, so a writer can signal "no more batches"
// without closing its sink.
func (r *Reader) ReadOneBatch(src io.Reader) (arrow.Record, error) {
	if r.finished {
		return nil, io.EOF
	}
	var body []byte
	if r.lengthPrefix {
		var lenBuf [8]byte
		n, err := io.ReadFull(src, lenBuf[:])
		if err != nil {
			if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
				r.finished = true
				return nil, io.EOF
			}
			return nil, blaze.NewIoError("arrowio: read length prefix", err)
		}
		length := binary.LittleEndian.Uint64(lenBuf[:])
		if length == 0 {
			r.finished = true
			return nil, io.EOF
		}
		body = make([]byte, length)
		if _, err := io.ReadFull(src, body); err != nil {
			return nil, blaze.NewIoError("arrowio: read batch body", err)
		}
	} else {
		buf, err := io.ReadAll(src)
		if err != nil {
			return nil, blaze.NewIoError("arrowio: read batch body", err)
		}
		if len(buf) == 0 {
			r.finished = true
			return nil, io.EOF
		}
		body = buf
	}
	if r.compress {
		plain, err := r.zstdDec.DecodeAll(body, nil)
		if err != nil {
			return nil, blaze.NewCodecError("arrowio: zstd decompress batch", err)
		}
		body = plain
	}
	full := make([]byte, 0, len(r.schemaPrefix)+len(body))
	full = append(full, r.schemaPrefix...)
	full = append(full, body...)

	ipcReader, err := ipc.NewReader(bytes.NewReader(full), ipc.WithAllocator(r.pool), ipc.WithSchema(r.schema))
	if err != nil {
		return nil, blaze.NewCodecError("arrowio: open synthesized stream", err)
	}
	defer ipcReader.Release()
	if !ipcReader.Next() {
		if err := ipcReader.Err(); err != nil {
			return nil, blaze.NewCodecError("arrowio: decode record batch", err)
		}
		return nil, blaze.NewCodecError("arrowio: synthesized stream produced no record batch", nil)
	}
	rec := ipcReader.Record()
	rec.Retain()
	return rec, nil
}

// Finish marks the Reader as done; further ReadOneBatch calls return
// io.EOF without touching src.
func (r *Reader) Finish() { r.finished = true }
