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

// Package arrowio is a headless Arrow IPC codec: it writes and reads
// a single record batch (plus whatever dictionary messages it needs)
// without the stream-level schema message a standalone Arrow IPC
// stream normally starts with. The schema travels out of band -- the
// same way the caller already knows it from a catalog or a prior
// handshake -- so every byte on the wire is payload.
//
// Rather than re-implement Arrow's flatbuffers Message/Schema
// encoding by hand, this package drives the real
// github.com/apache/arrow/go/v12/arrow/ipc writer and reader and
// strips or re-synthesizes the schema message around them. A stream
// IPC writer always emits, in order: one schema message, zero or more
// dictionary messages, the record batch message, and (on Close) an
// end-of-stream marker. Writing the schema alone against the same
// options is therefore deterministic, so its byte length can be
// measured once per schema and reused to strip it from every
// subsequent encode, and to resynthesize it ahead of every decode.
package arrowio

import (
	"bytes"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/xm0830/blaze"
)

// eosLen is the length of the end-of-stream marker a stream IPC
// writer appends on Close with nothing further to write: a 4-byte
// 0xFFFFFFFF continuation marker followed by a 4-byte zero metadata
// length.
const eosLen = 8

// schemaMessage returns the exact bytes a stream IPC writer emits for
// schema alone (no records), with the trailing end-of-stream marker
// removed. Every headless Writer/Reader pair for the same schema
// shares this prefix: Writer strips it off outgoing bytes, Reader
// glues it back onto incoming bytes before handing them to a real
// ipc.Reader.
func schemaMessage(schema *arrow.Schema, pool memory.Allocator) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err := w.Close(); err != nil {
		return nil, blaze.NewCodecError("arrowio: encode schema message", err)
	}
	b := buf.Bytes()
	if len(b) < eosLen {
		return nil, blaze.NewCodecError("arrowio: schema-only stream shorter than an end-of-stream marker", nil)
	}
	return b[:len(b)-eosLen], nil
}
