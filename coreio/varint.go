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

// Package coreio holds the low-level byte-stream primitives shared by
// every part of the accumulator and join substrate that needs to
// freeze state to bytes: a varint length codec, raw little-endian
// slice packing, and a compressed spill stream.
package coreio

import (
	"bufio"
	"io"

	"github.com/xm0830/blaze"
)

// WriteLen writes v to w as an unsigned varint: each byte carries 7
// bits of payload, least-significant group first, with the high bit of
// every byte except the last one set to mark continuation. This is
// the same bit layout sneller's ion codec uses for its uvarints,
// carried over here so freeze/spill streams stay trivially
// greppable/debuggable byte-for-byte against that precedent.
func WriteLen(w io.ByteWriter, v uint64) error {
	for v >= 0x80 {
		if err := w.WriteByte(byte(v) | 0x80); err != nil {
			return blaze.NewIoError("coreio: write varint", err)
		}
		v >>= 7
	}
	return w.WriteByte(byte(v))
}

// ReadLen reads a varint written by WriteLen.
func ReadLen(r io.ByteReader) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && shift == 0 {
				return 0, io.EOF
			}
			return 0, blaze.NewIoError("coreio: read varint", err)
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, blaze.NewCodecError("coreio: varint too long", nil)
		}
	}
}

// ByteReader adapts any io.Reader to io.ByteReader, reusing the
// reader unchanged if it already implements it.
func ByteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return bufio.NewReader(r)
}

// ByteWriter adapts any io.Writer to io.ByteWriter, reusing the
// writer unchanged if it already implements it.
func ByteWriter(w io.Writer) io.ByteWriter {
	if bw, ok := w.(io.ByteWriter); ok {
		return bw
	}
	return bufio.NewWriter(w)
}
