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

package coreio

import (
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/xm0830/blaze"
)

// SpillCompressor is the subset of compression algorithms an
// AccColumn may choose between when asked to spill its state to a
// byte sink under memory pressure. The set mirrors sneller's compr
// package: a whole-buffer Compress/Decompress pair is adequate here
// because a single accumulator's frozen state is never so large that
// streaming compression is required.
type SpillCompressor interface {
	Name() string
	Compress(src, dst []byte) []byte
}

// SpillDecompressor is the decoding half of SpillCompressor.
type SpillDecompressor interface {
	Name() string
	Decompress(src, dst []byte) error
}

type zstdSpillCompressor struct{ enc *zstd.Encoder }

func (z zstdSpillCompressor) Name() string { return "zstd" }
func (z zstdSpillCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

var zstdSpillDecoder *zstd.Decoder

func init() {
	d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdSpillDecoder = d
}

type zstdSpillDecompressor struct{}

func (zstdSpillDecompressor) Name() string { return "zstd" }
func (zstdSpillDecompressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := zstdSpillDecoder.DecodeAll(src, into)
	if err != nil {
		return blaze.NewCodecError("coreio: zstd decompress", err)
	}
	if len(ret) != len(dst) {
		return blaze.NewCodecError(fmt.Sprintf("coreio: zstd decompress produced %d bytes, want %d", len(ret), len(dst)), nil)
	}
	return nil
}

type s2SpillCompressor struct{}

func (s2SpillCompressor) Name() string                     { return "s2" }
func (s2SpillCompressor) Compress(src, dst []byte) []byte  { return s2.Encode(nil, src) }
func (s2SpillCompressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := s2.Decode(into, src)
	if err != nil {
		return blaze.NewCodecError("coreio: s2 decompress", err)
	}
	if len(ret) != len(dst) {
		return blaze.NewCodecError(fmt.Sprintf("coreio: s2 decompress produced %d bytes, want %d", len(ret), len(dst)), nil)
	}
	return nil
}

// Compression selects a SpillCompressor by name: "zstd", "zstd-better"
// or "s2". It returns nil for an unrecognized name.
func Compression(name string) SpillCompressor {
	switch name {
	case "zstd-better":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression), zstd.WithEncoderConcurrency(1))
		return zstdSpillCompressor{z}
	case "zstd":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdSpillCompressor{z}
	case "s2":
		return s2SpillCompressor{}
	default:
		return nil
	}
}

// Decompression selects a SpillDecompressor by name.
func Decompression(name string) SpillDecompressor {
	switch name {
	case "zstd", "zstd-better":
		return zstdSpillDecompressor{}
	case "s2":
		return s2SpillCompressor{}
	default:
		return nil
	}
}

// SpillBlock compresses payload with the named algorithm (or stores
// it uncompressed if name is "") and writes it to w as:
// varint(uncompressed length) varint(compressed length) compressed bytes.
// The uncompressed length is written unconditionally so UnspillBlock can
// size its decompression buffer without an extra round trip — this is
// the fix for the spec's open question about an accumulator reading a
// length prefix out of a buffer it has not populated yet: the length
// needed to size that buffer is always recorded up front, never
// derived from data written after it.
func SpillBlock(w io.Writer, name string, payload []byte) error {
	bw := ByteWriter(w)
	if err := WriteLen(bw, uint64(len(payload))); err != nil {
		return err
	}
	body := payload
	if name != "" {
		if c := Compression(name); c != nil {
			body = c.Compress(payload, nil)
		}
	}
	if err := WriteLen(bw, uint64(len(body))); err != nil {
		return err
	}
	if bf, ok := bw.(interface{ Flush() error }); ok {
		if err := bf.Flush(); err != nil {
			return blaze.NewIoError("coreio: flush spill header", err)
		}
	}
	if _, err := w.Write(body); err != nil {
		return blaze.NewIoError("coreio: write spill body", err)
	}
	return nil
}

// UnspillBlock reverses SpillBlock. name must match the algorithm
// SpillBlock was called with ("" for uncompressed).
func UnspillBlock(r io.Reader, name string) ([]byte, error) {
	// br must be read from for the body too: if ByteReader had to wrap
	// r in a *bufio.Reader, bytes past the two varints are already
	// buffered there and would be silently skipped by reading r
	// directly.
	br := ByteReader(r)
	bodyReader, ok := br.(io.Reader)
	if !ok {
		bodyReader = r
	}
	uncompressedLen, err := ReadLen(br)
	if err != nil {
		return nil, err
	}
	compressedLen, err := ReadLen(br)
	if err != nil {
		return nil, err
	}
	body := make([]byte, compressedLen)
	if _, err := io.ReadFull(bodyReader, body); err != nil {
		return nil, blaze.NewIoError("coreio: read spill body", err)
	}
	if name == "" {
		return body, nil
	}
	d := Decompression(name)
	if d == nil {
		return nil, blaze.NewInvalidArgument(fmt.Sprintf("coreio: unknown compression %q", name), nil)
	}
	out := make([]byte, uncompressedLen)
	if err := d.Decompress(body, out); err != nil {
		return nil, err
	}
	return out, nil
}
