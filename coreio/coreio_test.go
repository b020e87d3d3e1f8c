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
	"bytes"
	"io"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}
	for _, v := range cases {
		var buf bytes.Buffer
		if err := WriteLen(&buf, v); err != nil {
			t.Fatalf("WriteLen(%d): %v", v, err)
		}
		got, err := ReadLen(&buf)
		if err != nil {
			t.Fatalf("ReadLen(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %d -> %d", v, got)
		}
	}
}

func TestReadLenEOF(t *testing.T) {
	_, err := ReadLen(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty input, got %v", err)
	}
}

func TestUint32SliceRoundTrip(t *testing.T) {
	vals := []uint32{0, 1, 0xdeadbeef, 42}
	var buf bytes.Buffer
	if err := WriteUint32s(&buf, vals); err != nil {
		t.Fatal(err)
	}
	got, err := ReadUint32s(&buf, len(vals))
	if err != nil {
		t.Fatal(err)
	}
	for i := range vals {
		if got[i] != vals[i] {
			t.Fatalf("index %d: got %x want %x", i, got[i], vals[i])
		}
	}
}

func TestSpillBlockRoundTripUncompressed(t *testing.T) {
	payload := []byte("some frozen accumulator state bytes")
	var buf bytes.Buffer
	if err := SpillBlock(&buf, "", payload); err != nil {
		t.Fatal(err)
	}
	got, err := UnspillBlock(&buf, "")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
}

func TestSpillBlockRoundTripZstd(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	var buf bytes.Buffer
	if err := SpillBlock(&buf, "zstd", payload); err != nil {
		t.Fatal(err)
	}
	got, err := UnspillBlock(&buf, "zstd")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("zstd round trip mismatch, got %d bytes want %d", len(got), len(payload))
	}
}

func TestSpillBlockRoundTripS2(t *testing.T) {
	payload := bytes.Repeat([]byte("xyz123"), 1000)
	var buf bytes.Buffer
	if err := SpillBlock(&buf, "s2", payload); err != nil {
		t.Fatal(err)
	}
	got, err := UnspillBlock(&buf, "s2")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("s2 round trip mismatch")
	}
}

func TestSpillBlockEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := SpillBlock(&buf, "zstd", nil); err != nil {
		t.Fatal(err)
	}
	got, err := UnspillBlock(&buf, "zstd")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}
