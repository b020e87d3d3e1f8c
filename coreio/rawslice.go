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
	"encoding/binary"
	"io"

	"github.com/xm0830/blaze"
)

// WriteUint32s appends the little-endian encoding of vals to w.
func WriteUint32s(w io.Writer, vals []uint32) error {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	_, err := w.Write(buf)
	if err != nil {
		return blaze.NewIoError("coreio: write uint32 slice", err)
	}
	return nil
}

// ReadUint32s reads n little-endian uint32s from r. The buffer it
// returns is freshly zero-allocated: this module never reinterprets
// uninitialized memory as a decoded array, trading one extra memset
// for a class of bugs the original Rust implementation had to guard
// against by other means.
func ReadUint32s(r io.Reader, n int) ([]uint32, error) {
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, blaze.NewIoError("coreio: read uint32 slice", err)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out, nil
}
