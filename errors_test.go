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

package blaze

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindDispatch(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"invalid argument", NewInvalidArgument("bad selection", nil), KindInvalidArgument},
		{"io", NewIoError("short read", errors.New("eof")), KindIO},
		{"codec", NewCodecError("bad varint", nil), KindCodec},
		{"external", NewExternalError("udaf call failed", nil), KindExternal},
		{"plain error", errors.New("not ours"), KindOther},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Errorf("%s: Kind() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestKindDispatchThroughWrap(t *testing.T) {
	wrapped := fmt.Errorf("spill failed: %w", NewIoError("write", nil))
	if got := Kind(wrapped); got != KindIO {
		t.Fatalf("Kind(wrapped) = %v, want %v", got, KindIO)
	}
}

func TestErrorKindString(t *testing.T) {
	cases := map[ErrorKind]string{
		KindInvalidArgument: "invalid argument",
		KindIO:              "io error",
		KindCodec:           "codec error",
		KindExternal:        "external error",
		KindOther:           "other",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", k, got, want)
		}
	}
}

func TestErrorMessageWrapsCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := NewIoError("coreio: read varint", cause)
	if got, want := err.Error(), "coreio: read varint: underlying failure"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
}
