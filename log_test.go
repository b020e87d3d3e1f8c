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

import "testing"

func TestDebugfNoHookInstalledIsANoOp(t *testing.T) {
	SetDebugf(nil)
	Debugf("count=%d", 1) // must not panic
}

func TestDebugfRoutesThroughInstalledHook(t *testing.T) {
	var got string
	SetDebugf(func(format string, args ...any) {
		got = format
		_ = args
	})
	defer SetDebugf(nil)

	Debugf("jointable: build overflowed reserved slack (%d slots, slack %d)", 3, 1)
	if got == "" {
		t.Fatal("installed hook was never invoked")
	}
}
