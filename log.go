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

// debugHook, if non-nil, receives low-volume diagnostic output from
// this module: UDAF update round-trips and join table overflow
// growth. The core never imports a logging library itself;
// the hosting process installs this hook with SetDebugf if it wants
// the output. It defaults to nil, i.e. no output.
var debugHook func(format string, args ...any)

// SetDebugf installs fn as the diagnostic sink every package in this
// module reports through via Debugf. Passing nil disables diagnostic
// output again.
func SetDebugf(fn func(format string, args ...any)) {
	debugHook = fn
}

// Debugf emits a low-volume diagnostic line through the hook installed
// by SetDebugf, or does nothing if none has been installed. Every
// package in this module calls this instead of a host-supplied
// function value directly, so diagnostic call sites are safe whether
// or not the hosting process has opted into logging.
func Debugf(format string, args ...any) {
	if debugHook != nil {
		debugHook(format, args...)
	}
}
