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

// Package blaze is the root of the vectorized accumulator and join
// hash index core: idxsel, coreio, arrowio, acc, jointable and rowhash
// all report errors through the taxonomy defined here.
package blaze

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error returned from this module so that
// callers can branch on category without type-asserting every
// concrete error struct.
type ErrorKind int

const (
	// KindOther is returned for errors that do not originate in this
	// module (e.g. already-wrapped errors passed through unchanged).
	KindOther ErrorKind = iota
	KindInvalidArgument
	KindIO
	KindCodec
	KindExternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindIO:
		return "io error"
	case KindCodec:
		return "codec error"
	case KindExternal:
		return "external error"
	default:
		return "other"
	}
}

// taggedError is the common shape behind every typed error this
// package returns. It is not exported; callers interact with the
// constructors and Kind below.
type taggedError struct {
	kind ErrorKind
	msg  string
	err  error
}

func (e *taggedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *taggedError) Unwrap() error { return e.err }

// InvalidArgumentError reports a malformed request: an IdxSelection
// out of bounds, a type mismatch between an Agg and its AccColumn, an
// unsupported accumulator kind name, and similar caller mistakes.
type InvalidArgumentError struct{ *taggedError }

// NewInvalidArgument builds an InvalidArgumentError wrapping err (which
// may be nil).
func NewInvalidArgument(msg string, err error) *InvalidArgumentError {
	return &InvalidArgumentError{&taggedError{kind: KindInvalidArgument, msg: msg, err: err}}
}

// IoError reports a failure reading or writing a spill stream or an
// Arrow IPC byte stream.
type IoError struct{ *taggedError }

// NewIoError builds an IoError wrapping err.
func NewIoError(msg string, err error) *IoError {
	return &IoError{&taggedError{kind: KindIO, msg: msg, err: err}}
}

// CodecError reports a structurally invalid encoded byte stream: a
// corrupt varint, an Arrow IPC message of an unexpected type. A
// stream that simply ends too early is reported as an IoError.
type CodecError struct{ *taggedError }

// NewCodecError builds a CodecError wrapping err.
func NewCodecError(msg string, err error) *CodecError {
	return &CodecError{&taggedError{kind: KindCodec, msg: msg, err: err}}
}

// ExternalError reports a failure surfaced by an out-of-process
// collaborator: a host runtime UDAF call, a user-supplied Expr
// evaluation.
type ExternalError struct{ *taggedError }

// NewExternalError builds an ExternalError wrapping err.
func NewExternalError(msg string, err error) *ExternalError {
	return &ExternalError{&taggedError{kind: KindExternal, msg: msg, err: err}}
}

// Kind reports the taxonomy of err, or KindOther if err does not
// originate in this module. It walks the error's wrap chain with
// errors.As, so a caller-wrapped (fmt.Errorf("...: %w", err)) error
// still reports its original kind.
func Kind(err error) ErrorKind {
	var invalidArg *InvalidArgumentError
	var ioErr *IoError
	var codecErr *CodecError
	var externalErr *ExternalError
	switch {
	case errors.As(err, &invalidArg):
		return KindInvalidArgument
	case errors.As(err, &ioErr):
		return KindIO
	case errors.As(err, &codecErr):
		return KindCodec
	case errors.As(err, &externalErr):
		return KindExternal
	default:
		return KindOther
	}
}
