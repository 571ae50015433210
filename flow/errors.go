// SPDX-License-Identifier: GPL-3.0-or-later

// Package flow defines the contract between stream/datagram producers,
// transformers, and consumers: buffer ownership, backpressure, size hints,
// close/half-close, and cancellation (spec §4.1).
package flow

import "errors"

// Kind classifies a flow-level error into one of the four kinds the
// pipeline distinguishes (spec §4.1, §7).
type Kind int

const (
	// KindIo is a generic I/O failure (reset, timeout, unreachable, ...).
	KindIo Kind = iota
	// KindEof signals a clean end of stream.
	KindEof
	// KindUnexpectedData signals malformed or unparsable protocol data.
	KindUnexpectedData
	// KindNoOutbound signals the downstream factory is gone (the plugin
	// that would have served it was torn down, or never resolved).
	KindNoOutbound
)

func (k Kind) String() string {
	switch k {
	case KindEof:
		return "eof"
	case KindUnexpectedData:
		return "unexpectedData"
	case KindNoOutbound:
		return "noOutbound"
	default:
		return "io"
	}
}

// Error is a flow-level error tagged with a [Kind], optionally wrapping an
// underlying cause.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError wraps cause under kind, or returns a bare [*Error] if cause is nil.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// ErrEof is the canonical end-of-stream sentinel.
var ErrEof = &Error{Kind: KindEof}

// ErrNoOutbound is the canonical "downstream factory is gone" sentinel.
var ErrNoOutbound = &Error{Kind: KindNoOutbound}

// ErrUnexpectedData is the canonical malformed-protocol-data sentinel.
var ErrUnexpectedData = &Error{Kind: KindUnexpectedData}

// Is implements errors.Is matching by Kind, ignoring the wrapped cause —
// two [*Error] values of the same Kind compare equal regardless of Cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}
