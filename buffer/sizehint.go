// SPDX-License-Identifier: GPL-3.0-or-later

package buffer

// SizeHint is what a stream producer advertises for the next readable
// chunk: either "at least n bytes are coming" or "an unknown amount,
// possibly with framing overhead the caller should size its buffer for".
//
// Size-hint rule: a producer that returns [AtLeast] must not deliver
// fewer than n bytes before signaling Eof (see flow.ErrEof).
type SizeHint struct {
	atLeast  int
	overhead int
	unknown  bool
	eof      bool
}

// AtLeast returns a [SizeHint] promising at least n bytes.
func AtLeast(n int) SizeHint {
	return SizeHint{atLeast: n}
}

// Unknown returns a [SizeHint] with no length promise, carrying a hint of
// the framing overhead a reader should size its next buffer around.
func Unknown(overhead int) SizeHint {
	return SizeHint{unknown: true, overhead: overhead}
}

// Eof returns the [SizeHint] signaling end of stream.
func Eof() SizeHint {
	return SizeHint{eof: true}
}

// IsEof reports whether this hint signals end of stream.
func (h SizeHint) IsEof() bool {
	return h.eof
}

// IsUnknown reports whether this hint carries no length promise.
func (h SizeHint) IsUnknown() bool {
	return h.unknown
}

// AtLeastN returns the promised minimum length and whether the hint is an
// AtLeast hint at all.
func (h SizeHint) AtLeastN() (int, bool) {
	if h.eof || h.unknown {
		return 0, false
	}
	return h.atLeast, true
}

// Overhead returns the overhead hint carried by an Unknown size hint.
func (h SizeHint) Overhead() int {
	return h.overhead
}

// SuggestedReadSize returns a read size a caller can use to size its next
// buffer, regardless of which kind of hint this is.
func (h SizeHint) SuggestedReadSize(defaultSize int) int {
	switch {
	case h.eof:
		return 0
	case h.unknown:
		return defaultSize + h.overhead
	default:
		return h.atLeast
	}
}
