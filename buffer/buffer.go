// SPDX-License-Identifier: GPL-3.0-or-later

// Package buffer provides the growable byte container and size-hint types
// shared by every flow implementation in flowplane.
package buffer

// Buffer is a growable byte container whose ownership travels with the
// data: when a Buffer is handed across a flow boundary (via
// flow.Stream.CommitRxBuffer / flow.Stream.CommitTxBuffer), the receiver
// owns it until it is returned. No alias is ever held across a transfer.
type Buffer struct {
	data []byte
	off  int
}

// New returns a [*Buffer] with the given initial capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Wrap returns a [*Buffer] that owns the given slice outright.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Cap returns the total capacity of the backing array.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Advance discards n bytes from the front of the unread region.
func (b *Buffer) Advance(n int) {
	b.off += n
	if b.off > len(b.data) {
		b.off = len(b.data)
	}
}

// Reset empties the buffer, retaining its backing array.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

// Grow ensures at least n more bytes can be appended without reallocating,
// compacting already-read bytes out of the front first.
func (b *Buffer) Grow(n int) {
	if b.off > 0 && cap(b.data)-len(b.data) < n {
		copy(b.data, b.data[b.off:])
		b.data = b.data[:len(b.data)-b.off]
		b.off = 0
	}
	if cap(b.data)-len(b.data) < n {
		grown := make([]byte, len(b.data), len(b.data)+n)
		copy(grown, b.data)
		b.data = grown
	}
}

// Append appends p to the buffer, growing as needed.
func (b *Buffer) Append(p []byte) {
	b.Grow(len(p))
	b.data = append(b.data, p...)
}

// WriteSlot returns a slice of exactly n bytes appended to the buffer,
// ready for the caller to fill in place (e.g., via io.ReadFull).
func (b *Buffer) WriteSlot(n int) []byte {
	b.Grow(n)
	start := len(b.data)
	b.data = b.data[:start+n]
	return b.data[start : start+n]
}

// Shrink removes n bytes from the tail of the buffer (e.g. to correct the
// length after a WriteSlot was only partially filled by a short read).
func (b *Buffer) Shrink(n int) {
	b.data = b.data[:len(b.data)-n]
}

// Truncate discards the already-read bytes by moving the unread bytes to
// the front of the backing array; the array's capacity is kept.
func (b *Buffer) Truncate() {
	if b.off == 0 {
		return
	}
	b.data = append(b.data[:0], b.data[b.off:]...)
	b.off = 0
}
