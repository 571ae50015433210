// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import "crypto/cipher"

// StreamCodec applies a raw keystream cipher to payload bytes in place,
// with no chunk boundary and no authentication tag (spec §4.2 steps 3/5).
// Callers size reads themselves since the engine reports
// buffer.Unknown(overhead: 0) for this family (spec §9(iii)).
type StreamCodec struct {
	stream cipher.Stream
}

// NewStreamCodec wraps a [cipher.Stream] keystream cipher.
func NewStreamCodec(stream cipher.Stream) *StreamCodec {
	return &StreamCodec{stream: stream}
}

// Apply XORs the keystream over data in place (encrypt and decrypt are
// the same operation for a stream cipher).
func (c *StreamCodec) Apply(data []byte) {
	c.stream.XORKeyStream(data, data)
}
