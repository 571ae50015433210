// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/bassosimone/flowplane/flow"
)

// AEADWriter frames and encrypts a stream of plaintext chunks using the
// Shadowsocks AEAD chunk format:
//
//	[size:2][size_tag:16][payload:n][payload_tag:16]
//
// size carries n in big-endian with the top two bits reserved zero; n is
// bounded by [MaxChunkSize] (spec §4.2 step 2).
type AEADWriter struct {
	aead  cipher.AEAD
	nonce nonceCounter
}

// NewAEADWriter returns an [*AEADWriter] sealing chunks with aead. The
// nonce counter starts at zero, per connection direction (spec §4.2,
// testable property 1 and 3).
func NewAEADWriter(aead cipher.AEAD) *AEADWriter {
	return &AEADWriter{aead: aead}
}

// Seal appends the framed, sealed chunk for plaintext to dst and returns
// the extended slice. plaintext must not exceed [MaxChunkSize] bytes.
func (w *AEADWriter) Seal(dst, plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxChunkSize {
		return nil, fmt.Errorf("shadowsocks: chunk of %d bytes exceeds MaxChunkSize", len(plaintext))
	}

	var sizeBuf [2]byte
	binary.BigEndian.PutUint16(sizeBuf[:], uint16(len(plaintext)))

	dst = w.aead.Seal(dst, nonceFor(w.aead, &w.nonce), sizeBuf[:], nil)
	w.nonce.Increment()

	dst = w.aead.Seal(dst, nonceFor(w.aead, &w.nonce), plaintext, nil)
	w.nonce.Increment()

	return dst, nil
}

// AEADReader decodes and decrypts a stream of chunks sealed by a peer
// [*AEADWriter]. The engine never decrypts a payload until the whole
// chunk (size+tag, then payload+tag) is available (spec §4.2 step 4).
type AEADReader struct {
	aead  cipher.AEAD
	nonce nonceCounter
}

// NewAEADReader returns an [*AEADReader] opening chunks with aead.
func NewAEADReader(aead cipher.AEAD) *AEADReader {
	return &AEADReader{aead: aead}
}

// SizeOverhead is the number of ciphertext bytes needed to learn the next
// chunk's plaintext length (spec §4.2: "AtLeast(n + 16)" after decoding
// size — here n is the 2-byte size field plus its tag).
func (r *AEADReader) SizeOverhead() int {
	return 2 + r.aead.Overhead()
}

// OpenSize decrypts the leading size+tag of a chunk, returning the
// plaintext payload length that follows.
func (r *AEADReader) OpenSize(sealed []byte) (int, error) {
	var sizeBuf [2]byte
	out, err := r.aead.Open(sizeBuf[:0], nonceFor(r.aead, &r.nonce), sealed, nil)
	if err != nil {
		return 0, flow.ErrUnexpectedData
	}
	r.nonce.Increment()
	n := int(binary.BigEndian.Uint16(out)) &^ 0xC000
	if n > MaxChunkSize {
		return 0, flow.ErrUnexpectedData
	}
	return n, nil
}

// PayloadOverhead returns n + the AEAD tag size, i.e. how many
// ciphertext bytes must be read to open a payload of n plaintext bytes.
func (r *AEADReader) PayloadOverhead(n int) int {
	return n + r.aead.Overhead()
}

// OpenPayload decrypts a payload+tag into dst, appending to it.
func (r *AEADReader) OpenPayload(dst, sealed []byte) ([]byte, error) {
	out, err := r.aead.Open(dst, nonceFor(r.aead, &r.nonce), sealed, nil)
	if err != nil {
		return nil, flow.ErrUnexpectedData
	}
	r.nonce.Increment()
	return out, nil
}

// nonceFor returns the counter nonce sized for aead: the 12-byte
// little-endian counter, zero-extended when the AEAD takes a longer nonce
// (xchacha20-ietf-poly1305 takes 24 bytes).
func nonceFor(aead cipher.AEAD, n *nonceCounter) []byte {
	if aead.NonceSize() == len(n.buf) {
		return n.Bytes()
	}
	out := make([]byte, aead.NonceSize())
	copy(out, n.buf[:])
	return out
}
