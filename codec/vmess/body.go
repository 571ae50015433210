// SPDX-License-Identifier: GPL-3.0-or-later
//
// Size-obfuscation mechanics grounded on
// ytflow/src/plugin/vmess/protocol/body/{shake.rs,none.rs}: SHAKE128(iv)
// keystream XORed over the 2-byte size field for unauthenticated bodies;
// a decrypted size of zero ends the stream (spec §4.3 steps 4-5).

package vmess

import (
	"crypto/cipher"
	"crypto/md5"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"

	"github.com/bassosimone/flowplane/flow"
)

// MaxChunkSize bounds a single body chunk's plaintext length.
const MaxChunkSize = 0x3FFF

// sizeCrypto obfuscates (or not) the 2-byte chunk-size field.
type sizeCrypto interface {
	encodeSize(n int) [2]byte
	decodeSize(sealed [2]byte) int
}

type plainSizeCrypto struct{}

func (plainSizeCrypto) encodeSize(n int) [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(n))
	return b
}

func (plainSizeCrypto) decodeSize(b [2]byte) int {
	return int(binary.BigEndian.Uint16(b[:]))
}

// shakeSizeCrypto XORs the size field with a SHAKE128(iv) keystream, an
// independent stream on each end (spec §4.3, "Size obfuscation (SHAKE)").
type shakeSizeCrypto struct {
	reader sha3.ShakeHash
}

func newShakeSizeCrypto(iv []byte) *shakeSizeCrypto {
	sh := sha3.NewShake128()
	sh.Write(iv)
	return &shakeSizeCrypto{reader: sh}
}

func (s *shakeSizeCrypto) encodeSize(n int) [2]byte {
	var ks, out [2]byte
	s.reader.Read(ks[:])
	binary.BigEndian.PutUint16(out[:], uint16(n))
	out[0] ^= ks[0]
	out[1] ^= ks[1]
	return out
}

func (s *shakeSizeCrypto) decodeSize(sealed [2]byte) int {
	var ks [2]byte
	s.reader.Read(ks[:])
	sealed[0] ^= ks[0]
	sealed[1] ^= ks[1]
	return int(binary.BigEndian.Uint16(sealed[:]))
}

// expandChacha20Key derives a 32-byte chacha20-poly1305 key from the
// 16-byte VMess data_key via the doubled-MD5 expansion real VMess
// implementations use for this security.
func expandChacha20Key(dataKey []byte) []byte {
	first := md5.Sum(dataKey)
	second := md5.Sum(first[:])
	return append(append([]byte{}, first[:]...), second[:]...)
}

// bodyCodec frames and seals/opens VMess body chunks for one direction.
// The per-chunk nonce's leading 2 bytes carry a counter; the remaining
// 10 bytes are fixed from the direction's IV (spec §4.3 step 4).
type bodyCodec struct {
	security Security
	size     sizeCrypto
	aead     cipher.AEAD
	nonce    [12]byte
	counter  uint16
}

func newBodyCodec(security Security, key, iv []byte) (*bodyCodec, error) {
	security = ResolveSecurity(security)
	c := &bodyCodec{security: security}
	switch security {
	case SecurityNone:
		c.size = newShakeSizeCrypto(iv)
	case SecurityAES128GCM:
		aead, err := newAESGCM(key)
		if err != nil {
			return nil, err
		}
		c.aead = aead
		c.size = plainSizeCrypto{}
		copy(c.nonce[:], iv[:12])
	case SecurityChacha20Poly1305:
		aead, err := chacha20poly1305.New(expandChacha20Key(key))
		if err != nil {
			return nil, err
		}
		c.aead = aead
		c.size = plainSizeCrypto{}
		copy(c.nonce[:], iv[:12])
	}
	return c, nil
}

func (c *bodyCodec) nextNonce() []byte {
	binary.BigEndian.PutUint16(c.nonce[:2], c.counter)
	c.counter++
	return c.nonce[:]
}

// sealedSizeLen is the byte length of a sealed chunk's leading size field.
func (c *bodyCodec) sealedSizeLen() int {
	return 2
}

// seal returns the size-field bytes and the sealed payload (plaintext
// for [SecurityNone]) for one chunk. plaintext must be <= [MaxChunkSize].
func (c *bodyCodec) seal(plaintext []byte) (sizeField [2]byte, payload []byte, err error) {
	switch c.security {
	case SecurityNone:
		return c.size.encodeSize(len(plaintext)), plaintext, nil
	default:
		sealed := c.aead.Seal(nil, c.nextNonce(), plaintext, nil)
		return c.size.encodeSize(len(sealed)), sealed, nil
	}
}

// openSize decodes the next chunk's payload length from the wire's size
// field. A returned length of zero means end of stream (spec §4.3 step 5).
func (c *bodyCodec) openSize(sizeField [2]byte) int {
	return c.size.decodeSize(sizeField)
}

// terminator returns the size field that signals end of stream: a
// bare zero, with no sealed payload following it (spec §4.3 step 5).
func (c *bodyCodec) terminator() [2]byte {
	return c.size.encodeSize(0)
}

// open decrypts sealed (exactly the length openSize reported) into a
// fresh plaintext slice.
func (c *bodyCodec) open(sealed []byte) ([]byte, error) {
	switch c.security {
	case SecurityNone:
		return sealed, nil
	default:
		out, err := c.aead.Open(nil, c.nextNonce(), sealed, nil)
		if err != nil {
			return nil, flow.ErrUnexpectedData
		}
		return out, nil
	}
}
