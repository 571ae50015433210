// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"crypto/rand"
	"io"

	"github.com/bassosimone/flowplane/flow"
)

// clientConn implements [io.ReadWriteCloser] with the Shadowsocks TCP
// client role (spec §4.2): it generates the IV, derives the subkey,
// encodes the destination, and frames every subsequent chunk. Wrapping a
// clientConn with [flow.FromReadWriteCloser] yields a Shadowsocks-codec
// [flow.Stream].
//
// Each clientConn owns independent nonce and IV state, so two parallel
// flows through the same cipher configuration never alias state (spec
// §8, E2E-3).
type clientConn struct {
	spec      CipherSpec
	masterKey []byte
	lower     io.ReadWriteCloser

	writer    *AEADWriter
	reader    *AEADReader
	streamEnc *StreamCodec
	streamDec *StreamCodec

	pendingChunk []byte
}

// NewClientConn performs the Shadowsocks TCP handshake over lower
// (generate IV, derive subkey, encode destination, send destination and
// initialData as the first framed chunk) and returns the resulting
// [io.ReadWriteCloser].
func NewClientConn(spec CipherSpec, password string, lower io.ReadWriteCloser, dest flow.Peer, initialData []byte) (io.ReadWriteCloser, error) {
	masterKey := EVPBytesToKey(password, spec.KeyLen)
	c := &clientConn{spec: spec, masterKey: masterKey, lower: lower}

	iv := make([]byte, spec.IVLen)
	if spec.IVLen > 0 {
		if _, err := rand.Read(iv); err != nil {
			return nil, err
		}
	}

	hdr, err := EncodeAddress(dest)
	if err != nil {
		return nil, err
	}
	payload := append(hdr, initialData...)

	switch spec.Family {
	case FamilyAEAD:
		subkey, err := DeriveSubkey(masterKey, iv, spec.KeyLen)
		if err != nil {
			return nil, err
		}
		aead, err := spec.newAEAD(subkey)
		if err != nil {
			return nil, err
		}
		c.writer = NewAEADWriter(aead)
		out := append([]byte{}, iv...)
		out, err = c.writer.Seal(out, payload)
		if err != nil {
			return nil, err
		}
		if _, err := lower.Write(out); err != nil {
			return nil, err
		}
	case FamilyStream:
		enc, err := spec.newStream(masterKey, iv, true)
		if err != nil {
			return nil, err
		}
		c.streamEnc = NewStreamCodec(enc)
		body := append([]byte{}, payload...)
		c.streamEnc.Apply(body)
		out := append(append([]byte{}, iv...), body...)
		if _, err := lower.Write(out); err != nil {
			return nil, err
		}
	default: // FamilyNone
		if _, err := lower.Write(payload); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *clientConn) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.lower, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *clientConn) initRxAEAD() error {
	iv, err := c.readFull(c.spec.IVLen)
	if err != nil {
		return err
	}
	subkey, err := DeriveSubkey(c.masterKey, iv, c.spec.KeyLen)
	if err != nil {
		return err
	}
	aead, err := c.spec.newAEAD(subkey)
	if err != nil {
		return err
	}
	c.reader = NewAEADReader(aead)
	return nil
}

func (c *clientConn) initRxStream() error {
	iv, err := c.readFull(c.spec.IVLen)
	if err != nil {
		return err
	}
	dec, err := c.spec.newStream(c.masterKey, iv, false)
	if err != nil {
		return err
	}
	c.streamDec = NewStreamCodec(dec)
	return nil
}

// Read implements [io.Reader], decoding one chunk of ciphertext per
// family: AEAD chunks are framed (size sub-chunk then payload sub-chunk);
// stream-cipher data has no chunk boundary and is read straight through.
func (c *clientConn) Read(p []byte) (int, error) {
	switch c.spec.Family {
	case FamilyAEAD:
		if c.reader == nil {
			if err := c.initRxAEAD(); err != nil {
				return 0, err
			}
		}
		if len(c.pendingChunk) == 0 {
			head, err := c.readFull(c.reader.SizeOverhead())
			if err != nil {
				return 0, err
			}
			n, err := c.reader.OpenSize(head)
			if err != nil {
				return 0, err
			}
			sealed, err := c.readFull(c.reader.PayloadOverhead(n))
			if err != nil {
				return 0, err
			}
			plain, err := c.reader.OpenPayload(make([]byte, 0, n), sealed)
			if err != nil {
				return 0, err
			}
			c.pendingChunk = plain
		}
		n := copy(p, c.pendingChunk)
		c.pendingChunk = c.pendingChunk[n:]
		return n, nil
	case FamilyStream:
		if c.streamDec == nil {
			if err := c.initRxStream(); err != nil {
				return 0, err
			}
		}
		n, err := c.lower.Read(p)
		if n > 0 {
			c.streamDec.Apply(p[:n])
		}
		return n, err
	default:
		return c.lower.Read(p)
	}
}

// Write implements [io.Writer], framing p per the configured family.
func (c *clientConn) Write(p []byte) (int, error) {
	switch c.spec.Family {
	case FamilyAEAD:
		total := len(p)
		for len(p) > 0 {
			chunk := p
			if len(chunk) > MaxChunkSize {
				chunk = chunk[:MaxChunkSize]
			}
			out, err := c.writer.Seal(nil, chunk)
			if err != nil {
				return total - len(p), err
			}
			if _, err := c.lower.Write(out); err != nil {
				return total - len(p), err
			}
			p = p[len(chunk):]
		}
		return total, nil
	case FamilyStream:
		body := append([]byte{}, p...)
		c.streamEnc.Apply(body)
		return c.lower.Write(body)
	default:
		return c.lower.Write(p)
	}
}

// Close closes the lower connection.
func (c *clientConn) Close() error {
	return c.lower.Close()
}
