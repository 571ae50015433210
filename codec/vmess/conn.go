// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import (
	"io"

	"github.com/bassosimone/flowplane/flow"
)

// clientConn implements [io.ReadWriteCloser] with the VMess client role
// (spec §4.3): it performs the request/response handshake, then frames
// every subsequent chunk through a [bodyCodec] per direction.
type clientConn struct {
	lower io.ReadWriteCloser

	txCodec *bodyCodec
	rxCodec *bodyCodec

	respDecoder  responseDecoder
	respVerified bool

	pendingChunk []byte
}

// NewClientConn performs the VMess handshake over lower (spec §4.3 steps
// 1-3: choose the AEAD or legacy header variant by alterID, send the
// sealed request, and prepare to verify the response header on first
// read) and returns the resulting [io.ReadWriteCloser].
func NewClientConn(userID [16]byte, alterID uint16, security Security, cmd Command, lower io.ReadWriteCloser, dest flow.Peer, initialData []byte) (io.ReadWriteCloser, error) {
	header, err := newRequestHeader(cmd, dest, security)
	if err != nil {
		return nil, err
	}

	var enc requestEncoder
	if alterID == 0 {
		enc = newAEADRequestEncoder(userID)
	} else {
		enc = newLegacyRequestEncoder(userID)
	}

	wire, respDecoder, err := enc.encryptRequest(header)
	if err != nil {
		return nil, err
	}
	if _, err := lower.Write(wire); err != nil {
		return nil, err
	}

	txCodec, err := newBodyCodec(header.Security, header.DataKey[:], header.DataIV[:])
	if err != nil {
		return nil, err
	}
	resKey, resIV := deriveLegacyResponseKeyIV(header.DataKey, header.DataIV)
	rxCodec, err := newBodyCodec(header.Security, resKey, resIV)
	if err != nil {
		return nil, err
	}

	c := &clientConn{lower: lower, txCodec: txCodec, rxCodec: rxCodec, respDecoder: respDecoder}
	if len(initialData) > 0 {
		if _, err := c.Write(initialData); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *clientConn) ensureResponseVerified() error {
	if c.respVerified {
		return nil
	}
	sealed := make([]byte, c.respDecoder.sealedLen())
	if _, err := io.ReadFull(c.lower, sealed); err != nil {
		return err
	}
	if _, err := c.respDecoder.decryptResponse(sealed); err != nil {
		return err
	}
	c.respVerified = true
	return nil
}

// Read implements [io.Reader]. It verifies the response header on first
// call, then decodes body chunks: a decrypted size of zero ends the
// stream with io.EOF (spec §4.3 step 5).
func (c *clientConn) Read(p []byte) (int, error) {
	if err := c.ensureResponseVerified(); err != nil {
		return 0, err
	}
	if len(c.pendingChunk) == 0 {
		var sizeField [2]byte
		if _, err := io.ReadFull(c.lower, sizeField[:]); err != nil {
			return 0, err
		}
		n := c.rxCodec.openSize(sizeField)
		if n == 0 {
			return 0, io.EOF
		}
		sealed := make([]byte, n)
		if _, err := io.ReadFull(c.lower, sealed); err != nil {
			return 0, err
		}
		plain, err := c.rxCodec.open(sealed)
		if err != nil {
			return 0, err
		}
		c.pendingChunk = plain
	}
	n := copy(p, c.pendingChunk)
	c.pendingChunk = c.pendingChunk[n:]
	return n, nil
}

// Write implements [io.Writer], framing p into one or more body chunks.
func (c *clientConn) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		chunk := p
		if len(chunk) > MaxChunkSize {
			chunk = chunk[:MaxChunkSize]
		}
		sizeField, payload, err := c.txCodec.seal(chunk)
		if err != nil {
			return total - len(p), err
		}
		if _, err := c.lower.Write(sizeField[:]); err != nil {
			return total - len(p), err
		}
		if _, err := c.lower.Write(payload); err != nil {
			return total - len(p), err
		}
		p = p[len(chunk):]
	}
	return total, nil
}

// Close sends the size=0 terminator chunk (spec §4.3 step 5) and closes
// the lower connection.
func (c *clientConn) Close() error {
	term := c.txCodec.terminator()
	c.lower.Write(term[:])
	return c.lower.Close()
}
