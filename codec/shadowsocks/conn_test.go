// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"net"
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

func testDest(t *testing.T) flow.Peer {
	t.Helper()
	return flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("203.0.113.9")), Port: 443}
}

// TestClientConnHandshakeAEAD verifies that NewClientConn sends exactly
// one IV at the head of the stream, followed by the AEAD-framed
// destination header and initial data (spec §4.2 step 1, property 1).
func TestClientConnHandshakeAEAD(t *testing.T) {
	spec, err := Lookup("aes-128-gcm")
	require.NoError(t, err)

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	dest := testDest(t)
	initial := []byte("GET / HTTP/1.1\r\n\r\n")

	errCh := make(chan error, 1)
	var conn interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
		Close() error
	}
	go func() {
		c, err := NewClientConn(spec, "hunter2", clientSide, dest, initial)
		conn = c
		errCh <- err
	}()

	masterKey := EVPBytesToKey("hunter2", spec.KeyLen)

	iv := make([]byte, spec.IVLen)
	_, err = readFullTest(serverSide, iv)
	require.NoError(t, err)

	subkey, err := DeriveSubkey(masterKey, iv, spec.KeyLen)
	require.NoError(t, err)
	aead, err := spec.newAEAD(subkey)
	require.NoError(t, err)
	r := NewAEADReader(aead)

	sizeBuf := make([]byte, r.SizeOverhead())
	_, err = readFullTest(serverSide, sizeBuf)
	require.NoError(t, err)
	n, err := r.OpenSize(sizeBuf)
	require.NoError(t, err)

	payloadBuf := make([]byte, r.PayloadOverhead(n))
	_, err = readFullTest(serverSide, payloadBuf)
	require.NoError(t, err)
	plain, err := r.OpenPayload(nil, payloadBuf)
	require.NoError(t, err)

	gotDest, consumed, err := DecodeAddress(plain)
	require.NoError(t, err)
	require.Equal(t, dest.Port, gotDest.Port)
	require.Equal(t, dest.Host.String(), gotDest.Host.String())
	require.Equal(t, initial, plain[consumed:])

	require.NoError(t, <-errCh)
	require.NoError(t, conn.Close())
}

// TestClientConnRoundTripResponse verifies that a server-originated
// response (its own IV, independent nonce sequence) is correctly decoded
// by clientConn.Read, and that the two directions never share nonce
// state (spec §8, E2E-3).
func TestClientConnRoundTripResponse(t *testing.T) {
	spec, err := Lookup("chacha20-ietf-poly1305")
	require.NoError(t, err)

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	password := "correct horse battery staple"
	masterKey := EVPBytesToKey(password, spec.KeyLen)
	dest := testDest(t)

	clientDone := make(chan struct {
		conn interface {
			Read([]byte) (int, error)
			Write([]byte) (int, error)
			Close() error
		}
		err error
	}, 1)
	go func() {
		c, err := NewClientConn(spec, password, clientSide, dest, nil)
		clientDone <- struct {
			conn interface {
				Read([]byte) (int, error)
				Write([]byte) (int, error)
				Close() error
			}
			err error
		}{c, err}
	}()

	// Drain the client's handshake on the server side before replying.
	drainHandshake(t, serverSide, spec, masterKey)

	respIV := make([]byte, spec.IVLen)
	for i := range respIV {
		respIV[i] = byte(i + 1)
	}
	respSubkey, err := DeriveSubkey(masterKey, respIV, spec.KeyLen)
	require.NoError(t, err)
	respAEAD, err := spec.newAEAD(respSubkey)
	require.NoError(t, err)
	w := NewAEADWriter(respAEAD)

	response := []byte("HTTP/1.1 200 OK\r\n\r\n")
	out := append([]byte{}, respIV...)
	out, err = w.Seal(out, response)
	require.NoError(t, err)

	writeDone := make(chan error, 1)
	go func() {
		_, err := serverSide.Write(out)
		writeDone <- err
	}()

	result := <-clientDone
	require.NoError(t, result.err)
	require.NoError(t, <-writeDone)

	got := make([]byte, len(response))
	n, err := readFullTest(result.conn, got)
	require.NoError(t, err)
	require.Equal(t, len(response), n)
	require.Equal(t, response, got)

	require.NoError(t, result.conn.Close())
	serverSide.Close()
}

func drainHandshake(t *testing.T, serverSide net.Conn, spec CipherSpec, masterKey []byte) {
	t.Helper()
	iv := make([]byte, spec.IVLen)
	_, err := readFullTest(serverSide, iv)
	require.NoError(t, err)
	subkey, err := DeriveSubkey(masterKey, iv, spec.KeyLen)
	require.NoError(t, err)
	aead, err := spec.newAEAD(subkey)
	require.NoError(t, err)
	r := NewAEADReader(aead)
	sizeBuf := make([]byte, r.SizeOverhead())
	_, err = readFullTest(serverSide, sizeBuf)
	require.NoError(t, err)
	n, err := r.OpenSize(sizeBuf)
	require.NoError(t, err)
	payloadBuf := make([]byte, r.PayloadOverhead(n))
	_, err = readFullTest(serverSide, payloadBuf)
	require.NoError(t, err)
}

func readFullTest(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestClientConnStreamCipherRoundTrip covers the stream-cipher family,
// which has no chunk boundary or authentication tag (spec §4.2 steps
// 3/5): the client writes the IV once, then raw keystream-applied bytes.
func TestClientConnStreamCipherRoundTrip(t *testing.T) {
	spec, err := Lookup("aes-128-ctr")
	require.NoError(t, err)

	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	password := "stream cipher password"
	masterKey := EVPBytesToKey(password, spec.KeyLen)
	dest := testDest(t)
	initial := []byte("hello")

	clientErrCh := make(chan error, 1)
	go func() {
		_, err := NewClientConn(spec, password, clientSide, dest, initial)
		clientErrCh <- err
	}()

	iv := make([]byte, spec.IVLen)
	_, err = readFullTest(serverSide, iv)
	require.NoError(t, err)

	dec, err := spec.newStream(masterKey, iv, false)
	require.NoError(t, err)

	hdr, err := EncodeAddress(dest)
	require.NoError(t, err)
	body := make([]byte, len(hdr)+len(initial))
	_, err = readFullTest(serverSide, body)
	require.NoError(t, err)
	dec.XORKeyStream(body, body)

	gotDest, consumed, err := DecodeAddress(body)
	require.NoError(t, err)
	require.Equal(t, dest.Port, gotDest.Port)
	require.Equal(t, initial, body[consumed:])

	require.NoError(t, <-clientErrCh)
}
