// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

func testUserID() [16]byte {
	var id [16]byte
	for i := range id {
		id[i] = byte(i + 1)
	}
	return id
}

func testDest() flow.Peer {
	return flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("203.0.113.55")), Port: 8443}
}

// decodeHeaderTest reverses requestHeader.encode enough to recover
// data_iv/data_key/res_auth/cmd/dest for a server-role test harness; the
// production client never needs this direction.
func decodeHeaderTest(t *testing.T, plain []byte) (dataIV, dataKey [16]byte, resAuth byte, cmd Command, dest flow.Peer) {
	t.Helper()
	require.GreaterOrEqual(t, len(plain), 38+4)
	require.Equal(t, byte(1), plain[0])
	copy(dataIV[:], plain[1:17])
	copy(dataKey[:], plain[17:33])
	resAuth = plain[33]
	paddingLen := int(plain[35] >> 4)
	cmd = Command(plain[37])

	d, consumed, err := decodeAddress(plain[38:])
	require.NoError(t, err)
	dest = d

	addrEnd := 38 + consumed
	require.Equal(t, len(plain), addrEnd+paddingLen+4)
	return
}

func TestClientConnAEADHandshakeAndBody(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	userID := testUserID()
	dest := testDest()
	initial := []byte("ping")

	clientErrCh := make(chan error, 1)
	var clientConnResult io.ReadWriteCloser
	go func() {
		c, err := NewClientConn(userID, 0, SecurityAES128GCM, CommandTCP, clientSide, dest, initial)
		clientConnResult = c
		clientErrCh <- err
	}()

	cmdKey := deriveCmdKey(userID)

	var nonce [8]byte
	_, err := io.ReadFull(serverSide, nonce[:])
	require.NoError(t, err)
	var tsBuf [8]byte
	_, err = io.ReadFull(serverSide, tsBuf[:])
	require.NoError(t, err)
	timestamp := binary.BigEndian.Uint64(tsBuf[:])

	sub := deriveHeaderSubkeys(cmdKey[:], nonce[:], timestamp)

	lengthAEAD, err := newAESGCM(sub.lengthKey)
	require.NoError(t, err)
	sealedLength := make([]byte, 2+lengthAEAD.Overhead())
	_, err = io.ReadFull(serverSide, sealedLength)
	require.NoError(t, err)
	lengthPlain, err := lengthAEAD.Open(nil, sub.lengthNonce, sealedLength, sub.aad)
	require.NoError(t, err)
	headerLen := binary.BigEndian.Uint16(lengthPlain)

	payloadAEAD, err := newAESGCM(sub.payloadKey)
	require.NoError(t, err)
	sealedHeader := make([]byte, int(headerLen)+payloadAEAD.Overhead())
	_, err = io.ReadFull(serverSide, sealedHeader)
	require.NoError(t, err)
	headerPlain, err := payloadAEAD.Open(nil, sub.payloadNonce, sealedHeader, sub.aad)
	require.NoError(t, err)

	dataIV, dataKey, resAuth, cmd, gotDest := decodeHeaderTest(t, headerPlain)
	require.Equal(t, CommandTCP, cmd)
	require.Equal(t, dest.Port, gotDest.Port)
	require.Equal(t, dest.Host.String(), gotDest.Host.String())

	// First body chunk carries the client's initial data.
	rxFromClient, err := newBodyCodec(SecurityAES128GCM, dataKey[:], dataIV[:])
	require.NoError(t, err)
	var sizeField [2]byte
	_, err = io.ReadFull(serverSide, sizeField[:])
	require.NoError(t, err)
	n := rxFromClient.openSize(sizeField)
	sealed := make([]byte, n)
	_, err = io.ReadFull(serverSide, sealed)
	require.NoError(t, err)
	plain, err := rxFromClient.open(sealed)
	require.NoError(t, err)
	require.True(t, bytes.Equal(initial, plain))

	// Reply with a verified response header, then one body chunk.
	resKey, resNonce := deriveResponseKeyNonce(dataKey, dataIV)
	resAEAD, err := newAESGCM(resKey)
	require.NoError(t, err)
	resPlain := []byte{resAuth, optStandard, 0, 0}
	sealedRes := resAEAD.Seal(nil, resNonce, resPlain, nil)

	// The response body is sealed under res_key/res_iv, the same keys the
	// client derives for its receive direction.
	resBodyKey, resBodyIV := deriveLegacyResponseKeyIV(dataKey, dataIV)
	txToClient, err := newBodyCodec(SecurityAES128GCM, resBodyKey, resBodyIV)
	require.NoError(t, err)
	response := []byte("pong")
	respSize, respPayload, err := txToClient.seal(response)
	require.NoError(t, err)

	// net.Pipe is unbuffered: write from a goroutine so the client's
	// reads below can consume the bytes.
	writeDone := make(chan error, 1)
	go func() {
		out := append(append(append([]byte{}, sealedRes...), respSize[:]...), respPayload...)
		_, err := serverSide.Write(out)
		writeDone <- err
	}()

	require.NoError(t, <-clientErrCh)

	got := make([]byte, len(response))
	_, err = io.ReadFull(clientConnResult, got)
	require.NoError(t, err)
	require.Equal(t, response, got)
	require.NoError(t, <-writeDone)

	// Close the server side first so the client's terminator write does
	// not block on a pipe nobody reads.
	serverSide.Close()
	require.NoError(t, clientConnResult.Close())
}

func TestClientConnLegacyHandshake(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	userID := testUserID()
	dest := testDest()

	clientErrCh := make(chan error, 1)
	go func() {
		_, err := NewClientConn(userID, 1, SecurityNone, CommandTCP, clientSide, dest, nil)
		clientErrCh <- err
	}()

	certification := make([]byte, 16)
	_, err := io.ReadFull(serverSide, certification)
	require.NoError(t, err)
	require.NotEqual(t, make([]byte, 16), certification)

	// Drain the rest of the request so the client's single write completes.
	go io.Copy(io.Discard, serverSide)

	require.NoError(t, <-clientErrCh)
}

func TestBodyCodecNoneSecurityTerminatorIsZero(t *testing.T) {
	codec, err := newBodyCodec(SecurityNone, nil, make([]byte, 16))
	require.NoError(t, err)

	term := codec.terminator()

	reader, err := newBodyCodec(SecurityNone, nil, make([]byte, 16))
	require.NoError(t, err)
	n := reader.openSize(term)
	require.Equal(t, 0, n)
}

func TestBodyCodecAEADRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i)
	}

	tx, err := newBodyCodec(SecurityAES128GCM, key, iv)
	require.NoError(t, err)
	rx, err := newBodyCodec(SecurityAES128GCM, key, iv)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		plaintext := bytes.Repeat([]byte{byte(i)}, 100+i)
		sizeField, payload, err := tx.seal(plaintext)
		require.NoError(t, err)
		n := rx.openSize(sizeField)
		require.Equal(t, len(payload), n)
		got, err := rx.open(payload)
		require.NoError(t, err)
		require.True(t, bytes.Equal(plaintext, got))
	}
}
