// SPDX-License-Identifier: GPL-3.0-or-later

package trojan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

// fakeLower records the initial data DialStream was handed and hands
// back one side of a net.Pipe wrapped as a [flow.Stream].
type fakeLower struct {
	initialData *buffer.Buffer
	serverSide  net.Conn
}

func (f *fakeLower) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	f.initialData = initialData
	clientSide, serverSide := net.Pipe()
	f.serverSide = serverSide
	return flow.FromReadWriteCloser(clientSide), nil
}

// TestDialStreamSendsHandshake verifies the handshake is exactly the
// hex password hash, CRLF, the connect command, the Shadowsocks-shaped
// destination header, CRLF, then the caller's initial data — all sent
// as Lower's initialData in a single dial, with no extra framing
// layered onto the resulting stream afterward.
func TestDialStreamSendsHandshake(t *testing.T) {
	lower := &fakeLower{}
	f := NewOutboundFactory(lower, "hunter2")

	dest := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("203.0.113.9")), Port: 443}
	fctx := flow.NewContext(flow.LocalPeer{}, dest)
	payload := buffer.Wrap([]byte("GET / HTTP/1.1\r\n\r\n"))

	stream, err := f.DialStream(context.Background(), fctx, payload)
	require.NoError(t, err)
	require.NotNil(t, stream)
	require.NotNil(t, lower.initialData)

	got := lower.initialData.Bytes()

	sum := sha256.Sum224([]byte("hunter2"))
	wantHash := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(wantHash, sum[:])

	require.Equal(t, 56, len(wantHash))
	require.Equal(t, wantHash, got[:56])
	require.Equal(t, "\r\n", string(got[56:58]))
	require.Equal(t, byte(cmdConnect), got[58])

	// address header: 0x01 (IPv4) + 4 octets + 2-byte port
	require.Equal(t, byte(0x01), got[59])
	ip := dest.Host.IP.As4()
	require.Equal(t, ip[:], got[60:64])
	require.Equal(t, []byte{0x01, 0xbb}, got[64:66]) // 443

	require.Equal(t, "\r\n", string(got[66:68]))
	require.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(got[68:]))
}

// TestDialStreamNoExtraFraming verifies that once the handshake is
// sent, the returned stream carries bytes verbatim with no additional
// codec wrapping — writing through it should reach the lower pipe
// unchanged.
func TestDialStreamNoExtraFraming(t *testing.T) {
	lower := &fakeLower{}
	f := NewOutboundFactory(lower, "hunter2")

	dest := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("203.0.113.9")), Port: 443}
	fctx := flow.NewContext(flow.LocalPeer{}, dest)

	stream, err := f.DialStream(context.Background(), fctx, nil)
	require.NoError(t, err)
	defer stream.Close()

	rwc := flow.ToReadWriteCloser(context.Background(), stream)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		n, err := lower.serverSide.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "hello", string(buf[:n]))
	}()

	_, err = rwc.Write([]byte("hello"))
	require.NoError(t, err)
	<-done
}
