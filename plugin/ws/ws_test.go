// SPDX-License-Identifier: GPL-3.0-or-later

package ws

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoLower dials a raw TCP connection to a test server's listener,
// ignoring fctx/initialData — standing in for a transport leg that has
// already tunneled to the server.
type echoLower struct {
	addr string
}

func (l *echoLower) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	conn, err := net.Dial("tcp", l.addr)
	if err != nil {
		return nil, err
	}
	return flow.FromReadWriteCloser(conn), nil
}

func newEchoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialStreamUpgradesAndEchoesBinaryMessages(t *testing.T) {
	srv := newEchoServer(t)
	addr := strings.TrimPrefix(srv.URL, "http://")

	f := &OutboundFactory{
		Lower: &echoLower{addr: addr},
		Path:  "/ws",
		Host:  addr,
	}

	dest := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("127.0.0.1")), Port: 80}
	fctx := flow.NewContext(flow.LocalPeer{}, dest)

	stream, err := f.DialStream(context.Background(), fctx, nil)
	require.NoError(t, err)
	defer stream.Close()

	rwc := flow.ToReadWriteCloser(context.Background(), stream)

	_, err = rwc.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := rwc.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}
