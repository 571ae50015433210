// SPDX-License-Identifier: GPL-3.0-or-later

// Package ws implements the WebSocket transport leg (spec §1,
// "WebSocket" alongside TLS/HTTP-obfs). It dials a lower stream
// outbound, upgrades it to a WebSocket connection over that already-
// established socket using [github.com/gorilla/websocket], and frames
// every read/write as one binary message — the same
// read-via-NextReader/write-via-WriteMessage shape the pack's
// gorillaConn (x/websocket/websocket_gorilla.go) uses for its client
// stream adapter.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/gorilla/websocket"
)

// OutboundFactory dials Lower, then performs a WebSocket upgrade over
// the raw connection the lower factory handed back so an already
// proxy-tunneled socket can carry the upgrade (unlike
// [websocket.Dialer.Dial], which always dials its own TCP connection).
type OutboundFactory struct {
	Lower   flow.StreamOutboundFactory
	Path    string
	Host    string
	TLS     bool
	Headers http.Header
}

// DialStream implements [flow.StreamOutboundFactory].
func (f *OutboundFactory) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	lower, err := f.Lower.DialStream(ctx, fctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dialing lower stream: %w", err)
	}
	conn := flow.ToReadWriteCloser(ctx, lower)

	scheme := "ws"
	if f.TLS {
		scheme = "wss"
	}
	host := f.Host
	if host == "" {
		host = fctx.RemotePeer.Host.String()
	}
	u := url.URL{Scheme: scheme, Host: host, Path: f.Path}

	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return rwcNetConn{conn}, nil
		},
	}
	wsConn, _, err := dialer.DialContext(ctx, u.String(), f.Headers)
	if err != nil {
		lower.Close()
		return nil, fmt.Errorf("ws: upgrade: %w", err)
	}
	out := &wsConn2{conn: wsConn}
	if initialData != nil && initialData.Len() > 0 {
		if _, err := out.Write(initialData.Bytes()); err != nil {
			out.Close()
			return nil, fmt.Errorf("ws: writing initial data: %w", err)
		}
	}
	return flow.FromReadWriteCloser(out), nil
}

// wsConn2 adapts a [*websocket.Conn] to [io.ReadWriteCloser], one
// binary message per Write, a streamed reader per Read — grounded on
// x/websocket/websocket_gorilla.go's gorillaConn.
type wsConn2 struct {
	conn          *websocket.Conn
	pendingReader io.Reader
}

func (c *wsConn2) Read(buf []byte) (int, error) {
	if c.pendingReader != nil {
		n, err := c.pendingReader.Read(buf)
		if !errors.Is(err, io.EOF) {
			return n, err
		}
		c.pendingReader = nil
	}
	msgType, reader, err := c.conn.NextReader()
	if err != nil {
		return 0, err
	}
	if msgType != websocket.BinaryMessage {
		return 0, errors.New("ws: received non-binary message")
	}
	c.pendingReader = reader
	return reader.Read(buf)
}

func (c *wsConn2) Write(buf []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (c *wsConn2) Close() error {
	return c.conn.Close()
}

// rwcNetConn adapts an [io.ReadWriteCloser] to [net.Conn] so
// [*websocket.Dialer] can upgrade an already-established flow
// connection instead of dialing its own. Deadlines are no-ops and
// addresses are unset placeholders, mirroring plugin/tls's
// streamNetConn adapter for the same underlying reason: the flow
// layer owns cancellation and peer identity here, not this adapter.
type rwcNetConn struct {
	io.ReadWriteCloser
}

func (rwcNetConn) LocalAddr() net.Addr             { return wsAddr{} }
func (rwcNetConn) RemoteAddr() net.Addr            { return wsAddr{} }
func (rwcNetConn) SetDeadline(time.Time) error      { return nil }
func (rwcNetConn) SetReadDeadline(time.Time) error  { return nil }
func (rwcNetConn) SetWriteDeadline(time.Time) error { return nil }

type wsAddr struct{}

func (wsAddr) Network() string { return "flow" }
func (wsAddr) String() string  { return "flow-stream" }
