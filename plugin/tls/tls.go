// SPDX-License-Identifier: GPL-3.0-or-later

// Package tls implements the TLS transport leg: it dials a lower
// stream outbound, then layers a TLS client handshake over it using
// the same [nop.TLSHandshakeFunc] pipeline stage the resolvers'
// DNS-over-TLS transport already composes (spec §1, "TLS" as a
// transport plugin alongside WebSocket/HTTP-obfs).
package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/nop"
)

// OutboundFactory dials Lower, then performs a TLS client handshake
// over the result before handing the connection off as a [flow.Stream].
type OutboundFactory struct {
	Lower              flow.StreamOutboundFactory
	ServerName         string
	NextProtos         []string
	InsecureSkipVerify bool
	Config             *nop.Config
	Logger             nop.SLogger
}

// DialStream implements [flow.StreamOutboundFactory].
func (f *OutboundFactory) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	lower, err := f.Lower.DialStream(ctx, fctx, nil)
	if err != nil {
		return nil, fmt.Errorf("tls: dialing lower stream: %w", err)
	}
	rwc := flow.ToReadWriteCloser(ctx, lower)
	conn := &streamNetConn{ReadWriteCloser: rwc}

	cfg := f.Config
	if cfg == nil {
		cfg = nop.NewConfig()
	}
	logger := f.Logger
	if logger == nil {
		logger = nop.DefaultSLogger()
	}
	serverName := f.ServerName
	if serverName == "" {
		serverName = fctx.RemotePeer.Host.String()
	}
	tlsConfig := &tls.Config{
		ServerName:         serverName,
		NextProtos:         f.NextProtos,
		InsecureSkipVerify: f.InsecureSkipVerify,
	}

	handshake := nop.NewTLSHandshakeFunc(cfg, tlsConfig, logger)
	tlsConn, err := handshake.Call(ctx, conn)
	if err != nil {
		lower.Close()
		return nil, fmt.Errorf("tls: handshake: %w", err)
	}
	if initialData != nil && initialData.Len() > 0 {
		if _, err := tlsConn.Write(initialData.Bytes()); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("tls: writing initial data: %w", err)
		}
	}
	return flow.FromReadWriteCloser(tlsConn), nil
}

// streamNetConn adapts an [io.ReadWriteCloser] (itself bridging a
// [flow.Stream] via [flow.ToReadWriteCloser]) to [net.Conn], the shape
// [nop.TLSHandshakeFunc] requires. Deadlines are no-ops and addresses
// are unset placeholders: the flow layer, not this adapter, owns
// cancellation and peer identity for a stream-backed connection.
type streamNetConn struct {
	io.ReadWriteCloser
}

func (streamNetConn) LocalAddr() net.Addr                { return streamAddr{} }
func (streamNetConn) RemoteAddr() net.Addr               { return streamAddr{} }
func (streamNetConn) SetDeadline(time.Time) error        { return nil }
func (streamNetConn) SetReadDeadline(time.Time) error     { return nil }
func (streamNetConn) SetWriteDeadline(time.Time) error    { return nil }

type streamAddr struct{}

func (streamAddr) Network() string { return "flow" }
func (streamAddr) String() string  { return "flow-stream" }
