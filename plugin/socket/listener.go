// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"context"
	"net"
	"net/netip"

	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/internal/slogx"
	"github.com/bassosimone/nop"
)

// Listener accepts inbound TCP connections on a bound address and hands
// each one, wrapped as a [flow.Stream], to a [flow.StreamHandler] —
// the inbound counterpart of [StreamOutboundFactory] (spec §6, "System
// boundary I/O").
type Listener struct {
	Handler flow.StreamHandler
	Logger  nop.SLogger

	ln net.Listener
}

// NewListener returns a [*Listener] delivering accepted connections to
// handler.
func NewListener(handler flow.StreamHandler, logger nop.SLogger) *Listener {
	if logger == nil {
		logger = nop.DefaultSLogger()
	}
	return &Listener{Handler: handler, Logger: logger}
}

// Serve listens on addr and accepts connections until ctx is done or
// Close is called. It blocks until the listener stops.
func (l *Listener) Serve(ctx context.Context, addr netip.AddrPort) error {
	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		return err
	}
	l.ln = ln
	context.AfterFunc(ctx, func() { ln.Close() })

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				l.Logger.Info("socket: accept failed", slogx.Err(err)...)
				return err
			}
		}
		go l.handle(ctx, conn)
	}
}

// Close stops the listener, causing a pending Serve call to return.
func (l *Listener) Close() error {
	if l.ln != nil {
		return l.ln.Close()
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	local := conn.LocalAddr().(*net.TCPAddr)
	remote := conn.RemoteAddr().(*net.TCPAddr)
	fctx := flow.NewContext(
		flow.LocalPeer{IP: addrFromTCP(local), Port: uint16(local.Port)},
		flow.Peer{Host: flow.NewHostIP(addrFromTCP(remote)), Port: uint16(remote.Port)},
	)
	stream := flow.FromReadWriteCloser(conn)
	if err := l.Handler.HandleStream(ctx, fctx, stream); err != nil {
		l.Logger.Debug("socket: stream handler returned", slogx.Args(slogx.Err(err), slogx.Span(fctx.SpanID))...)
	}
}

func addrFromTCP(a *net.TCPAddr) netip.Addr {
	if ip, ok := netip.AddrFromSlice(a.IP); ok {
		return ip.Unmap()
	}
	return netip.Addr{}
}
