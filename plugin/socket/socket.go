// SPDX-License-Identifier: GPL-3.0-or-later

// Package socket implements the leaf plugin that owns real operating
// system sockets: a [flow.StreamOutboundFactory]/[flow.DatagramOutboundFactory]
// pair dialing raw TCP/UDP, and a [Listener] accepting inbound TCP
// connections and handing them to a [flow.StreamHandler] (spec §6,
// "System boundary I/O"; spec §4.6 names the resolve-then-connect
// pipeline this package is the last stage of).
package socket

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/nop"
)

// StreamOutboundFactory dials a raw TCP connection to fctx.RemotePeer,
// composing the endpoint/connect/cancel-watch stages of the pipeline
// the resolvers use for outbound DNS (see resolve/hostresolver.go),
// without its observe stage, grounded on nop/example_dnsoverudp_test.go's literal Compose
// recipe.
type StreamOutboundFactory struct {
	Config *nop.Config
	Logger nop.SLogger
}

// NewStreamOutboundFactory returns a [*StreamOutboundFactory] with the
// given configuration, defaulting Config/Logger when nil.
func NewStreamOutboundFactory(cfg *nop.Config, logger nop.SLogger) *StreamOutboundFactory {
	if cfg == nil {
		cfg = nop.NewConfig()
	}
	if logger == nil {
		logger = nop.DefaultSLogger()
	}
	return &StreamOutboundFactory{Config: cfg, Logger: logger}
}

// DialStream implements [flow.StreamOutboundFactory]. fctx.RemotePeer
// must already be a literal IP: resolving a domain destination is the
// resolver's job, upstream of this plugin (spec §4.6).
func (f *StreamOutboundFactory) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	if fctx.RemotePeer.Host.Kind != flow.HostIP {
		return nil, fmt.Errorf("socket: DialStream requires a resolved IP destination, got %q", fctx.RemotePeer.Host)
	}
	pipeline := nop.Compose3(
		nop.NewEndpointFunc(netip.AddrPortFrom(fctx.RemotePeer.Host.IP, fctx.RemotePeer.Port)),
		nop.NewConnectFunc(f.Config, "tcp", f.Logger),
		nop.NewCancelWatchFunc(),
	)
	conn, err := pipeline.Call(ctx, nop.Unit{})
	if err != nil {
		return nil, fmt.Errorf("socket: dialing tcp: %w", err)
	}
	if initialData != nil && initialData.Len() > 0 {
		if _, err := conn.Write(initialData.Bytes()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("socket: writing initial data: %w", err)
		}
	}
	return flow.FromReadWriteCloser(conn), nil
}

// DatagramOutboundFactory dials a raw UDP socket connected to
// fctx.RemotePeer.
type DatagramOutboundFactory struct {
	Config *nop.Config
}

// NewDatagramOutboundFactory returns a [*DatagramOutboundFactory].
func NewDatagramOutboundFactory(cfg *nop.Config) *DatagramOutboundFactory {
	if cfg == nil {
		cfg = nop.NewConfig()
	}
	return &DatagramOutboundFactory{Config: cfg}
}

// DialDatagram implements [flow.DatagramOutboundFactory].
func (f *DatagramOutboundFactory) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	if fctx.RemotePeer.Host.Kind != flow.HostIP {
		return nil, fmt.Errorf("socket: DialDatagram requires a resolved IP destination, got %q", fctx.RemotePeer.Host)
	}
	addr := netip.AddrPortFrom(fctx.RemotePeer.Host.IP, fctx.RemotePeer.Port)
	conn, err := f.Config.Dialer.DialContext(ctx, "udp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("socket: dialing udp: %w", err)
	}
	return &udpDatagram{conn: conn, peer: fctx.RemotePeer}, nil
}
