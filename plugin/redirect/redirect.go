// SPDX-License-Identifier: GPL-3.0-or-later

// Package redirect implements a static destination rewrite leg: it
// replaces the flow context's remote peer with a fixed destination
// before handing off to Next, independent of whatever the caller
// originally dialed. Grounded on ytflow's StreamRedirectOutboundFactory
// / DatagramSessionRedirectFactory (src/plugin/redirect.rs), which do
// the same rewrite-then-delegate for both the stream and datagram
// outbound roles.
package redirect

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
)

// StreamOutboundFactory rewrites fctx.RemotePeer to Dest, then dials Next.
type StreamOutboundFactory struct {
	Dest flow.Peer
	Next flow.StreamOutboundFactory
}

// DialStream implements [flow.StreamOutboundFactory].
func (f *StreamOutboundFactory) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	redirected := *fctx
	redirected.RemotePeer = f.Dest
	return f.Next.DialStream(ctx, &redirected, initialData)
}

// DatagramOutboundFactory rewrites fctx.RemotePeer to Dest, then binds
// Next and wraps the resulting session so every SendTo is itself
// redirected to Dest, matching DatagramRedirectSession's send_to override.
type DatagramOutboundFactory struct {
	Dest flow.Peer
	Next flow.DatagramOutboundFactory
}

// DialDatagram implements [flow.DatagramOutboundFactory].
func (f *DatagramOutboundFactory) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	redirected := *fctx
	redirected.RemotePeer = f.Dest
	session, err := f.Next.DialDatagram(ctx, &redirected)
	if err != nil {
		return nil, fmt.Errorf("redirect: %w", err)
	}
	return &redirectDatagram{dest: f.Dest, lower: session}, nil
}

type redirectDatagram struct {
	dest  flow.Peer
	lower flow.Datagram
}

func (d *redirectDatagram) RecvFrom(ctx context.Context) (flow.Peer, *buffer.Buffer, error) {
	return d.lower.RecvFrom(ctx)
}

func (d *redirectDatagram) SendReady(ctx context.Context) error {
	return d.lower.SendReady(ctx)
}

func (d *redirectDatagram) SendTo(ctx context.Context, dest flow.Peer, buf *buffer.Buffer) error {
	return d.lower.SendTo(ctx, d.dest, buf)
}

func (d *redirectDatagram) Shutdown() error {
	return d.lower.Shutdown()
}
