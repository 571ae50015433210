// SPDX-License-Identifier: GPL-3.0-or-later

// Package nullreject provides two placeholder legs every profile can
// reference by name: Null, an outbound/resolver that always fails with
// [flow.ErrNoOutbound] (ytflow's plugin/null.rs), and RejectHandler, an
// inbound handler that silently drops the connection (ytflow's
// plugin/reject.rs, "on_stream" dropping lower without replying).
// These are distinct from the graph's [graph.ReservedNull] sentinel,
// which the loader special-cases to mean "this access point is
// intentionally left unresolved" — Null and RejectHandler are ordinary
// plugin instances a profile wires in explicitly, e.g. to terminate a
// routing rule's "block" branch.
package nullreject

import (
	"context"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
)

// Null implements [flow.StreamOutboundFactory], [flow.DatagramOutboundFactory],
// and [flow.Resolver], always failing with [flow.ErrNoOutbound].
type Null struct{}

// DialStream implements [flow.StreamOutboundFactory].
func (Null) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	return nil, flow.ErrNoOutbound
}

// DialDatagram implements [flow.DatagramOutboundFactory].
func (Null) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	return nil, flow.ErrNoOutbound
}

// ResolveIPv4 implements [flow.Resolver].
func (Null) ResolveIPv4(ctx context.Context, name string) ([]flow.Host, error) {
	return nil, flow.ErrNoOutbound
}

// ResolveIPv6 implements [flow.Resolver].
func (Null) ResolveIPv6(ctx context.Context, name string) ([]flow.Host, error) {
	return nil, flow.ErrNoOutbound
}

// ResolveReverse implements [flow.Resolver].
func (Null) ResolveReverse(ctx context.Context, ip flow.Host) (string, error) {
	return "", flow.ErrNoOutbound
}

// RejectHandler implements [flow.StreamHandler] and [flow.DatagramHandler],
// closing the lower flow without ever reading or writing to it.
type RejectHandler struct{}

// HandleStream implements [flow.StreamHandler].
func (RejectHandler) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	return lower.Close()
}

// HandleDatagram implements [flow.DatagramHandler].
func (RejectHandler) HandleDatagram(ctx context.Context, fctx *flow.Context, lower flow.Datagram) error {
	return lower.Shutdown()
}
