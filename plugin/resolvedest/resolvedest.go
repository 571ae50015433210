// SPDX-License-Identifier: GPL-3.0-or-later

// Package resolvedest pre-resolves a domain destination into an IP
// address before handing a flow to the next leg, so that a next hop
// requiring a literal IP (a raw socket outbound, a GeoIP-keyed route)
// can be composed ahead of a plugin that only knows the peer by name.
// Grounded on ytflow's resolve_dest plugin
// (src/plugin/resolve_dest/forward.rs): resolve only when the
// destination is a domain name, and fall back to the original domain
// destination if resolution fails rather than failing the flow.
//
// The resolve step itself is one [nop.Func] stage
// (resolveFunc.Call(ctx, *flow.Context) (*flow.Context, error)), the
// same composable-pipeline-stage shape the transport legs build their
// dial pipelines from.
package resolvedest

import (
	"context"

	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/nop"
)

// resolveFunc implements nop.Func[*flow.Context, *flow.Context]: given a
// context whose remote peer is a domain name, it resolves the domain
// forward (preferring AAAA when the local peer is IPv6, A otherwise)
// and returns a copy of the context with the remote peer rewritten to
// the first returned address. A context already addressed by IP, or
// one resolution fails for, passes through unchanged.
type resolveFunc struct {
	resolver flow.Resolver
}

var _ nop.Func[*flow.Context, *flow.Context] = (*resolveFunc)(nil)

func (f *resolveFunc) Call(ctx context.Context, fctx *flow.Context) (*flow.Context, error) {
	if fctx.RemotePeer.Host.Kind != flow.HostDomainName {
		return fctx, nil
	}
	domain := fctx.RemotePeer.Host.Domain

	var hosts []flow.Host
	var err error
	if fctx.LocalPeer.IP.Is6() && !fctx.LocalPeer.IP.Is4In6() {
		hosts, err = f.resolver.ResolveIPv6(ctx, domain)
	} else {
		hosts, err = f.resolver.ResolveIPv4(ctx, domain)
	}
	if err != nil || len(hosts) == 0 {
		return fctx, nil
	}

	resolved := *fctx
	resolved.RemotePeer = flow.Peer{Host: hosts[0], Port: fctx.RemotePeer.Port}
	return &resolved, nil
}

// StreamHandler resolves fctx's domain destination to an IP, then
// forwards to Next with the rewritten context.
type StreamHandler struct {
	Resolver flow.Resolver
	Next     flow.StreamHandler
}

// HandleStream implements [flow.StreamHandler].
func (h *StreamHandler) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	resolved, err := (&resolveFunc{resolver: h.Resolver}).Call(ctx, fctx)
	if err != nil {
		return err
	}
	return h.Next.HandleStream(ctx, resolved, lower)
}

// DatagramHandler resolves fctx's domain destination to an IP once per
// session, then forwards to Next with the rewritten context. Unlike the
// Rust original's per-packet reverse/forward resolution loop, a bound
// session here resolves its destination once at bind time: flowplane's
// [flow.Datagram] is a session abstraction, not a per-packet
// destination override.
type DatagramHandler struct {
	Resolver flow.Resolver
	Next     flow.DatagramHandler
}

// HandleDatagram implements [flow.DatagramHandler].
func (h *DatagramHandler) HandleDatagram(ctx context.Context, fctx *flow.Context, lower flow.Datagram) error {
	resolved, err := (&resolveFunc{resolver: h.Resolver}).Call(ctx, fctx)
	if err != nil {
		return err
	}
	return h.Next.HandleDatagram(ctx, resolved, lower)
}
