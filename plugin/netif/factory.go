// SPDX-License-Identifier: GPL-3.0-or-later

package netif

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/bassosimone/nop"
)

// Param is the descriptor parameter for the netif plugin: an initial
// interface selection. Runtime changes go through the "select" control
// request, not through reloading the plugin.
type Param struct {
	Interface  string `cbor:"interface"`
	PreferIPv6 bool   `cbor:"prefer_ipv6"`
}

// Factory implements [graph.Factory] for a netif-bound raw socket
// outbound. It provides a [flow.StreamOutboundFactory] that dials
// through the currently selected interface, plus a control.Responder
// (see [Factory.Responder]) that switches the selection live.
type Factory struct {
	param    Param
	selector *Selector
}

// NewFactory returns an empty [*Factory] suitable for registration with
// a [graph.Registry].
func NewFactory() *Factory {
	return &Factory{}
}

// Parse implements [graph.Factory].
func (*Factory) Parse(desc graph.Descriptor) (*graph.ParsedPlugin, error) {
	var p Param
	if err := config.DecodeParam(desc.Param, &p); err != nil {
		return nil, fmt.Errorf("netif: %w", err)
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Provides:   []graph.Provision{{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamOutboundFactory}},
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	f.selector = NewSelector(Selection{Interface: f.param.Interface, PreferIPv6: f.param.PreferIPv6})
	selfAP := graph.NewAP(name, "tcp")
	set.FillStreamOutbound(selfAP, &streamOutboundFactory{selector: f.selector})
	return nil
}

// Responder returns the [control.Responder] for this plugin instance.
// Only valid after [Factory.Load] has run; callers that register
// control responders for every loaded plugin should type-assert for an
// interface{ Responder() *Responder } on each loaded [graph.Factory].
func (f *Factory) Responder() *Responder {
	return NewResponder(f.selector)
}

// streamOutboundFactory dials a raw TCP connection through selector's
// currently selected interface.
type streamOutboundFactory struct {
	selector *Selector
}

func (o *streamOutboundFactory) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	if fctx.RemotePeer.Host.Kind != flow.HostIP {
		return nil, fmt.Errorf("netif: remote peer must be resolved to an IP")
	}
	addr := netip.AddrPortFrom(fctx.RemotePeer.Host.IP, fctx.RemotePeer.Port)
	conn, err := o.selector.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("netif: dialing: %w", err)
	}
	if initialData != nil && initialData.Len() > 0 {
		if _, err := conn.Write(initialData.Bytes()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("netif: writing initial data: %w", err)
		}
	}
	return flow.FromReadWriteCloser(conn), nil
}

var _ nop.Dialer = (*Selector)(nil)
