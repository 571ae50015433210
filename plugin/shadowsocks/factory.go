// SPDX-License-Identifier: GPL-3.0-or-later

// Package shadowsocks registers the Shadowsocks codec engine
// (codec/shadowsocks) as a graph plugin: it requires a lower stream
// outbound (the transport it tunnels over) and provides a stream
// outbound that performs the Shadowsocks handshake before handing off
// (spec §4.2, §4.3).
package shadowsocks

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/codec/shadowsocks"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for a Shadowsocks outbound plugin.
type Param struct {
	Lower    string `cbor:"lower"`
	Cipher   string `cbor:"cipher"`
	Password string `cbor:"password"`
}

// Factory implements [graph.Factory] for the Shadowsocks outbound.
// Parse decodes Param into a fresh Factory value that Load then reads
// back from, since the loader invokes Load on the same Factory value
// Parse returned as part of its [graph.ParsedPlugin] (see
// graph.Loader.parsePlugin/LoadAll).
type Factory struct {
	param Param
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
		return nil, fmt.Errorf("shadowsocks: %w", err)
	}
	if _, err := shadowsocks.Lookup(p.Cipher); err != nil {
		return nil, fmt.Errorf("shadowsocks: %w", err)
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Requires:   []graph.Requirement{{AP: graph.NewAP(p.Lower, "tcp"), Type: graph.APStreamOutboundFactory}},
		Provides:   []graph.Provision{{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamOutboundFactory}},
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	selfAP := graph.NewAP(name, "tcp")
	_ = set.WeakStreamOutbound(selfAP)

	lowerAP := graph.NewAP(f.param.Lower, "tcp")
	weak := set.WeakStreamOutbound(lowerAP)
	resolve(ctx, lowerAP)

	out := &shadowsocksOutbound{weak: weak, cipher: f.param.Cipher, password: f.param.Password}
	set.FillStreamOutbound(selfAP, out)
	return nil
}

// shadowsocksOutbound adapts [codec/shadowsocks.OutboundFactory] to
// resolve its Lower dependency through a [graph.Weak] handle instead of
// a fixed reference, so a torn-down lower plugin surfaces as
// [flow.ErrNoOutbound] rather than a stale pointer.
type shadowsocksOutbound struct {
	weak     *graph.Weak[flow.StreamOutboundFactory]
	cipher   string
	password string
}

func (o *shadowsocksOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	lower, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	factory, err := shadowsocks.NewOutboundFactory(lower, o.cipher, o.password)
	if err != nil {
		return nil, err
	}
	return factory.DialStream(ctx, fctx, initialData)
}
