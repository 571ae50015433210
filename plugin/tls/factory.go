// SPDX-License-Identifier: GPL-3.0-or-later

package tls

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for a TLS transport plugin.
type Param struct {
	Lower              string   `cbor:"lower"`
	ServerName         string   `cbor:"server_name"`
	ALPN               []string `cbor:"alpn"`
	InsecureSkipVerify bool     `cbor:"insecure_skip_verify"`
}

// Factory implements [graph.Factory] for the TLS transport leg.
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
		return nil, fmt.Errorf("tls: %w", err)
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

	set.FillStreamOutbound(selfAP, &weakOutbound{weak: weak, param: f.param})
	return nil
}

type weakOutbound struct {
	weak  *graph.Weak[flow.StreamOutboundFactory]
	param Param
}

func (o *weakOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	lower, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	f := &OutboundFactory{
		Lower:              lower,
		ServerName:         o.param.ServerName,
		NextProtos:         o.param.ALPN,
		InsecureSkipVerify: o.param.InsecureSkipVerify,
	}
	return f.DialStream(ctx, fctx, initialData)
}
