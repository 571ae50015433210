// SPDX-License-Identifier: GPL-3.0-or-later

package ws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for a WebSocket transport plugin.
type Param struct {
	Lower   string            `cbor:"lower"`
	Path    string            `cbor:"path"`
	Host    string            `cbor:"host"`
	TLS     bool              `cbor:"tls"`
	Headers map[string]string `cbor:"headers"`
}

// Factory implements [graph.Factory] for the WebSocket transport leg.
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
		return nil, fmt.Errorf("ws: %w", err)
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

// weakOutbound resolves Lower through a weak handle at dial time so a
// torn-down lower plugin surfaces as [flow.ErrNoOutbound] rather than a
// stale pointer.
type weakOutbound struct {
	weak  *graph.Weak[flow.StreamOutboundFactory]
	param Param
}

func (o *weakOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	lower, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	headers := make(http.Header, len(o.param.Headers))
	for k, v := range o.param.Headers {
		headers.Set(k, v)
	}
	f := &OutboundFactory{
		Lower:   lower,
		Path:    o.param.Path,
		Host:    o.param.Host,
		TLS:     o.param.TLS,
		Headers: headers,
	}
	return f.DialStream(ctx, fctx, initialData)
}
