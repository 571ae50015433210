// SPDX-License-Identifier: GPL-3.0-or-later

package httpproxy

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for an HTTP proxy inbound plugin.
type Param struct {
	Next     string `cbor:"next"`
	Outbound string `cbor:"outbound"`
}

// Factory implements [graph.Factory] for the HTTP proxy inbound handler.
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
		return nil, fmt.Errorf("httpproxy: %w", err)
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Requires: []graph.Requirement{
			{AP: graph.NewAP(p.Next, "tcp"), Type: graph.APStreamHandler},
			{AP: graph.NewAP(p.Outbound, "tcp"), Type: graph.APStreamOutboundFactory},
		},
		Provides: []graph.Provision{{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamHandler}},
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	selfAP := graph.NewAP(name, "tcp")
	_ = set.WeakStreamHandler(selfAP)

	nextAP := graph.NewAP(f.param.Next, "tcp")
	nextWeak := set.WeakStreamHandler(nextAP)
	resolve(ctx, nextAP)

	outAP := graph.NewAP(f.param.Outbound, "tcp")
	outWeak := set.WeakStreamOutbound(outAP)
	resolve(ctx, outAP)

	set.FillStreamHandler(selfAP, &weakHandler{next: nextWeak, outbound: outWeak})
	return nil
}

// weakHandler resolves both of [Handler]'s collaborators through weak
// handles at dispatch time rather than caching strong pointers, so
// teardown of either dependency surfaces as [flow.ErrNoOutbound].
type weakHandler struct {
	next     *graph.Weak[flow.StreamHandler]
	outbound *graph.Weak[flow.StreamOutboundFactory]
}

func (w *weakHandler) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	next, ok := w.next.Upgrade()
	if !ok {
		return flow.ErrNoOutbound
	}
	outbound, ok := w.outbound.Upgrade()
	if !ok {
		return flow.ErrNoOutbound
	}
	h := &Handler{Next: next, Outbound: outbound}
	return h.HandleStream(ctx, fctx, lower)
}
