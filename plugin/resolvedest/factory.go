// SPDX-License-Identifier: GPL-3.0-or-later

package resolvedest

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for the resolvedest plugin. At
// least one of TCPNext/UDPNext must be set.
type Param struct {
	Resolver string `cbor:"resolver"`
	TCPNext  string `cbor:"tcp_next"`
	UDPNext  string `cbor:"udp_next"`
}

// Factory implements [graph.Factory] for the resolvedest plugin.
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
		return nil, fmt.Errorf("resolvedest: %w", err)
	}
	if p.TCPNext == "" && p.UDPNext == "" {
		return nil, fmt.Errorf("resolvedest: at least one of tcp_next or udp_next must be set")
	}
	requires := []graph.Requirement{{AP: graph.NewAP(p.Resolver, "dns"), Type: graph.APResolver}}
	var provides []graph.Provision
	if p.TCPNext != "" {
		requires = append(requires, graph.Requirement{AP: graph.NewAP(p.TCPNext, "tcp"), Type: graph.APStreamHandler})
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamHandler})
	}
	if p.UDPNext != "" {
		requires = append(requires, graph.Requirement{AP: graph.NewAP(p.UDPNext, "udp"), Type: graph.APDatagramHandler})
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "udp"), Type: graph.APDatagramHandler})
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Requires:   requires,
		Provides:   provides,
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	resolverAP := graph.NewAP(f.param.Resolver, "dns")
	resolverWeak := set.WeakResolver(resolverAP)
	resolve(ctx, resolverAP)

	if f.param.TCPNext != "" {
		selfAP := graph.NewAP(name, "tcp")
		_ = set.WeakStreamHandler(selfAP)

		nextAP := graph.NewAP(f.param.TCPNext, "tcp")
		nextWeak := set.WeakStreamHandler(nextAP)
		resolve(ctx, nextAP)

		set.FillStreamHandler(selfAP, &weakStreamHandler{resolver: resolverWeak, next: nextWeak})
	}
	if f.param.UDPNext != "" {
		selfAP := graph.NewAP(name, "udp")
		_ = set.WeakDatagramHandler(selfAP)

		nextAP := graph.NewAP(f.param.UDPNext, "udp")
		nextWeak := set.WeakDatagramHandler(nextAP)
		resolve(ctx, nextAP)

		set.FillDatagramHandler(selfAP, &weakDatagramHandler{resolver: resolverWeak, next: nextWeak})
	}
	return nil
}

type weakStreamHandler struct {
	resolver *graph.Weak[flow.Resolver]
	next     *graph.Weak[flow.StreamHandler]
}

func (w *weakStreamHandler) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	resolver, ok := w.resolver.Upgrade()
	if !ok {
		return flow.ErrNoOutbound
	}
	next, ok := w.next.Upgrade()
	if !ok {
		return flow.ErrNoOutbound
	}
	h := &StreamHandler{Resolver: resolver, Next: next}
	return h.HandleStream(ctx, fctx, lower)
}

type weakDatagramHandler struct {
	resolver *graph.Weak[flow.Resolver]
	next     *graph.Weak[flow.DatagramHandler]
}

func (w *weakDatagramHandler) HandleDatagram(ctx context.Context, fctx *flow.Context, lower flow.Datagram) error {
	resolver, ok := w.resolver.Upgrade()
	if !ok {
		return flow.ErrNoOutbound
	}
	next, ok := w.next.Upgrade()
	if !ok {
		return flow.ErrNoOutbound
	}
	h := &DatagramHandler{Resolver: resolver, Next: next}
	return h.HandleDatagram(ctx, fctx, lower)
}
