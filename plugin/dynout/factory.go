// SPDX-License-Identifier: GPL-3.0-or-later

// Package dynout registers [dispatch.DynOutbound] as a graph plugin: one
// persisted proxy record selected by index, parsed lazily against a
// shared upstream leg (spec §4.5, "Dyn-outbound").
package dynout

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/dispatch"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for a dyn-outbound plugin instance.
type Param struct {
	Upstream string `cbor:"upstream"`
}

// Factory implements [graph.Factory] for the dyn-outbound plugin.
type Factory struct {
	param Param
	dyn   *dispatch.DynOutbound
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
		return nil, fmt.Errorf("dynout: %w", err)
	}
	if p.Upstream == "" {
		return nil, fmt.Errorf("dynout: upstream must be set")
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Requires:   []graph.Requirement{{AP: graph.NewAP(p.Upstream, "tcp"), Type: graph.APStreamOutboundFactory}},
		Provides: []graph.Provision{
			{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamOutboundFactory},
			{AP: graph.NewAP(desc.Name, "udp"), Type: graph.APDatagramOutboundFactory},
		},
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	selfTCP := graph.NewAP(name, "tcp")
	selfUDP := graph.NewAP(name, "udp")
	_ = set.WeakStreamOutbound(selfTCP)
	_ = set.WeakDatagramOutbound(selfUDP)

	upstreamAP := graph.NewAP(f.param.Upstream, "tcp")
	weak := set.WeakStreamOutbound(upstreamAP)
	resolve(ctx, upstreamAP)

	dyn := &dispatch.DynOutbound{
		Records:  unconfiguredRecordStore{},
		Upstream: &weakUpstream{weak: weak},
	}
	f.dyn = dyn

	set.FillStreamOutbound(selfTCP, dyn)
	set.FillDatagramOutbound(selfUDP, dyn)
	return nil
}

// Responder returns the control.Responder for this plugin instance, whose
// only operation ("select") calls [dispatch.DynOutbound.Select]. Only
// valid after [Factory.Load] has run.
func (f *Factory) Responder() *Responder {
	return &Responder{dyn: f.dyn}
}

// Responder implements control.Responder for the dyn-outbound plugin.
type Responder struct {
	dyn *dispatch.DynOutbound
}

// CollectInfo implements control.Responder. Dyn-outbound has no
// summarizable state beyond the currently-selected index, which the
// record store (not this plugin) owns, so it reports nothing.
func (*Responder) CollectInfo(lastHash []byte) (info []byte, hash []byte) {
	return nil, nil
}

// OnRequest implements control.Responder. Select runs with a background
// context since the control.Responder interface carries none of its
// own; the underlying dial paths apply their own per-flow timeouts.
func (r *Responder) OnRequest(op string, params []byte) ([]byte, error) {
	switch op {
	case "select":
		var idx int
		if err := config.DecodeParam(params, &idx); err != nil {
			return nil, fmt.Errorf("dynout: %w", err)
		}
		if err := r.dyn.Select(context.Background(), idx); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("dynout: no such function %q", op)
	}
}

// unconfiguredRecordStore is the default [dispatch.ProxyRecordStore]:
// the persisted-profile/proxy-record database is an external
// collaborator (spec.md Non-goals: SQLite-backed profile storage) with
// no in-tree implementation, so Select fails clearly until a real store
// is wired in place of this one.
type unconfiguredRecordStore struct{}

func (unconfiguredRecordStore) Load(ctx context.Context, index int, sharedUpstream flow.StreamOutboundFactory) (flow.StreamOutboundFactory, flow.DatagramOutboundFactory, error) {
	return nil, nil, fmt.Errorf("dynout: no proxy record store configured")
}

// weakUpstream resolves Upstream through a weak handle at dial time so a
// torn-down dependency surfaces as [flow.ErrNoOutbound] instead of a nil
// dereference inside a record's parsed plugin-set.
type weakUpstream struct {
	weak *graph.Weak[flow.StreamOutboundFactory]
}

func (o *weakUpstream) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	next, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	return next.DialStream(ctx, fctx, initialData)
}
