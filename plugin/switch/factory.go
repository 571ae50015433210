// SPDX-License-Identifier: GPL-3.0-or-later

// Package switchplugin registers [dispatch.Switch] as a graph plugin: an
// atomically-swapped one-of-N outbound selection, controllable live
// through a "select" control request (spec §4.5, "Switch"). The package
// is named switchplugin, not switch, since switch is a Go keyword.
package switchplugin

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/dispatch"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for a switch plugin instance.
type Param struct {
	Key      string   `cbor:"key"`
	Members  []string `cbor:"members"`
	Weighted bool     `cbor:"weighted"`
}

// Factory implements [graph.Factory] for the switch plugin. It provides
// a [flow.StreamOutboundFactory]/[flow.DatagramOutboundFactory] pair
// that delegate to whichever member is currently selected, plus a
// control.Responder (see [Factory.Responder]) that changes the
// selection live.
type Factory struct {
	param Param
	sw    *dispatch.Switch
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
		return nil, fmt.Errorf("switch: %w", err)
	}
	if len(p.Members) == 0 {
		return nil, fmt.Errorf("switch: at least one member is required")
	}
	var requires []graph.Requirement
	for _, m := range p.Members {
		requires = append(requires,
			graph.Requirement{AP: graph.NewAP(m, "tcp"), Type: graph.APStreamOutboundFactory},
			graph.Requirement{AP: graph.NewAP(m, "udp"), Type: graph.APDatagramOutboundFactory},
		)
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Requires:   requires,
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

	members := make([]flow.StreamOutboundFactory, len(f.param.Members))
	dgMembers := make([]flow.DatagramOutboundFactory, len(f.param.Members))
	for i, m := range f.param.Members {
		tcpAP := graph.NewAP(m, "tcp")
		streamWeak := set.WeakStreamOutbound(tcpAP)
		resolve(ctx, tcpAP)
		members[i] = &weakStreamOutbound{weak: streamWeak}

		udpAP := graph.NewAP(m, "udp")
		dgramWeak := set.WeakDatagramOutbound(udpAP)
		resolve(ctx, udpAP)
		dgMembers[i] = &weakDatagramOutbound{weak: dgramWeak}
	}

	sw := &dispatch.Switch{Key: f.param.Key, Members: members, DGMembers: dgMembers}
	if f.param.Weighted {
		sw.Rendezvous = dispatch.NewRendezvousTable(len(members))
	}
	// sw.Store is left nil: a store.BoltPluginCache would satisfy
	// dispatch.IndexStore, but it lives behind the bbolt_cache build tag
	// as an optional convenience (store/cache.go), so it is not wired
	// here by default. Restore is still safe to call; it no-ops without
	// a Store.
	if err := sw.Restore(); err != nil {
		return fmt.Errorf("switch: %w", err)
	}
	f.sw = sw

	set.FillStreamOutbound(selfTCP, sw)
	set.FillDatagramOutbound(selfUDP, sw)
	return nil
}

// Responder returns the [control.Responder] for this plugin instance.
// Only valid after [Factory.Load] has run.
func (f *Factory) Responder() *Responder {
	return &Responder{sw: f.sw}
}

// Responder implements control.Responder for the switch plugin:
// "select" decodes an index from CBOR params and installs it.
type Responder struct {
	sw *dispatch.Switch
}

// CollectInfo implements control.Responder, reporting the current
// index, skipping the payload when it hasn't changed since lastHash.
func (r *Responder) CollectInfo(lastHash []byte) (info []byte, hash []byte) {
	idx := r.sw.Current()
	hash = make([]byte, 4)
	binary.BigEndian.PutUint32(hash, uint32(idx))
	if len(lastHash) == 4 && binary.BigEndian.Uint32(lastHash) == uint32(idx) {
		return nil, hash
	}
	info, err := config.EncodeParam(idx)
	if err != nil {
		return nil, hash
	}
	return info, hash
}

// OnRequest implements control.Responder.
func (r *Responder) OnRequest(op string, params []byte) ([]byte, error) {
	switch op {
	case "select":
		var idx int
		if err := config.DecodeParam(params, &idx); err != nil {
			return nil, fmt.Errorf("switch: %w", err)
		}
		if err := r.sw.Select(idx); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("switch: no such function %q", op)
	}
}

// weakStreamOutbound resolves a member through a weak handle at dial
// time so a torn-down member surfaces as [flow.ErrNoOutbound].
type weakStreamOutbound struct {
	weak *graph.Weak[flow.StreamOutboundFactory]
}

func (o *weakStreamOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	next, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	return next.DialStream(ctx, fctx, initialData)
}

// weakDatagramOutbound mirrors weakStreamOutbound for datagram dials.
type weakDatagramOutbound struct {
	weak *graph.Weak[flow.DatagramOutboundFactory]
}

func (o *weakDatagramOutbound) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	next, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	return next.DialDatagram(ctx, fctx)
}
