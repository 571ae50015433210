// SPDX-License-Identifier: GPL-3.0-or-later

// Package simpledispatch registers [dispatch.SimpleDispatcher] as a
// graph plugin: first-match-wins routing over source/destination CIDR
// and port-range rules, falling back to a named leg (spec §4.5, "Simple
// dispatcher").
package simpledispatch

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/dispatch"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// PortRangeParam is the wire shape of a [dispatch.PortRange].
type PortRangeParam struct {
	Lo uint16 `cbor:"lo"`
	Hi uint16 `cbor:"hi"`
}

// RuleParam is the wire shape of a [dispatch.SimpleRule]; CIDRs are
// decoded from their string form since netip.Prefix has no CBOR codec.
type RuleParam struct {
	SrcIPCIDRs    []string         `cbor:"src_ip_cidrs"`
	SrcPortRanges []PortRangeParam `cbor:"src_port_ranges"`
	DstIPCIDRs    []string         `cbor:"dst_ip_cidrs"`
	DstPortRanges []PortRangeParam `cbor:"dst_port_ranges"`
	Next          string           `cbor:"next"`
}

// Param is the descriptor parameter for a simple-dispatch plugin
// instance.
type Param struct {
	Rules    []RuleParam `cbor:"rules"`
	Fallback string      `cbor:"fallback"`
}

func parseCIDRs(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("simpledispatch: invalid CIDR %q: %w", s, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func parsePortRanges(raw []PortRangeParam) []dispatch.PortRange {
	out := make([]dispatch.PortRange, len(raw))
	for i, r := range raw {
		out[i] = dispatch.PortRange{Lo: r.Lo, Hi: r.Hi}
	}
	return out
}

func (p Param) build() (*dispatch.SimpleDispatcher, []string, error) {
	names := map[string]bool{p.Fallback: true}
	rules := make([]dispatch.SimpleRule, len(p.Rules))
	for i, r := range p.Rules {
		srcCIDRs, err := parseCIDRs(r.SrcIPCIDRs)
		if err != nil {
			return nil, nil, err
		}
		dstCIDRs, err := parseCIDRs(r.DstIPCIDRs)
		if err != nil {
			return nil, nil, err
		}
		rules[i] = dispatch.SimpleRule{
			SrcIPCIDRs:    srcCIDRs,
			SrcPortRanges: parsePortRanges(r.SrcPortRanges),
			DstIPCIDRs:    dstCIDRs,
			DstPortRanges: parsePortRanges(r.DstPortRanges),
			Next:          r.Next,
		}
		names[r.Next] = true
	}
	distinct := make([]string, 0, len(names))
	for n := range names {
		distinct = append(distinct, n)
	}
	return &dispatch.SimpleDispatcher{Rules: rules, Fallback: p.Fallback}, distinct, nil
}

// Factory implements [graph.Factory] for the simple-dispatch plugin.
type Factory struct {
	dispatcher *dispatch.SimpleDispatcher
	nextNames  []string
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
		return nil, fmt.Errorf("simpledispatch: %w", err)
	}
	dispatcher, names, err := p.build()
	if err != nil {
		return nil, err
	}
	requires := make([]graph.Requirement, 0, 2*len(names))
	for _, n := range names {
		requires = append(requires,
			graph.Requirement{AP: graph.NewAP(n, "tcp"), Type: graph.APStreamOutboundFactory},
			graph.Requirement{AP: graph.NewAP(n, "udp"), Type: graph.APDatagramOutboundFactory},
		)
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{dispatcher: dispatcher, nextNames: names},
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

	streamWeaks := make(map[string]*graph.Weak[flow.StreamOutboundFactory], len(f.nextNames))
	dgramWeaks := make(map[string]*graph.Weak[flow.DatagramOutboundFactory], len(f.nextNames))
	for _, n := range f.nextNames {
		tcpAP := graph.NewAP(n, "tcp")
		streamWeaks[n] = set.WeakStreamOutbound(tcpAP)
		resolve(ctx, tcpAP)

		udpAP := graph.NewAP(n, "udp")
		dgramWeaks[n] = set.WeakDatagramOutbound(udpAP)
		resolve(ctx, udpAP)
	}

	set.FillStreamOutbound(selfTCP, &streamOutbound{dispatcher: f.dispatcher, weaks: streamWeaks})
	set.FillDatagramOutbound(selfUDP, &datagramOutbound{dispatcher: f.dispatcher, weaks: dgramWeaks})
	return nil
}

func asPeer(local flow.LocalPeer) flow.Peer {
	return flow.Peer{Host: flow.NewHostIP(local.IP), Port: local.Port}
}

// streamOutbound dispatches each dial to whichever leg
// [dispatch.SimpleDispatcher.Dispatch] names for that flow's src/dst.
type streamOutbound struct {
	dispatcher *dispatch.SimpleDispatcher
	weaks      map[string]*graph.Weak[flow.StreamOutboundFactory]
}

func (o *streamOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	next := o.dispatcher.Dispatch(asPeer(fctx.LocalPeer), fctx.RemotePeer)
	weak, ok := o.weaks[next]
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	outbound, ok := weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	return outbound.DialStream(ctx, fctx, initialData)
}

// datagramOutbound mirrors streamOutbound for datagram dials.
type datagramOutbound struct {
	dispatcher *dispatch.SimpleDispatcher
	weaks      map[string]*graph.Weak[flow.DatagramOutboundFactory]
}

func (o *datagramOutbound) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	next := o.dispatcher.Dispatch(asPeer(fctx.LocalPeer), fctx.RemotePeer)
	weak, ok := o.weaks[next]
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	outbound, ok := weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	return outbound.DialDatagram(ctx, fctx)
}
