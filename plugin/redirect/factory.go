// SPDX-License-Identifier: GPL-3.0-or-later

package redirect

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for the redirect plugin. At least
// one of TCPNext/UDPNext must be set (ytflow's redirect.rs rejects a
// config with neither).
type Param struct {
	DestHost string `cbor:"dest_host"`
	DestPort uint16 `cbor:"dest_port"`

	TCPNext string `cbor:"tcp_next"`
	UDPNext string `cbor:"udp_next"`
}

func (p Param) dest() flow.Peer {
	var host flow.Host
	if ip, err := netip.ParseAddr(p.DestHost); err == nil {
		host = flow.NewHostIP(ip)
	} else {
		host = flow.NewHostDomain(p.DestHost)
	}
	return flow.Peer{Host: host, Port: p.DestPort}
}

// Factory implements [graph.Factory] for the redirect plugin, providing
// up to two access points off one descriptor: "<name>.tcp" when
// TCPNext is set, "<name>.udp" when UDPNext is set.
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
		return nil, fmt.Errorf("redirect: %w", err)
	}
	if p.TCPNext == "" && p.UDPNext == "" {
		return nil, fmt.Errorf("redirect: at least one of tcp_next or udp_next must be set")
	}
	var requires []graph.Requirement
	var provides []graph.Provision
	if p.TCPNext != "" {
		requires = append(requires, graph.Requirement{AP: graph.NewAP(p.TCPNext, "tcp"), Type: graph.APStreamOutboundFactory})
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamOutboundFactory})
	}
	if p.UDPNext != "" {
		requires = append(requires, graph.Requirement{AP: graph.NewAP(p.UDPNext, "udp"), Type: graph.APDatagramOutboundFactory})
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "udp"), Type: graph.APDatagramOutboundFactory})
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
	dest := f.param.dest()
	if f.param.TCPNext != "" {
		selfAP := graph.NewAP(name, "tcp")
		_ = set.WeakStreamOutbound(selfAP)

		nextAP := graph.NewAP(f.param.TCPNext, "tcp")
		weak := set.WeakStreamOutbound(nextAP)
		resolve(ctx, nextAP)

		set.FillStreamOutbound(selfAP, &weakStreamOutbound{weak: weak, dest: dest})
	}
	if f.param.UDPNext != "" {
		selfAP := graph.NewAP(name, "udp")
		_ = set.WeakDatagramOutbound(selfAP)

		nextAP := graph.NewAP(f.param.UDPNext, "udp")
		weak := set.WeakDatagramOutbound(nextAP)
		resolve(ctx, nextAP)

		set.FillDatagramOutbound(selfAP, &weakDatagramOutbound{weak: weak, dest: dest})
	}
	return nil
}

// weakStreamOutbound resolves Next through a weak handle at dial time
// so a torn-down dependency surfaces as [flow.ErrNoOutbound].
type weakStreamOutbound struct {
	weak *graph.Weak[flow.StreamOutboundFactory]
	dest flow.Peer
}

func (o *weakStreamOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	next, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	f := &StreamOutboundFactory{Dest: o.dest, Next: next}
	return f.DialStream(ctx, fctx, initialData)
}

// weakDatagramOutbound resolves Next through a weak handle at bind time
// so a torn-down dependency surfaces as [flow.ErrNoOutbound].
type weakDatagramOutbound struct {
	weak *graph.Weak[flow.DatagramOutboundFactory]
	dest flow.Peer
}

func (o *weakDatagramOutbound) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	next, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	f := &DatagramOutboundFactory{Dest: o.dest, Next: next}
	return f.DialDatagram(ctx, fctx)
}
