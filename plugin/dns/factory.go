// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/bassosimone/flowplane/resolve"
)

// Param is the descriptor parameter for the DNS server plugin.
//
// FakeIPV4Prefix/FakeIPV6Prefix, when set, put the server into fake-IP
// mode: answers hand out addresses from a [resolve.FakeIP] allocator
// owned by this plugin instance instead of Resolver's real addresses.
// The allocator isn't an access point of its own (spec.md §4.6 has no
// dedicated "fake-ip" plugin type); it's private state the DNS server
// plugin constructs and owns, exposed to the rest of the graph only
// through the [Factory.FakeIP] accessor for wiring into
// [resolve.MapBackStream]/[resolve.MapBackDatagram].
type Param struct {
	Resolver string `cbor:"resolver"`

	FakeIPV4Prefix string `cbor:"fake_ip_v4_prefix"`
	FakeIPV6Prefix string `cbor:"fake_ip_v6_prefix"`
	FakeIPTTLSecs  uint32 `cbor:"fake_ip_ttl_secs"`

	TTLSecs uint32 `cbor:"ttl_secs"`
}

// Factory implements [graph.Factory] for the DNS server plugin.
type Factory struct {
	param  Param
	fakeIP *resolve.FakeIP
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
		return nil, fmt.Errorf("dns: %w", err)
	}
	if p.Resolver == "" {
		return nil, fmt.Errorf("dns: resolver is required")
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Requires:   []graph.Requirement{{AP: graph.NewAP(p.Resolver, "dns"), Type: graph.APResolver}},
		Provides:   []graph.Provision{{AP: graph.NewAP(desc.Name, "udp"), Type: graph.APDatagramHandler}},
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolveAP graph.ResolveFunc) error {
	selfAP := graph.NewAP(name, "udp")
	_ = set.WeakDatagramHandler(selfAP)

	resolverAP := graph.NewAP(f.param.Resolver, "dns")
	resolverWeak := set.WeakResolver(resolverAP)
	resolveAP(ctx, resolverAP)

	if f.param.FakeIPV4Prefix != "" || f.param.FakeIPV6Prefix != "" {
		v4, err := parsePrefix(f.param.FakeIPV4Prefix, "198.18.0.0/16")
		if err != nil {
			return fmt.Errorf("dns: %w", err)
		}
		v6, err := parsePrefix(f.param.FakeIPV6Prefix, "fc00::/112")
		if err != nil {
			return fmt.Errorf("dns: %w", err)
		}
		ttl := time.Duration(f.param.FakeIPTTLSecs) * time.Second
		if ttl <= 0 {
			ttl = defaultTTL
		}
		f.fakeIP = resolve.NewFakeIP(v4, v6, ttl)
	}

	ttl := time.Duration(f.param.TTLSecs) * time.Second
	set.FillDatagramHandler(selfAP, &weakHandler{resolver: resolverWeak, fakeIP: f.fakeIP, ttl: ttl})
	return nil
}

// FakeIP returns the fake-IP allocator this plugin instance owns, or
// nil if it isn't running in fake-IP mode. Valid after [Factory.Load].
// A profile wires this into [resolve.MapBackStream]/[resolve.MapBackDatagram]
// as the [resolve.Lookup] for the outbound legs whose destinations this
// server's answers might have faked.
func (f *Factory) FakeIP() *resolve.FakeIP {
	return f.fakeIP
}

func parsePrefix(s, fallback string) (netip.Prefix, error) {
	if s == "" {
		s = fallback
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("parsing prefix %q: %w", s, err)
	}
	return p, nil
}

// weakHandler resolves Resolver through a weak handle at handle time so
// a torn-down dependency surfaces as [flow.ErrNoOutbound] rather than a
// stale pointer.
type weakHandler struct {
	resolver *graph.Weak[flow.Resolver]
	fakeIP   *resolve.FakeIP
	ttl      time.Duration
}

func (w *weakHandler) HandleDatagram(ctx context.Context, fctx *flow.Context, lower flow.Datagram) error {
	resolver, ok := w.resolver.Upgrade()
	if !ok {
		return flow.ErrNoOutbound
	}
	h := &Handler{Resolver: resolver, TTL: w.ttl}
	if w.fakeIP != nil {
		h.FakeIP = w.fakeIP
	}
	return h.HandleDatagram(ctx, fctx, lower)
}
