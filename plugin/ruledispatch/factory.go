// SPDX-License-Identifier: GPL-3.0-or-later

// Package ruledispatch registers [dispatch.RuleDispatcher] as a graph
// plugin: GeoIP and domain-set rules select a declared action, each
// action naming the tcp/udp legs and an optional resolver to pre-resolve
// a domain destination before dialing (spec §4.5, "Rule dispatcher").
package ruledispatch

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

// DomainRuleParam is the wire shape of a [dispatch.DomainRule]; Kind
// is one of "exact", "suffix", "keyword", "regex".
type DomainRuleParam struct {
	Kind    string `cbor:"kind"`
	Pattern string `cbor:"pattern"`
}

func (p DomainRuleParam) build() (dispatch.DomainRule, error) {
	var kind dispatch.DomainMatchKind
	switch p.Kind {
	case "exact":
		kind = dispatch.DomainExact
	case "suffix":
		kind = dispatch.DomainSuffix
	case "keyword":
		kind = dispatch.DomainKeyword
	case "regex":
		kind = dispatch.DomainRegex
	default:
		return dispatch.DomainRule{}, fmt.Errorf("ruledispatch: unknown domain rule kind %q", p.Kind)
	}
	return dispatch.DomainRule{Kind: kind, Pattern: p.Pattern}, nil
}

// RuleParam is the wire shape of a [dispatch.Rule].
type RuleParam struct {
	Domains   []DomainRuleParam `cbor:"domains"`
	Countries []string          `cbor:"countries"`
	Action    uint8             `cbor:"action"`
}

// ActionParam is the wire shape of a [dispatch.Action]; Resolver, when
// set, names an AP providing [flow.Resolver] used to pre-resolve a
// domain destination before dialing TCPNext/UDPNext (same idiom as
// plugin/resolvedest).
type ActionParam struct {
	TCPNext  string `cbor:"tcp_next"`
	UDPNext  string `cbor:"udp_next"`
	Resolver string `cbor:"resolver"`
}

// Param is the descriptor parameter for a rule-dispatch plugin
// instance. GeoResolver, when set, names an AP providing [flow.Resolver]
// used by [dispatch.RuleDispatcher] itself to resolve a domain
// destination to IPs for country-code rematching; the GeoIP database
// lookup a [dispatch.GeoMatcher] performs is an external collaborator
// this plugin does not instantiate (spec.md Non-goals).
type Param struct {
	Actions     []ActionParam `cbor:"actions"`
	Rules       []RuleParam   `cbor:"rules"`
	GeoResolver string        `cbor:"geo_resolver"`
}

func (p Param) build() (*dispatch.RuleDispatcher, []dispatch.Action, error) {
	actions := make([]dispatch.Action, len(p.Actions))
	for i, a := range p.Actions {
		actions[i] = dispatch.Action{TCPNext: a.TCPNext, UDPNext: a.UDPNext, Resolver: a.Resolver}
	}
	rules := make([]dispatch.Rule, len(p.Rules))
	for i, r := range p.Rules {
		domains := make([]dispatch.DomainRule, len(r.Domains))
		for j, d := range r.Domains {
			built, err := d.build()
			if err != nil {
				return nil, nil, err
			}
			domains[j] = built
		}
		rules[i] = dispatch.Rule{Domains: domains, Countries: r.Countries, Action: r.Action}
	}
	d := &dispatch.RuleDispatcher{Actions: actions, Rules: rules}
	if err := d.Compile(); err != nil {
		return nil, nil, err
	}
	return d, actions, nil
}

// Factory implements [graph.Factory] for the rule-dispatch plugin.
type Factory struct {
	dispatcher *dispatch.RuleDispatcher
	actions    []dispatch.Action
	geoResolve string
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
		return nil, fmt.Errorf("ruledispatch: %w", err)
	}
	dispatcher, actions, err := p.build()
	if err != nil {
		return nil, err
	}

	tcpNames := map[string]bool{}
	udpNames := map[string]bool{}
	resolverNames := map[string]bool{}
	for _, a := range actions {
		if a.TCPNext != "" {
			tcpNames[a.TCPNext] = true
		}
		if a.UDPNext != "" {
			udpNames[a.UDPNext] = true
		}
		if a.Resolver != "" {
			resolverNames[a.Resolver] = true
		}
	}
	if p.GeoResolver != "" {
		resolverNames[p.GeoResolver] = true
	}

	var requires []graph.Requirement
	for n := range tcpNames {
		requires = append(requires, graph.Requirement{AP: graph.NewAP(n, "tcp"), Type: graph.APStreamOutboundFactory})
	}
	for n := range udpNames {
		requires = append(requires, graph.Requirement{AP: graph.NewAP(n, "udp"), Type: graph.APDatagramOutboundFactory})
	}
	for n := range resolverNames {
		requires = append(requires, graph.Requirement{AP: graph.NewAP(n, "dns"), Type: graph.APResolver})
	}

	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{dispatcher: dispatcher, actions: actions, geoResolve: p.GeoResolver},
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

	streamWeaks := map[string]*graph.Weak[flow.StreamOutboundFactory]{}
	dgramWeaks := map[string]*graph.Weak[flow.DatagramOutboundFactory]{}
	resolverWeaks := map[string]*graph.Weak[flow.Resolver]{}
	for _, a := range f.actions {
		if a.TCPNext != "" {
			if _, ok := streamWeaks[a.TCPNext]; !ok {
				ap := graph.NewAP(a.TCPNext, "tcp")
				streamWeaks[a.TCPNext] = set.WeakStreamOutbound(ap)
				resolve(ctx, ap)
			}
		}
		if a.UDPNext != "" {
			if _, ok := dgramWeaks[a.UDPNext]; !ok {
				ap := graph.NewAP(a.UDPNext, "udp")
				dgramWeaks[a.UDPNext] = set.WeakDatagramOutbound(ap)
				resolve(ctx, ap)
			}
		}
		if a.Resolver != "" {
			if _, ok := resolverWeaks[a.Resolver]; !ok {
				ap := graph.NewAP(a.Resolver, "dns")
				resolverWeaks[a.Resolver] = set.WeakResolver(ap)
				resolve(ctx, ap)
			}
		}
	}
	if f.geoResolve != "" {
		if _, ok := resolverWeaks[f.geoResolve]; !ok {
			ap := graph.NewAP(f.geoResolve, "dns")
			resolverWeaks[f.geoResolve] = set.WeakResolver(ap)
			resolve(ctx, ap)
		}
		if weak := resolverWeaks[f.geoResolve]; weak != nil {
			f.dispatcher.Resolve = func(ctx context.Context, domain string) ([]netip.Addr, error) {
				resolver, ok := weak.Upgrade()
				if !ok {
					return nil, flow.ErrNoOutbound
				}
				hosts, err := resolver.ResolveIPv4(ctx, domain)
				if err != nil {
					return nil, err
				}
				addrs := make([]netip.Addr, len(hosts))
				for i, h := range hosts {
					addrs[i] = h.IP
				}
				return addrs, nil
			}
		}
	}

	set.FillStreamOutbound(selfTCP, &streamOutbound{
		dispatcher: f.dispatcher,
		streamNext: streamWeaks,
		resolvers:  resolverWeaks,
		actions:    f.actions,
	})
	set.FillDatagramOutbound(selfUDP, &datagramOutbound{
		dispatcher: f.dispatcher,
		dgramNext:  dgramWeaks,
		resolvers:  resolverWeaks,
		actions:    f.actions,
	})
	return nil
}

// resolveIfConfigured pre-resolves fctx's domain destination through
// resolverName's weak [flow.Resolver], mirroring plugin/resolvedest's
// resolve-then-forward idiom; a missing resolver or a domain-less
// destination passes fctx through unchanged.
func resolveIfConfigured(ctx context.Context, fctx *flow.Context, resolverName string, resolvers map[string]*graph.Weak[flow.Resolver]) *flow.Context {
	if resolverName == "" || fctx.RemotePeer.Host.Kind != flow.HostDomainName {
		return fctx
	}
	weak, ok := resolvers[resolverName]
	if !ok {
		return fctx
	}
	resolver, ok := weak.Upgrade()
	if !ok {
		return fctx
	}
	domain := fctx.RemotePeer.Host.Domain
	var hosts []flow.Host
	var err error
	if fctx.LocalPeer.IP.Is6() && !fctx.LocalPeer.IP.Is4In6() {
		hosts, err = resolver.ResolveIPv6(ctx, domain)
	} else {
		hosts, err = resolver.ResolveIPv4(ctx, domain)
	}
	if err != nil || len(hosts) == 0 {
		return fctx
	}
	resolved := *fctx
	resolved.RemotePeer = flow.Peer{Host: hosts[0], Port: fctx.RemotePeer.Port}
	return &resolved
}

// streamOutbound matches a flow against the configured rules, resolving
// the matched action's domain destination if it names a resolver, then
// delegates to the action's tcp leg.
type streamOutbound struct {
	dispatcher *dispatch.RuleDispatcher
	streamNext map[string]*graph.Weak[flow.StreamOutboundFactory]
	resolvers  map[string]*graph.Weak[flow.Resolver]
	actions    []dispatch.Action
}

func (o *streamOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	_, action, err := o.dispatcher.Match(ctx, fctx.RemotePeer)
	if err != nil {
		return nil, err
	}
	if action.TCPNext == "" {
		return nil, flow.ErrNoOutbound
	}
	weak, ok := o.streamNext[action.TCPNext]
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	outbound, ok := weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	resolved := resolveIfConfigured(ctx, fctx, action.Resolver, o.resolvers)
	return outbound.DialStream(ctx, resolved, initialData)
}

// datagramOutbound mirrors streamOutbound for datagram dials.
type datagramOutbound struct {
	dispatcher *dispatch.RuleDispatcher
	dgramNext  map[string]*graph.Weak[flow.DatagramOutboundFactory]
	resolvers  map[string]*graph.Weak[flow.Resolver]
	actions    []dispatch.Action
}

func (o *datagramOutbound) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	_, action, err := o.dispatcher.Match(ctx, fctx.RemotePeer)
	if err != nil {
		return nil, err
	}
	if action.UDPNext == "" {
		return nil, flow.ErrNoOutbound
	}
	weak, ok := o.dgramNext[action.UDPNext]
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	outbound, ok := weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	resolved := resolveIfConfigured(ctx, fctx, action.Resolver, o.resolvers)
	return outbound.DialDatagram(ctx, resolved)
}
