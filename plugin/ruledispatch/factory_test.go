// SPDX-License-Identifier: GPL-3.0-or-later

package ruledispatch

import (
	"context"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsUnknownDomainRuleKind(t *testing.T) {
	raw, err := config.EncodeParam(Param{
		Actions: []ActionParam{{TCPNext: "proxy"}},
		Rules:   []RuleParam{{Domains: []DomainRuleParam{{Kind: "bogus", Pattern: "x"}}, Action: 0}},
	})
	require.NoError(t, err)

	f := NewFactory()
	_, err = f.Parse(graph.Descriptor{Name: "route", Param: raw})
	require.Error(t, err)
}

func TestParseWiresActionLegsAndResolversAsRequirements(t *testing.T) {
	raw, err := config.EncodeParam(Param{
		Actions: []ActionParam{{TCPNext: "proxy", UDPNext: "proxy-udp", Resolver: "dns1"}},
		Rules:   []RuleParam{{Domains: []DomainRuleParam{{Kind: "suffix", Pattern: ".example.com"}}, Action: 0}},
	})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "route", Param: raw})
	require.NoError(t, err)

	var names []string
	for _, r := range parsed.Requires {
		names = append(names, r.AP.Plugin()+"."+r.AP.Suffix())
	}
	require.Contains(t, names, "proxy.tcp")
	require.Contains(t, names, "proxy-udp.udp")
	require.Contains(t, names, "dns1.dns")
}

func TestLoadDispatchesMatchedDomainRuleToItsTCPLeg(t *testing.T) {
	raw, err := config.EncodeParam(Param{
		Actions: []ActionParam{{TCPNext: "proxy"}},
		Rules:   []RuleParam{{Domains: []DomainRuleParam{{Kind: "suffix", Pattern: ".example.com"}}, Action: 0}},
	})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "route", Param: raw})
	require.NoError(t, err)

	set := graph.NewSet()
	proxy := &fakeRuleOutbound{}
	set.FillStreamOutbound(graph.NewAP("proxy", "tcp"), proxy)

	err = parsed.Factory.Load(context.Background(), "route", set, func(context.Context, graph.AP) bool { return true })
	require.NoError(t, err)

	outbound, ok := set.StreamOutbound(graph.NewAP("route", "tcp"))
	require.True(t, ok)

	dst := flow.Peer{Host: flow.NewHostDomain("www.example.com"), Port: 443}
	fctx := flow.NewContext(flow.LocalPeer{}, dst)
	_, err = outbound.DialStream(context.Background(), fctx, nil)
	require.NoError(t, err)
	require.True(t, proxy.dialed)
}

func TestLoadReturnsErrNoOutboundWhenNoRuleMatches(t *testing.T) {
	raw, err := config.EncodeParam(Param{
		Actions: []ActionParam{{TCPNext: "proxy"}},
		Rules:   []RuleParam{{Domains: []DomainRuleParam{{Kind: "exact", Pattern: "only-this.example.com"}}, Action: 0}},
	})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "route", Param: raw})
	require.NoError(t, err)

	set := graph.NewSet()
	proxy := &fakeRuleOutbound{}
	set.FillStreamOutbound(graph.NewAP("proxy", "tcp"), proxy)

	err = parsed.Factory.Load(context.Background(), "route", set, func(context.Context, graph.AP) bool { return true })
	require.NoError(t, err)

	outbound, ok := set.StreamOutbound(graph.NewAP("route", "tcp"))
	require.True(t, ok)

	dst := flow.Peer{Host: flow.NewHostDomain("other.example.com"), Port: 443}
	fctx := flow.NewContext(flow.LocalPeer{}, dst)
	_, err = outbound.DialStream(context.Background(), fctx, nil)
	require.ErrorIs(t, err, flow.ErrNoOutbound)
	require.False(t, proxy.dialed)
}

type fakeRuleOutbound struct {
	dialed bool
}

func (f *fakeRuleOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	f.dialed = true
	return nil, nil
}
