// SPDX-License-Identifier: GPL-3.0-or-later

package simpledispatch

import (
	"context"
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/dispatch"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/stretchr/testify/require"
)

func TestParseRequiresEveryDistinctNextIncludingFallback(t *testing.T) {
	raw, err := config.EncodeParam(Param{
		Rules: []RuleParam{
			{DstPortRanges: []PortRangeParam{{Lo: 443, Hi: 443}}, Next: "proxy"},
		},
		Fallback: "direct",
	})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "route", Param: raw})
	require.NoError(t, err)

	var names []string
	for _, r := range parsed.Requires {
		names = append(names, r.AP.Plugin())
	}
	require.Contains(t, names, "proxy")
	require.Contains(t, names, "direct")
}

func TestParseRejectsInvalidCIDR(t *testing.T) {
	raw, err := config.EncodeParam(Param{
		Rules:    []RuleParam{{DstIPCIDRs: []string{"not-a-cidr"}, Next: "proxy"}},
		Fallback: "direct",
	})
	require.NoError(t, err)

	f := NewFactory()
	_, err = f.Parse(graph.Descriptor{Name: "route", Param: raw})
	require.Error(t, err)
}

type fakeOutbound struct {
	dialed bool
}

func (f *fakeOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	f.dialed = true
	return nil, nil
}

func TestStreamOutboundDispatchesToMatchedRuleNotFallback(t *testing.T) {
	dispatcher := &dispatch.SimpleDispatcher{
		Rules: []dispatch.SimpleRule{
			{DstPortRanges: []dispatch.PortRange{{Lo: 443, Hi: 443}}, Next: "proxy"},
		},
		Fallback: "direct",
	}
	proxy := &fakeOutbound{}
	direct := &fakeOutbound{}
	o := &streamOutbound{
		dispatcher: dispatcher,
		weaks: map[string]*graph.Weak[flow.StreamOutboundFactory]{
			"proxy":  fillWeakStream(proxy),
			"direct": fillWeakStream(direct),
		},
	}

	dst := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("1.2.3.4")), Port: 443}
	fctx := flow.NewContext(flow.LocalPeer{}, dst)
	_, err := o.DialStream(context.Background(), fctx, nil)
	require.NoError(t, err)
	require.True(t, proxy.dialed)
	require.False(t, direct.dialed)
}

func TestStreamOutboundFallsBackWhenNoRuleMatches(t *testing.T) {
	dispatcher := &dispatch.SimpleDispatcher{Fallback: "direct"}
	direct := &fakeOutbound{}
	o := &streamOutbound{
		dispatcher: dispatcher,
		weaks: map[string]*graph.Weak[flow.StreamOutboundFactory]{
			"direct": fillWeakStream(direct),
		},
	}

	dst := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("1.2.3.4")), Port: 80}
	fctx := flow.NewContext(flow.LocalPeer{}, dst)
	_, err := o.DialStream(context.Background(), fctx, nil)
	require.NoError(t, err)
	require.True(t, direct.dialed)
}

func fillWeakStream(v flow.StreamOutboundFactory) *graph.Weak[flow.StreamOutboundFactory] {
	cell := graph.NewCell[flow.StreamOutboundFactory]()
	cell.Fill(v)
	return cell.Weak()
}
