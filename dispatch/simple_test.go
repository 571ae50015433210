// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"context"
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

func peerIP(s string, port uint16) flow.Peer {
	return flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr(s)), Port: port}
}

func peerDomain(name string, port uint16) flow.Peer {
	return flow.Peer{Host: flow.NewHostDomain(name), Port: port}
}

func TestSimpleDispatcherFirstMatchWins(t *testing.T) {
	d := &SimpleDispatcher{
		Rules: []SimpleRule{
			{DstIPCIDRs: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}, Next: "lan"},
			{DstPortRanges: []PortRange{{Lo: 443, Hi: 443}}, Next: "https"},
		},
		Fallback: "proxy",
	}

	require.Equal(t, "lan", d.Dispatch(flow.Peer{}, peerIP("10.1.2.3", 80)))
	require.Equal(t, "https", d.Dispatch(flow.Peer{}, peerIP("8.8.8.8", 443)))
	require.Equal(t, "proxy", d.Dispatch(flow.Peer{}, peerIP("8.8.8.8", 80)))
}

func TestSimpleDispatcherDomainNeverMatchesIPCondition(t *testing.T) {
	d := &SimpleDispatcher{
		Rules: []SimpleRule{
			{DstIPCIDRs: []netip.Prefix{netip.MustParsePrefix("0.0.0.0/0")}, Next: "ip-only"},
		},
		Fallback: "fallback",
	}

	require.Equal(t, "fallback", d.Dispatch(flow.Peer{}, peerDomain("example.com", 443)))
}

func TestPackUnpackHandleRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		action uint8
		ruleID uint32
	}{
		{0, 0},
		{14, 0xFFFFFF},
		{7, 12345},
	} {
		h := PackHandle(tc.action, tc.ruleID)
		gotAction, gotRuleID := UnpackHandle(h)
		require.Equal(t, tc.action, gotAction)
		require.Equal(t, tc.ruleID, gotRuleID)
	}
}

func TestRuleDispatcherDomainSetMatch(t *testing.T) {
	d := &RuleDispatcher{
		Actions: []Action{{TCPNext: "direct"}, {TCPNext: "proxy"}},
		Rules: []Rule{
			{Domains: []DomainRule{{Kind: DomainSuffix, Pattern: "internal.example.com"}}, Action: 0},
		},
	}
	require.NoError(t, d.Compile())

	_, action, err := d.Match(context.Background(), peerDomain("svc.internal.example.com", 80))
	require.NoError(t, err)
	require.Equal(t, "direct", action.TCPNext)

	_, _, err = d.Match(context.Background(), peerDomain("example.org", 80))
	require.ErrorIs(t, err, flow.ErrNoOutbound)
}

type fakeGeo struct {
	codes map[string]string
}

func (g fakeGeo) CountryCode(ip netip.Addr) (string, bool) {
	c, ok := g.codes[ip.String()]
	return c, ok
}

func TestRuleDispatcherDeferredResolution(t *testing.T) {
	d := &RuleDispatcher{
		Actions: []Action{{TCPNext: "geo-us"}},
		Rules: []Rule{
			{Countries: []string{"US"}, Action: 0},
		},
		Geo: fakeGeo{codes: map[string]string{"93.184.216.34": "US"}},
		Resolve: func(ctx context.Context, name string) ([]netip.Addr, error) {
			require.Equal(t, "example.org", name)
			return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
		},
	}
	require.NoError(t, d.Compile())

	handle, action, err := d.Match(context.Background(), peerDomain("example.org", 443))
	require.NoError(t, err)
	require.Equal(t, "geo-us", action.TCPNext)
	gotAction, gotRuleID := UnpackHandle(handle)
	require.Equal(t, uint8(0), gotAction)
	require.Equal(t, uint32(0), gotRuleID)
}
