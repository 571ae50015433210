// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"context"
	"testing"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/graph"
	"github.com/stretchr/testify/require"
)

func TestParseWithNoParamDefaultsToBothTCPAndUDP(t *testing.T) {
	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "direct", PluginType: "socket"})
	require.NoError(t, err)
	require.Len(t, parsed.Provides, 2)

	var aps []graph.AP
	for _, p := range parsed.Provides {
		aps = append(aps, p.AP)
	}
	require.Contains(t, aps, graph.NewAP("direct", "tcp"))
	require.Contains(t, aps, graph.NewAP("direct", "udp"))
}

func TestParseHonorsExplicitParam(t *testing.T) {
	raw, err := config.EncodeParam(Param{TCP: true, UDP: false})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "direct", PluginType: "socket", Param: raw})
	require.NoError(t, err)
	require.Len(t, parsed.Provides, 1)
	require.Equal(t, graph.NewAP("direct", "tcp"), parsed.Provides[0].AP)
	require.Equal(t, graph.APStreamOutboundFactory, parsed.Provides[0].Type)
}

func TestLoadFillsOnlyConfiguredAPs(t *testing.T) {
	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "direct", PluginType: "socket"})
	require.NoError(t, err)

	set := graph.NewSet()
	err = parsed.Factory.Load(context.Background(), "direct", set, func(context.Context, graph.AP) bool { return true })
	require.NoError(t, err)

	_, ok := set.StreamOutbound(graph.NewAP("direct", "tcp"))
	require.True(t, ok)
	_, ok = set.DatagramOutbound(graph.NewAP("direct", "udp"))
	require.True(t, ok)
}
