// SPDX-License-Identifier: GPL-3.0-or-later

package forward

import (
	"context"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/stretchr/testify/require"
)

func TestParseRequiresNext(t *testing.T) {
	f := NewFactory()
	_, err := f.Parse(graph.Descriptor{Name: "out"})
	require.Error(t, err)
}

func TestParseWiresNextAsStreamOutboundRequirement(t *testing.T) {
	raw, err := config.EncodeParam(Param{Next: "upstream"})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "out", Param: raw})
	require.NoError(t, err)
	require.Len(t, parsed.Requires, 1)
	require.Equal(t, graph.NewAP("upstream", "tcp"), parsed.Requires[0].AP)
	require.Equal(t, graph.APStreamOutboundFactory, parsed.Requires[0].Type)
	require.Equal(t, graph.NewAP("out", "tcp"), parsed.Provides[0].AP)
	require.Equal(t, graph.APStreamHandler, parsed.Provides[0].Type)
}

type fakeOutbound struct {
	dialed bool
}

func (f *fakeOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	f.dialed = true
	return nil, flow.ErrNoOutbound
}

func TestLoadFailsOverToErrNoOutboundWhenDependencyUnresolved(t *testing.T) {
	raw, err := config.EncodeParam(Param{Next: "upstream"})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "out", Param: raw})
	require.NoError(t, err)

	set := graph.NewSet()
	err = parsed.Factory.Load(context.Background(), "out", set, func(context.Context, graph.AP) bool { return true })
	require.NoError(t, err)

	handler, ok := set.StreamHandler(graph.NewAP("out", "tcp"))
	require.True(t, ok)
	err = handler.HandleStream(context.Background(), flow.NewContext(flow.LocalPeer{}, flow.Peer{}), nil)
	require.Error(t, err)
}

func TestLoadDialsResolvedUpstream(t *testing.T) {
	raw, err := config.EncodeParam(Param{Next: "upstream"})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "out", Param: raw})
	require.NoError(t, err)

	set := graph.NewSet()
	upstream := &fakeOutbound{}
	set.FillStreamOutbound(graph.NewAP("upstream", "tcp"), upstream)

	err = parsed.Factory.Load(context.Background(), "out", set, func(context.Context, graph.AP) bool { return true })
	require.NoError(t, err)

	handler, ok := set.StreamHandler(graph.NewAP("out", "tcp"))
	require.True(t, ok)
	_ = handler.HandleStream(context.Background(), flow.NewContext(flow.LocalPeer{}, flow.Peer{}), nil)
	require.True(t, upstream.dialed)
}
