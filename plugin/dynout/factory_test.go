// SPDX-License-Identifier: GPL-3.0-or-later

package dynout

import (
	"context"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/stretchr/testify/require"
)

func TestParseRequiresUpstream(t *testing.T) {
	f := NewFactory()
	_, err := f.Parse(graph.Descriptor{Name: "dyn"})
	require.Error(t, err)
}

type fakeUpstream struct{}

func (fakeUpstream) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	return nil, nil
}

func TestSelectFailsWithoutARecordStore(t *testing.T) {
	raw, err := config.EncodeParam(Param{Upstream: "out"})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "dyn", Param: raw})
	require.NoError(t, err)

	set := graph.NewSet()
	set.FillStreamOutbound(graph.NewAP("out", "tcp"), fakeUpstream{})
	err = parsed.Factory.Load(context.Background(), "dyn", set, func(context.Context, graph.AP) bool { return true })
	require.NoError(t, err)

	fac := parsed.Factory.(*Factory)
	idxParam, err := config.EncodeParam(0)
	require.NoError(t, err)
	_, err = fac.Responder().OnRequest("select", idxParam)
	require.Error(t, err, "unconfiguredRecordStore must fail Select until a real store is wired")
}

func TestDialStreamReturnsErrNoOutboundBeforeAnySelect(t *testing.T) {
	raw, err := config.EncodeParam(Param{Upstream: "out"})
	require.NoError(t, err)

	f := NewFactory()
	parsed, err := f.Parse(graph.Descriptor{Name: "dyn", Param: raw})
	require.NoError(t, err)

	set := graph.NewSet()
	set.FillStreamOutbound(graph.NewAP("out", "tcp"), fakeUpstream{})
	err = parsed.Factory.Load(context.Background(), "dyn", set, func(context.Context, graph.AP) bool { return true })
	require.NoError(t, err)

	outbound, ok := set.StreamOutbound(graph.NewAP("dyn", "tcp"))
	require.True(t, ok)
	_, err = outbound.DialStream(context.Background(), flow.NewContext(flow.LocalPeer{}, flow.Peer{}), nil)
	require.ErrorIs(t, err, flow.ErrNoOutbound)
}
