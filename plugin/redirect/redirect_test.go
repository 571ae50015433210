// SPDX-License-Identifier: GPL-3.0-or-later

package redirect

import (
	"context"
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

type fakeStreamOutbound struct {
	got *flow.Context
}

func (f *fakeStreamOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	f.got = fctx
	return nil, nil
}

func TestStreamOutboundFactoryRewritesDest(t *testing.T) {
	next := &fakeStreamOutbound{}
	dest := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("10.0.0.1")), Port: 853}
	f := &StreamOutboundFactory{Dest: dest, Next: next}

	original := flow.Peer{Host: flow.NewHostDomain("example.com"), Port: 443}
	fctx := flow.NewContext(flow.LocalPeer{}, original)

	_, err := f.DialStream(context.Background(), fctx, nil)
	require.NoError(t, err)
	require.Equal(t, dest, next.got.RemotePeer)
	require.Equal(t, original, fctx.RemotePeer, "caller's context must not be mutated")
}

type fakeDatagram struct {
	sentTo []flow.Peer
}

func (f *fakeDatagram) RecvFrom(ctx context.Context) (flow.Peer, *buffer.Buffer, error) {
	return flow.Peer{}, nil, nil
}

func (f *fakeDatagram) SendReady(ctx context.Context) error { return nil }

func (f *fakeDatagram) SendTo(ctx context.Context, dest flow.Peer, buf *buffer.Buffer) error {
	f.sentTo = append(f.sentTo, dest)
	return nil
}

func (f *fakeDatagram) Shutdown() error { return nil }

type fakeDatagramOutbound struct {
	session *fakeDatagram
}

func (f *fakeDatagramOutbound) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	return f.session, nil
}

func TestDatagramOutboundFactoryOverridesEverySendTo(t *testing.T) {
	dest := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("10.0.0.1")), Port: 53}
	next := &fakeDatagramOutbound{session: &fakeDatagram{}}
	f := &DatagramOutboundFactory{Dest: dest, Next: next}

	original := flow.Peer{Host: flow.NewHostDomain("caller-chosen.example"), Port: 53}
	fctx := flow.NewContext(flow.LocalPeer{}, original)

	session, err := f.DialDatagram(context.Background(), fctx)
	require.NoError(t, err)

	other := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("8.8.8.8")), Port: 53}
	require.NoError(t, session.SendTo(context.Background(), other, buffer.Wrap([]byte("x"))))
	require.Equal(t, []flow.Peer{dest}, next.session.sentTo)
}
