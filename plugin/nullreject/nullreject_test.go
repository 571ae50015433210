// SPDX-License-Identifier: GPL-3.0-or-later

package nullreject

import (
	"context"
	"net"
	"testing"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

func TestNullAlwaysFails(t *testing.T) {
	var n Null

	_, err := n.DialStream(context.Background(), &flow.Context{}, nil)
	require.ErrorIs(t, err, flow.ErrNoOutbound)

	_, err = n.DialDatagram(context.Background(), &flow.Context{})
	require.ErrorIs(t, err, flow.ErrNoOutbound)

	_, err = n.ResolveIPv4(context.Background(), "example.com")
	require.ErrorIs(t, err, flow.ErrNoOutbound)

	_, err = n.ResolveIPv6(context.Background(), "example.com")
	require.ErrorIs(t, err, flow.ErrNoOutbound)

	_, err = n.ResolveReverse(context.Background(), flow.Host{})
	require.ErrorIs(t, err, flow.ErrNoOutbound)
}

func TestRejectHandlerClosesStream(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	stream := flow.FromReadWriteCloser(server)
	var h RejectHandler
	require.NoError(t, h.HandleStream(context.Background(), &flow.Context{}, stream))

	buf := make([]byte, 1)
	_, err := client.Read(buf)
	require.Error(t, err, "server side should be closed")
}

type shutdownDatagram struct {
	called bool
}

func (d *shutdownDatagram) RecvFrom(ctx context.Context) (flow.Peer, *buffer.Buffer, error) {
	return flow.Peer{}, nil, nil
}

func (d *shutdownDatagram) SendReady(ctx context.Context) error { return nil }

func (d *shutdownDatagram) SendTo(ctx context.Context, dest flow.Peer, buf *buffer.Buffer) error {
	return nil
}

func (d *shutdownDatagram) Shutdown() error {
	d.called = true
	return nil
}

func TestRejectHandlerShutsDownDatagram(t *testing.T) {
	lower := &shutdownDatagram{}
	var h RejectHandler
	require.NoError(t, h.HandleDatagram(context.Background(), &flow.Context{}, lower))
	require.True(t, lower.called)
}
