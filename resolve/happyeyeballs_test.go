// SPDX-License-Identifier: GPL-3.0-or-later

package resolve

import (
	"context"
	"fmt"
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	v4, v6 []flow.Host
}

func (r fakeResolver) ResolveIPv4(ctx context.Context, name string) ([]flow.Host, error) {
	return r.v4, nil
}
func (r fakeResolver) ResolveIPv6(ctx context.Context, name string) ([]flow.Host, error) {
	return r.v6, nil
}
func (r fakeResolver) ResolveReverse(ctx context.Context, ip flow.Host) (string, error) {
	return "", fmt.Errorf("not implemented")
}

type fakeConn struct {
	addr  netip.Addr
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestHappyEyeballsDialerPrefersV6WhenBothSucceed(t *testing.T) {
	v6addr := netip.MustParseAddr("2001:db8::1")
	v4addr := netip.MustParseAddr("198.18.0.1")

	dialer := &HappyEyeballsDialer{
		Resolver: fakeResolver{
			v4: []flow.Host{flow.NewHostIP(v4addr)},
			v6: []flow.Host{flow.NewHostIP(v6addr)},
		},
		DialAddr: func(ctx context.Context, addr netip.Addr, port uint16) (Conn, error) {
			return &fakeConn{addr: addr}, nil
		},
	}

	conn, err := dialer.Dial(context.Background(), "example.com", 443)
	require.NoError(t, err)
	got := conn.(*fakeConn)
	require.Equal(t, v6addr, got.addr)
}

func TestHappyEyeballsDialerFallsBackToV4(t *testing.T) {
	v4addr := netip.MustParseAddr("198.18.0.1")

	dialer := &HappyEyeballsDialer{
		Resolver: fakeResolver{v4: []flow.Host{flow.NewHostIP(v4addr)}},
		DialAddr: func(ctx context.Context, addr netip.Addr, port uint16) (Conn, error) {
			return &fakeConn{addr: addr}, nil
		},
	}

	conn, err := dialer.Dial(context.Background(), "example.com", 443)
	require.NoError(t, err)
	require.Equal(t, v4addr, conn.(*fakeConn).addr)
}

func TestHappyEyeballsDialerNoAddressesFails(t *testing.T) {
	dialer := &HappyEyeballsDialer{
		Resolver: fakeResolver{},
		DialAddr: func(ctx context.Context, addr netip.Addr, port uint16) (Conn, error) {
			return &fakeConn{addr: addr}, nil
		},
	}

	_, err := dialer.Dial(context.Background(), "example.com", 443)
	require.Error(t, err)
}
