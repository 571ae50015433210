// SPDX-License-Identifier: GPL-3.0-or-later

package resolvedest

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	v4   []flow.Host
	v4Err error
}

func (r *fakeResolver) ResolveIPv4(ctx context.Context, name string) ([]flow.Host, error) {
	return r.v4, r.v4Err
}

func (r *fakeResolver) ResolveIPv6(ctx context.Context, name string) ([]flow.Host, error) {
	return nil, nil
}

func (r *fakeResolver) ResolveReverse(ctx context.Context, ip flow.Host) (string, error) {
	return "", nil
}

func domainContext(domain string) *flow.Context {
	dest := flow.Peer{Host: flow.NewHostDomain(domain), Port: 80}
	return flow.NewContext(flow.LocalPeer{}, dest)
}

func TestResolveFuncRewritesDomainToIP(t *testing.T) {
	want := flow.NewHostIP(netip.MustParseAddr("93.184.216.34"))
	r := &fakeResolver{v4: []flow.Host{want}}
	f := &resolveFunc{resolver: r}

	fctx := domainContext("example.com")
	got, err := f.Call(context.Background(), fctx)
	require.NoError(t, err)
	require.Equal(t, flow.HostIP, got.RemotePeer.Host.Kind)
	require.Equal(t, want.IP, got.RemotePeer.Host.IP)
	require.Equal(t, uint16(80), got.RemotePeer.Port)
}

func TestResolveFuncPassesThroughOnIPDestination(t *testing.T) {
	r := &fakeResolver{}
	f := &resolveFunc{resolver: r}

	dest := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("1.2.3.4")), Port: 443}
	fctx := flow.NewContext(flow.LocalPeer{}, dest)

	got, err := f.Call(context.Background(), fctx)
	require.NoError(t, err)
	require.Same(t, fctx, got)
}

func TestResolveFuncFallsBackOnError(t *testing.T) {
	r := &fakeResolver{v4Err: errors.New("no route to resolver")}
	f := &resolveFunc{resolver: r}

	fctx := domainContext("example.com")
	got, err := f.Call(context.Background(), fctx)
	require.NoError(t, err)
	require.Equal(t, flow.HostDomainName, got.RemotePeer.Host.Kind)
	require.Equal(t, "example.com", got.RemotePeer.Host.Domain)
}

func TestResolveFuncFallsBackOnEmptyResult(t *testing.T) {
	r := &fakeResolver{v4: nil}
	f := &resolveFunc{resolver: r}

	fctx := domainContext("example.com")
	got, err := f.Call(context.Background(), fctx)
	require.NoError(t, err)
	require.Equal(t, flow.HostDomainName, got.RemotePeer.Host.Kind)
}
