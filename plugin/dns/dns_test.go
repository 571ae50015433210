// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/resolve"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	v4 []flow.Host
}

func (r *fakeResolver) ResolveIPv4(ctx context.Context, name string) ([]flow.Host, error) {
	return r.v4, nil
}

func (r *fakeResolver) ResolveIPv6(ctx context.Context, name string) ([]flow.Host, error) {
	return nil, nil
}

func (r *fakeResolver) ResolveReverse(ctx context.Context, ip flow.Host) (string, error) {
	return "", nil
}

func aQuery(name string) []byte {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	buf, err := m.Pack()
	if err != nil {
		panic(err)
	}
	return buf
}

func TestAnswerAResolvesThroughResolver(t *testing.T) {
	want := flow.NewHostIP(netip.MustParseAddr("93.184.216.34"))
	h := &Handler{Resolver: &fakeResolver{v4: []flow.Host{want}}}

	raw, err := h.answer(context.Background(), aQuery("example.com"))
	require.NoError(t, err)

	var reply dns.Msg
	require.NoError(t, reply.Unpack(raw))
	require.Equal(t, dns.RcodeSuccess, reply.Rcode)
	require.Len(t, reply.Answer, 1)
	a, ok := reply.Answer[0].(*dns.A)
	require.True(t, ok)
	require.Equal(t, want.IP.AsSlice(), []byte(a.A.To4()))
}

func TestAnswerUnsupportedTypeReturnsNotImplemented(t *testing.T) {
	h := &Handler{Resolver: &fakeResolver{}}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn("example.com"), dns.TypeMX)
	query, err := m.Pack()
	require.NoError(t, err)

	raw, err := h.answer(context.Background(), query)
	require.NoError(t, err)

	var reply dns.Msg
	require.NoError(t, reply.Unpack(raw))
	require.Equal(t, dns.RcodeNotImplemented, reply.Rcode)
}

func TestAnswerUsesFakeIPWhenConfigured(t *testing.T) {
	fake := resolve.NewFakeIP(netip.MustParsePrefix("198.18.0.0/16"), netip.MustParsePrefix("fc00::/112"), time.Minute)
	h := &Handler{Resolver: &fakeResolver{}, FakeIP: fake}

	raw, err := h.answer(context.Background(), aQuery("example.com"))
	require.NoError(t, err)

	var reply dns.Msg
	require.NoError(t, reply.Unpack(raw))
	require.Len(t, reply.Answer, 1)
	a, ok := reply.Answer[0].(*dns.A)
	require.True(t, ok)

	ip, _ := netip.AddrFromSlice(a.A.To4())
	require.True(t, netip.MustParsePrefix("198.18.0.0/16").Contains(ip))

	domain, ok := fake.Lookup(ip)
	require.True(t, ok)
	require.Equal(t, "example.com.", domain)
}

func TestAnswerMultipleQuestionsIsFormatError(t *testing.T) {
	h := &Handler{Resolver: &fakeResolver{}}

	m := new(dns.Msg)
	m.Question = []dns.Question{
		{Name: dns.Fqdn("a.example.com"), Qtype: dns.TypeA, Qclass: dns.ClassINET},
		{Name: dns.Fqdn("b.example.com"), Qtype: dns.TypeA, Qclass: dns.ClassINET},
	}
	query, err := m.Pack()
	require.NoError(t, err)

	raw, err := h.answer(context.Background(), query)
	require.NoError(t, err)

	var reply dns.Msg
	require.NoError(t, reply.Unpack(raw))
	require.Equal(t, dns.RcodeFormatError, reply.Rcode)
}
