// SPDX-License-Identifier: GPL-3.0-or-later
//
// Nameserver dialing is the composed nop pipeline from
// nop/example_dnsoverudp_test.go and nop/example_dnsoverhttps_test.go
// (EndpointFunc|ConnectFunc|ObserveConnFunc|CancelWatchFunc[|TLSHandshakeFunc|HTTPConnFuncTLS]|DNSOver*ConnFunc),
// generalized here into one adapter per transport instead of one
// exchange-scoped example.

// Package resolve implements the host resolver, fake-IP allocator,
// map-back rewriters, and happy-eyeballs dialer (spec §4.6).
package resolve

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/netip"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/nop"
	"github.com/miekg/dns"
)

// Nameserver performs a single DNS exchange. Each of
// [nop.DNSOverUDPConn], [nop.DNSOverTCPConn], [nop.DNSOverTLSConn], and
// [nop.DNSOverHTTPSConn] already satisfies this shape; HostResolver
// treats them uniformly, per spec §4.6's "adapter layer that fakes a
// SocketAddr per nameserver so a generic DNS client library can
// multiplex over them" (the nameserver's own dialed endpoint stands in
// for that fake address here).
type Nameserver interface {
	Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error)
	Close() error
}

// NewUDPNameserver dials a DNS-over-UDP nameserver at addr.
func NewUDPNameserver(ctx context.Context, addr netip.AddrPort, cfg *nop.Config, logger nop.SLogger) (Nameserver, error) {
	pipe := nop.Compose5(
		nop.NewEndpointFunc(addr),
		nop.NewConnectFunc(cfg, "udp", logger),
		nop.NewObserveConnFunc(cfg, logger),
		nop.NewCancelWatchFunc(),
		nop.NewDNSOverUDPConnFunc(cfg, logger),
	)
	return pipe.Call(ctx, nop.Unit{})
}

// NewTCPNameserver dials a DNS-over-TCP nameserver at addr.
func NewTCPNameserver(ctx context.Context, addr netip.AddrPort, cfg *nop.Config, logger nop.SLogger) (Nameserver, error) {
	pipe := nop.Compose5(
		nop.NewEndpointFunc(addr),
		nop.NewConnectFunc(cfg, "tcp", logger),
		nop.NewObserveConnFunc(cfg, logger),
		nop.NewCancelWatchFunc(),
		nop.NewDNSOverTCPConnFunc(cfg, logger),
	)
	return pipe.Call(ctx, nop.Unit{})
}

// NewTLSNameserver dials a DNS-over-TLS nameserver at addr with the
// given TLS server name.
func NewTLSNameserver(ctx context.Context, addr netip.AddrPort, serverName string, cfg *nop.Config, logger nop.SLogger) (Nameserver, error) {
	tlsConfig := &tls.Config{ServerName: serverName}
	pipe := nop.Compose6(
		nop.NewEndpointFunc(addr),
		nop.NewConnectFunc(cfg, "tcp", logger),
		nop.NewObserveConnFunc(cfg, logger),
		nop.NewCancelWatchFunc(),
		nop.NewTLSHandshakeFunc(cfg, tlsConfig, logger),
		nop.NewDNSOverTLSConnFunc(cfg, logger),
	)
	return pipe.Call(ctx, nop.Unit{})
}

// NewDoHNameserver dials a DNS-over-HTTPS nameserver at addr, presenting
// serverName during the TLS handshake and issuing requests against url.
func NewDoHNameserver(ctx context.Context, addr netip.AddrPort, serverName, url string, cfg *nop.Config, logger nop.SLogger) (Nameserver, error) {
	tlsConfig := &tls.Config{ServerName: serverName, NextProtos: []string{"h2", "http/1.1"}}
	pipe := nop.Compose7(
		nop.NewEndpointFunc(addr),
		nop.NewConnectFunc(cfg, "tcp", logger),
		nop.NewObserveConnFunc(cfg, logger),
		nop.NewCancelWatchFunc(),
		nop.NewTLSHandshakeFunc(cfg, tlsConfig, logger),
		nop.NewHTTPConnFuncTLS(cfg, logger),
		nop.NewDNSOverHTTPSConnFunc(cfg, url, logger),
	)
	return pipe.Call(ctx, nop.Unit{})
}

// HostResolver implements [flow.Resolver] over a list of nameserver
// handles, trying each in order until one succeeds (spec §4.6, "Host
// resolver").
type HostResolver struct {
	Nameservers []Nameserver
}

func (r *HostResolver) exchange(ctx context.Context, name string, qtype uint16) (*dnscodec.Response, error) {
	if len(r.Nameservers) == 0 {
		return nil, fmt.Errorf("resolve: no nameservers configured")
	}
	query := dnscodec.NewQuery(name, qtype)
	var lastErr error
	for _, ns := range r.Nameservers {
		resp, err := ns.Exchange(ctx, query)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ResolveIPv4 implements [flow.Resolver].
func (r *HostResolver) ResolveIPv4(ctx context.Context, name string) ([]flow.Host, error) {
	resp, err := r.exchange(ctx, name, dns.TypeA)
	if err != nil {
		return nil, err
	}
	addrs, err := resp.RecordsA()
	if err != nil {
		return nil, err
	}
	return toHosts(addrs)
}

// ResolveIPv6 implements [flow.Resolver].
func (r *HostResolver) ResolveIPv6(ctx context.Context, name string) ([]flow.Host, error) {
	resp, err := r.exchange(ctx, name, dns.TypeAAAA)
	if err != nil {
		return nil, err
	}
	addrs, err := resp.RecordsAAAA()
	if err != nil {
		return nil, err
	}
	return toHosts(addrs)
}

// ResolveReverse implements [flow.Resolver], issuing a PTR query against
// the in-addr.arpa/ip6.arpa name [dns.ReverseAddr] builds for ip.
func (r *HostResolver) ResolveReverse(ctx context.Context, ip flow.Host) (string, error) {
	if ip.Kind != flow.HostIP {
		return "", fmt.Errorf("resolve: reverse lookup requires an IP host")
	}
	name, err := dns.ReverseAddr(ip.IP.String())
	if err != nil {
		return "", err
	}
	resp, err := r.exchange(ctx, name, dns.TypePTR)
	if err != nil {
		return "", err
	}
	names, err := resp.RecordsPTR()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("resolve: no PTR record for %s", name)
	}
	return names[0], nil
}

func toHosts(addrs []string) ([]flow.Host, error) {
	hosts := make([]flow.Host, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := netip.ParseAddr(a)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, flow.NewHostIP(parsed))
	}
	return hosts, nil
}
