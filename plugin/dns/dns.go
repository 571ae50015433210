// SPDX-License-Identifier: GPL-3.0-or-later

// Package dns implements the DNS server plugin: it answers A/AAAA
// queries by delegating to a [flow.Resolver] and replies NotImp to
// everything else (spec.md §4.6, "The DNS server plugin layers on top:
// on receiving a query for A/AAAA, delegate to Resolver; for
// unsupported types, return NotImp. Answers carry a configurable
// TTL."). When FakeIP is set, answers hand out synthesized addresses
// from it instead of Resolver's real ones, recording the domain so a
// later inbound flow to that address can be mapped back (spec.md
// §4.6, "Map-back").
package dns

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/miekg/dns"
)

// FakeAllocator mints a fake IP standing in for a resolved domain;
// [*resolve.FakeIP] satisfies this.
type FakeAllocator interface {
	AllocateV4(domain string) (netip.Addr, error)
	AllocateV6(domain string) (netip.Addr, error)
}

// Handler answers DNS queries carried over a [flow.Datagram] session
// (spec.md §4.6's DNS server plugin).
type Handler struct {
	Resolver flow.Resolver
	FakeIP   FakeAllocator
	TTL      time.Duration
}

// defaultTTL is used when Handler.TTL is zero.
const defaultTTL = 60 * time.Second

// HandleDatagram implements [flow.DatagramHandler]: every received
// datagram is one DNS query, answered independently.
func (h *Handler) HandleDatagram(ctx context.Context, fctx *flow.Context, lower flow.Datagram) error {
	for {
		peer, buf, err := lower.RecvFrom(ctx)
		if err != nil {
			return err
		}
		if buf == nil {
			return nil
		}
		reply, err := h.answer(ctx, buf.Bytes())
		buf.Reset()
		if err != nil {
			continue
		}
		if err := lower.SendReady(ctx); err != nil {
			return err
		}
		if err := lower.SendTo(ctx, peer, buffer.Wrap(reply)); err != nil {
			return err
		}
	}
}

// answer parses a single DNS query message and builds its reply.
func (h *Handler) answer(ctx context.Context, query []byte) ([]byte, error) {
	var msg dns.Msg
	if err := msg.Unpack(query); err != nil {
		return nil, fmt.Errorf("dns: unpacking query: %w", err)
	}
	reply := new(dns.Msg)
	reply.SetReply(&msg)
	reply.Authoritative = true

	if len(msg.Question) != 1 {
		reply.Rcode = dns.RcodeFormatError
		return reply.Pack()
	}
	q := msg.Question[0]

	ttl := h.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	switch q.Qtype {
	case dns.TypeA:
		rr, err := h.answerA(ctx, q.Name, uint32(ttl.Seconds()))
		if err != nil {
			reply.Rcode = dns.RcodeServerFailure
			break
		}
		if rr != nil {
			reply.Answer = append(reply.Answer, rr)
		}
	case dns.TypeAAAA:
		rr, err := h.answerAAAA(ctx, q.Name, uint32(ttl.Seconds()))
		if err != nil {
			reply.Rcode = dns.RcodeServerFailure
			break
		}
		if rr != nil {
			reply.Answer = append(reply.Answer, rr)
		}
	default:
		reply.Rcode = dns.RcodeNotImplemented
	}
	return reply.Pack()
}

func (h *Handler) answerA(ctx context.Context, qname string, ttl uint32) (dns.RR, error) {
	domain := dns.Fqdn(qname)
	if h.FakeIP != nil {
		ip, err := h.FakeIP.AllocateV4(domain)
		if err != nil {
			return nil, err
		}
		return &dns.A{Hdr: dns.RR_Header{Name: qname, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl}, A: net.IP(ip.AsSlice())}, nil
	}
	hosts, err := h.Resolver.ResolveIPv4(ctx, trimFqdn(domain))
	if err != nil || len(hosts) == 0 {
		return nil, err
	}
	ip := hosts[0].IP.AsSlice()
	return &dns.A{Hdr: dns.RR_Header{Name: qname, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl}, A: net.IP(ip)}, nil
}

func (h *Handler) answerAAAA(ctx context.Context, qname string, ttl uint32) (dns.RR, error) {
	domain := dns.Fqdn(qname)
	if h.FakeIP != nil {
		ip, err := h.FakeIP.AllocateV6(domain)
		if err != nil {
			return nil, err
		}
		return &dns.AAAA{Hdr: dns.RR_Header{Name: qname, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ttl}, AAAA: net.IP(ip.AsSlice())}, nil
	}
	hosts, err := h.Resolver.ResolveIPv6(ctx, trimFqdn(domain))
	if err != nil || len(hosts) == 0 {
		return nil, err
	}
	ip := hosts[0].IP.AsSlice()
	return &dns.AAAA{Hdr: dns.RR_Header{Name: qname, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ttl}, AAAA: net.IP(ip)}, nil
}

func trimFqdn(name string) string {
	if len(name) > 0 && name[len(name)-1] == '.' {
		return name[:len(name)-1]
	}
	return name
}
