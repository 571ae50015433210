// SPDX-License-Identifier: GPL-3.0-or-later

package resolve

import (
	"context"
	"net/netip"
	"sync"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
)

// Lookup reverses a fake IP back to the domain that minted it; [*FakeIP]
// satisfies this.
type Lookup interface {
	Lookup(ip netip.Addr) (string, bool)
}

// MapBackStream wraps a [flow.StreamOutboundFactory], rewriting a fake-IP
// destination back to its original domain before dialing (spec §4.6,
// "Map-back"). Per-session forward state tracking "domain->real-ip" seen
// on egress lives alongside this rewrite so subsequent replies can find
// their way back; the destination rewrite performed here is exactly the
// mechanism that state depends on, so [MapBackStream]/[MapBackDatagram]
// are the ones responsible for recording it into Seen.
type MapBackStream struct {
	Lower Lookup
	Next  flow.StreamOutboundFactory
	Seen  *ForwardState
}

// DialStream implements [flow.StreamOutboundFactory].
func (m *MapBackStream) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	rewritten := *fctx
	if domain, ok := m.rewrite(fctx.RemotePeer); ok {
		rewritten.RemotePeer = flow.Peer{Host: flow.NewHostDomain(domain), Port: fctx.RemotePeer.Port}
	}
	return m.Next.DialStream(ctx, &rewritten, initialData)
}

func (m *MapBackStream) rewrite(dst flow.Peer) (string, bool) {
	if dst.Host.Kind != flow.HostIP || m.Lower == nil {
		return "", false
	}
	domain, ok := m.Lower.Lookup(dst.Host.IP)
	if ok && m.Seen != nil {
		m.Seen.Record(domain, dst.Host.IP)
	}
	return domain, ok
}

// MapBackDatagram performs the same rewrite as [MapBackStream] for the
// datagram path.
type MapBackDatagram struct {
	Lower Lookup
	Next  flow.DatagramOutboundFactory
	Seen  *ForwardState
}

// DialDatagram implements [flow.DatagramOutboundFactory].
func (m *MapBackDatagram) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	rewritten := *fctx
	if dst := fctx.RemotePeer; dst.Host.Kind == flow.HostIP && m.Lower != nil {
		if domain, ok := m.Lower.Lookup(dst.Host.IP); ok {
			rewritten.RemotePeer = flow.Peer{Host: flow.NewHostDomain(domain), Port: dst.Port}
			if m.Seen != nil {
				m.Seen.Record(domain, dst.Host.IP)
			}
		}
	}
	return m.Next.DialDatagram(ctx, &rewritten)
}

// ForwardState tracks the most recent real IP a domain resolved to on
// egress, so replies arriving addressed to that IP can still be routed
// back to the session that is expecting the domain (spec §4.6,
// "Per-session forward state tracks domain->real-ip seen on egress").
type ForwardState struct {
	mu   sync.Mutex
	byIP map[string]netip.Addr
}

// NewForwardState returns an empty [*ForwardState].
func NewForwardState() *ForwardState {
	return &ForwardState{byIP: make(map[string]netip.Addr)}
}

// Record remembers that domain most recently resolved to ip.
func (s *ForwardState) Record(domain string, ip netip.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIP[domain] = ip
}

// RealIP returns the most recently recorded real IP for domain.
func (s *ForwardState) RealIP(domain string) (netip.Addr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ip, ok := s.byIP[domain]
	return ip, ok
}
