// SPDX-License-Identifier: GPL-3.0-or-later

package flow

import (
	"net/netip"
	"strings"

	"github.com/bassosimone/nop"
)

// HostKind distinguishes the two shapes [Host] can take.
type HostKind int

const (
	// HostIP is a literal IPv4 or IPv6 address.
	HostIP HostKind = iota
	// HostDomainName is an ASCII, lowercase, trailing-dot-stripped name.
	HostDomainName
)

// Host is one of Ip(v4|v6) | DomainName(ascii,lowercase,trailing-dot-stripped).
type Host struct {
	Kind   HostKind
	IP     netip.Addr
	Domain string
}

// NewHostIP returns a [Host] wrapping a literal IP address.
func NewHostIP(ip netip.Addr) Host {
	return Host{Kind: HostIP, IP: ip}
}

// NewHostDomain returns a [Host] wrapping a domain name, normalized to
// lowercase ASCII with any trailing dot stripped.
func NewHostDomain(name string) Host {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	return Host{Kind: HostDomainName, Domain: name}
}

// String renders the host for logging.
func (h Host) String() string {
	if h.Kind == HostIP {
		return h.IP.String()
	}
	return h.Domain
}

// Peer is a host plus a port.
type Peer struct {
	Host Host
	Port uint16
}

// LocalPeer is a peer fully identified by ip+port (spec §3, Flow context).
type LocalPeer struct {
	IP   netip.Addr
	Port uint16
}

// Context carries per-connection metadata alongside a stream or datagram
// flow: local peer, remote peer (host-or-ip), and an application-layer
// hint (e.g. a sniffed SNI or ALPN value used by dispatch rules).
//
// SpanID uniquely identifies the flow for log correlation, following the
// same span-ID convention the nop package uses for DNS exchanges and
// connection lifecycles (see [nop.NewSpanID]).
type Context struct {
	LocalPeer          LocalPeer
	RemotePeer         Peer
	ApplicationLayerHint string
	SpanID             string
}

// NewContext returns a [*Context] with a fresh span ID.
func NewContext(local LocalPeer, remote Peer) *Context {
	return &Context{
		LocalPeer:  local,
		RemotePeer: remote,
		SpanID:     nop.NewSpanID(),
	}
}

// WithHint returns a shallow copy of ctx carrying the given application
// layer hint (e.g. "tls", "http").
func (c *Context) WithHint(hint string) *Context {
	cp := *c
	cp.ApplicationLayerHint = hint
	return &cp
}
