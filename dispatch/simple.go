// SPDX-License-Identifier: GPL-3.0-or-later

// Package dispatch implements flow dispatch and routing (spec §4.5): the
// simple and rule dispatchers, the switch plugin's atomic one-of-N
// selection, dyn-outbound's persisted proxy-record selection, and the
// forward terminal leaf.
package dispatch

import (
	"net/netip"

	"github.com/bassosimone/flowplane/flow"
)

// PortRange is an inclusive port range, as spec §4.5's
// "src_port_ranges"/"dst_port_ranges" rule fields.
type PortRange struct {
	Lo, Hi uint16
}

// Contains reports whether port falls within the range.
func (r PortRange) Contains(port uint16) bool {
	return port >= r.Lo && port <= r.Hi
}

// SimpleRule is one ordered predicate/action pair for [SimpleDispatcher]
// (spec §4.5, "Simple dispatcher").
type SimpleRule struct {
	SrcIPCIDRs    []netip.Prefix
	SrcPortRanges []PortRange
	DstIPCIDRs    []netip.Prefix
	DstPortRanges []PortRange
	Next          string
}

func matchesIP(cidrs []netip.Prefix, ip netip.Addr) bool {
	if len(cidrs) == 0 {
		return true
	}
	for _, c := range cidrs {
		if c.Contains(ip) {
			return true
		}
	}
	return false
}

func matchesPort(ranges []PortRange, port uint16) bool {
	if len(ranges) == 0 {
		return true
	}
	for _, r := range ranges {
		if r.Contains(port) {
			return true
		}
	}
	return false
}

// matches implements spec §4.5's testable property 7 (first-match wins)
// and open question (i): a domain-name destination never matches a rule
// with a non-empty IP CIDR list and falls through to the next rule or the
// fallback; a rule without IP CIDRs can still match it on ports alone.
func (r SimpleRule) matches(src, dst flow.Peer) bool {
	if !matchesPort(r.SrcPortRanges, src.Port) || !matchesPort(r.DstPortRanges, dst.Port) {
		return false
	}
	if len(r.SrcIPCIDRs) > 0 {
		if src.Host.Kind != flow.HostIP || !matchesIP(r.SrcIPCIDRs, src.Host.IP) {
			return false
		}
	}
	if len(r.DstIPCIDRs) > 0 {
		if dst.Host.Kind != flow.HostIP || !matchesIP(r.DstIPCIDRs, dst.Host.IP) {
			return false
		}
	}
	return true
}

// SimpleDispatcher selects the next AP name for a flow by first-match
// over an ordered rule list, falling back to Fallback (spec §4.5,
// "Simple dispatcher").
type SimpleDispatcher struct {
	Rules    []SimpleRule
	Fallback string
}

// Dispatch returns the AP name of the next stage for a flow from src to
// dst.
func (d *SimpleDispatcher) Dispatch(src, dst flow.Peer) string {
	for _, r := range d.Rules {
		if r.matches(src, dst) {
			return r.Next
		}
	}
	return d.Fallback
}
