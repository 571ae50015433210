// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/bassosimone/flowplane/flow"
)

// MaxActions is the limit on declared actions a [RuleDispatcher] may
// carry: the packed handle reserves 8 bits for the action index (spec
// §4.5, "(action_handle: u8, rule_id: u24)").
const MaxActions = 15

// PackHandle packs an action index and a rule index into the 32-bit
// handle spec §4.5 describes.
func PackHandle(action uint8, ruleID uint32) uint32 {
	return uint32(action)<<24 | (ruleID & 0x00FFFFFF)
}

// UnpackHandle reverses [PackHandle].
func UnpackHandle(h uint32) (action uint8, ruleID uint32) {
	return uint8(h >> 24), h & 0x00FFFFFF
}

// DomainMatchKind selects how a [DomainRule] compares against a
// destination domain name.
type DomainMatchKind int

const (
	DomainExact DomainMatchKind = iota
	DomainSuffix
	DomainKeyword
	DomainRegex
)

// DomainRule is one domain-set predicate (spec §4.5, "domain-set
// (exact/suffix/keyword/regex) rules").
type DomainRule struct {
	Kind    DomainMatchKind
	Pattern string

	compiled *regexp.Regexp
}

func (r *DomainRule) compile() error {
	if r.Kind != DomainRegex || r.compiled != nil {
		return nil
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("dispatch: invalid domain regex %q: %w", r.Pattern, err)
	}
	r.compiled = re
	return nil
}

func (r *DomainRule) matches(domain string) bool {
	switch r.Kind {
	case DomainExact:
		return strings.EqualFold(domain, r.Pattern)
	case DomainSuffix:
		return strings.HasSuffix(strings.ToLower(domain), strings.ToLower(r.Pattern))
	case DomainKeyword:
		return strings.Contains(strings.ToLower(domain), strings.ToLower(r.Pattern))
	case DomainRegex:
		return r.compiled != nil && r.compiled.MatchString(domain)
	default:
		return false
	}
}

// GeoMatcher resolves an IP address to a country code. The geo-database
// registry behind it is an external collaborator (spec.md Non-goals);
// only this lookup interface lives in flowplane.
type GeoMatcher interface {
	CountryCode(ip netip.Addr) (string, bool)
}

// Rule is one entry in a [RuleDispatcher]'s rule list: it matches by
// domain-set and/or GeoIP country code and, on match, selects an action
// by index.
type Rule struct {
	Domains   []DomainRule
	Countries []string
	Action    uint8
}

func (r *Rule) compile() error {
	for i := range r.Domains {
		if err := r.Domains[i].compile(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rule) needsIP() bool {
	return len(r.Countries) > 0
}

func (r *Rule) matchesDomain(domain string) bool {
	if len(r.Domains) == 0 {
		return false
	}
	for _, d := range r.Domains {
		if d.matches(domain) {
			return true
		}
	}
	return false
}

func (r *Rule) matchesIP(geo GeoMatcher, ip netip.Addr) bool {
	if len(r.Countries) == 0 || geo == nil {
		return false
	}
	code, ok := geo.CountryCode(ip)
	if !ok {
		return false
	}
	for _, c := range r.Countries {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// Action names the next stage for each direction an [Action] selects
// (spec §4.5, "each action names {tcp_next, udp_next, resolver}").
type Action struct {
	TCPNext  string
	UDPNext  string
	Resolver string
}

// RuleDispatcher matches a destination against GeoIP and domain-set
// rules, deferring to asynchronous resolution when a rule needs IP data
// for a domain destination and a resolver is configured (spec §4.5,
// "Rule dispatcher").
type RuleDispatcher struct {
	Actions []Action
	Rules   []Rule
	Geo     GeoMatcher
	Resolve func(ctx context.Context, name string) ([]netip.Addr, error)
}

// Compile validates every rule's domain patterns (regex compilation in
// particular) and action indices ahead of first use.
func (d *RuleDispatcher) Compile() error {
	if len(d.Actions) > MaxActions {
		return fmt.Errorf("dispatch: %d actions exceeds the %d-action limit", len(d.Actions), MaxActions)
	}
	for i := range d.Rules {
		if err := d.Rules[i].compile(); err != nil {
			return err
		}
		if int(d.Rules[i].Action) >= len(d.Actions) {
			return fmt.Errorf("dispatch: rule %d references undeclared action %d", i, d.Rules[i].Action)
		}
	}
	return nil
}

// matchOnce tries every rule against dst without resolving domains to
// IPs, returning the packed handle and matched action on success.
func (d *RuleDispatcher) matchOnce(dst flow.Peer) (uint32, Action, bool) {
	for i := range d.Rules {
		r := &d.Rules[i]
		var matched bool
		switch dst.Host.Kind {
		case flow.HostDomainName:
			matched = r.matchesDomain(dst.Host.Domain)
		case flow.HostIP:
			matched = r.matchesIP(d.Geo, dst.Host.IP)
		}
		if matched {
			return PackHandle(r.Action, uint32(i)), d.Actions[r.Action], true
		}
	}
	return 0, Action{}, false
}

// Match resolves dst to an action, transparently resolving a domain
// destination to IPs and re-matching when the first pass found no
// domain-set match but a rule needs IP data. The resolution is one
// synchronous call to d.Resolve inside Match; it does not run in a
// separate task or query v4 and v6 separately.
func (d *RuleDispatcher) Match(ctx context.Context, dst flow.Peer) (uint32, Action, error) {
	if handle, action, ok := d.matchOnce(dst); ok {
		return handle, action, nil
	}

	if dst.Host.Kind != flow.HostDomainName || d.Resolve == nil || !d.anyRuleNeedsIP() {
		return 0, Action{}, flow.ErrNoOutbound
	}

	ips, err := d.Resolve(ctx, dst.Host.Domain)
	if err != nil || len(ips) == 0 {
		return 0, Action{}, flow.ErrNoOutbound
	}
	for _, ip := range ips {
		resolved := flow.Peer{Host: flow.NewHostIP(ip), Port: dst.Port}
		if handle, action, ok := d.matchOnce(resolved); ok {
			return handle, action, nil
		}
	}
	return 0, Action{}, flow.ErrNoOutbound
}

func (d *RuleDispatcher) anyRuleNeedsIP() bool {
	for i := range d.Rules {
		if d.Rules[i].needsIP() {
			return true
		}
	}
	return false
}
