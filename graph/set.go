// SPDX-License-Identifier: GPL-3.0-or-later

package graph

import (
	"sync"

	"github.com/bassosimone/flowplane/flow"
)

// Set is the live, owned collection of constructed plugin instances for a
// running profile (spec §3, "Plugin-set"). Strong references are reached
// by walking provided APs from entry plugins; weak references are
// installed eagerly by the cyclic-constructor protocol in [Cell].
//
// Steady-state access (after [Loader.LoadAll] returns) is read-only: Set
// is mutated only during load and during [Set.Teardown].
type Set struct {
	mu sync.Mutex

	streamHandlers    map[AP]*Cell[flow.StreamHandler]
	streamOutbounds   map[AP]*Cell[flow.StreamOutboundFactory]
	datagramHandlers  map[AP]*Cell[flow.DatagramHandler]
	datagramOutbounds map[AP]*Cell[flow.DatagramOutboundFactory]
	resolvers         map[AP]*Cell[flow.Resolver]
	tuns              map[AP]*Cell[flow.Tun]
}

// NewSet returns an empty [*Set].
func NewSet() *Set {
	return &Set{
		streamHandlers:    make(map[AP]*Cell[flow.StreamHandler]),
		streamOutbounds:   make(map[AP]*Cell[flow.StreamOutboundFactory]),
		datagramHandlers:  make(map[AP]*Cell[flow.DatagramHandler]),
		datagramOutbounds: make(map[AP]*Cell[flow.DatagramOutboundFactory]),
		resolvers:         make(map[AP]*Cell[flow.Resolver]),
		tuns:              make(map[AP]*Cell[flow.Tun]),
	}
}

// cellStreamHandler returns (creating if absent) the Cell for ap.
func (s *Set) cellStreamHandler(ap AP) *Cell[flow.StreamHandler] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.streamHandlers[ap]
	if !ok {
		c = NewCell[flow.StreamHandler]()
		s.streamHandlers[ap] = c
	}
	return c
}

func (s *Set) cellStreamOutbound(ap AP) *Cell[flow.StreamOutboundFactory] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.streamOutbounds[ap]
	if !ok {
		c = NewCell[flow.StreamOutboundFactory]()
		s.streamOutbounds[ap] = c
	}
	return c
}

func (s *Set) cellDatagramHandler(ap AP) *Cell[flow.DatagramHandler] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.datagramHandlers[ap]
	if !ok {
		c = NewCell[flow.DatagramHandler]()
		s.datagramHandlers[ap] = c
	}
	return c
}

func (s *Set) cellDatagramOutbound(ap AP) *Cell[flow.DatagramOutboundFactory] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.datagramOutbounds[ap]
	if !ok {
		c = NewCell[flow.DatagramOutboundFactory]()
		s.datagramOutbounds[ap] = c
	}
	return c
}

func (s *Set) cellResolver(ap AP) *Cell[flow.Resolver] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.resolvers[ap]
	if !ok {
		c = NewCell[flow.Resolver]()
		s.resolvers[ap] = c
	}
	return c
}

func (s *Set) cellTun(ap AP) *Cell[flow.Tun] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.tuns[ap]
	if !ok {
		c = NewCell[flow.Tun]()
		s.tuns[ap] = c
	}
	return c
}

// StreamHandler resolves ap to a strong [flow.StreamHandler], if loaded.
func (s *Set) StreamHandler(ap AP) (flow.StreamHandler, bool) {
	return s.cellStreamHandler(ap).Strong()
}

// StreamOutbound resolves ap to a strong [flow.StreamOutboundFactory].
func (s *Set) StreamOutbound(ap AP) (flow.StreamOutboundFactory, bool) {
	return s.cellStreamOutbound(ap).Strong()
}

// DatagramHandler resolves ap to a strong [flow.DatagramHandler].
func (s *Set) DatagramHandler(ap AP) (flow.DatagramHandler, bool) {
	return s.cellDatagramHandler(ap).Strong()
}

// DatagramOutbound resolves ap to a strong [flow.DatagramOutboundFactory].
func (s *Set) DatagramOutbound(ap AP) (flow.DatagramOutboundFactory, bool) {
	return s.cellDatagramOutbound(ap).Strong()
}

// ResolverAP resolves ap to a strong [flow.Resolver].
func (s *Set) ResolverAP(ap AP) (flow.Resolver, bool) {
	return s.cellResolver(ap).Strong()
}

// TunAP resolves ap to a strong [flow.Tun].
func (s *Set) TunAP(ap AP) (flow.Tun, bool) {
	return s.cellTun(ap).Strong()
}

// WeakStreamHandler returns a weak handle for ap, creating the backing
// cell if needed. Used by plugins installing self-references before
// resolving their own dependencies (spec §4.4 step 1, §9).
func (s *Set) WeakStreamHandler(ap AP) *Weak[flow.StreamHandler] {
	return s.cellStreamHandler(ap).Weak()
}

func (s *Set) WeakStreamOutbound(ap AP) *Weak[flow.StreamOutboundFactory] {
	return s.cellStreamOutbound(ap).Weak()
}

func (s *Set) WeakDatagramHandler(ap AP) *Weak[flow.DatagramHandler] {
	return s.cellDatagramHandler(ap).Weak()
}

func (s *Set) WeakDatagramOutbound(ap AP) *Weak[flow.DatagramOutboundFactory] {
	return s.cellDatagramOutbound(ap).Weak()
}

func (s *Set) WeakResolver(ap AP) *Weak[flow.Resolver] {
	return s.cellResolver(ap).Weak()
}

func (s *Set) WeakTun(ap AP) *Weak[flow.Tun] {
	return s.cellTun(ap).Weak()
}

// FillStreamHandler installs the strong value for ap (step 3 of load).
func (s *Set) FillStreamHandler(ap AP, v flow.StreamHandler) {
	s.cellStreamHandler(ap).Fill(v)
}

func (s *Set) FillStreamOutbound(ap AP, v flow.StreamOutboundFactory) {
	s.cellStreamOutbound(ap).Fill(v)
}

func (s *Set) FillDatagramHandler(ap AP, v flow.DatagramHandler) {
	s.cellDatagramHandler(ap).Fill(v)
}

func (s *Set) FillDatagramOutbound(ap AP, v flow.DatagramOutboundFactory) {
	s.cellDatagramOutbound(ap).Fill(v)
}

func (s *Set) FillResolver(ap AP, v flow.Resolver) {
	s.cellResolver(ap).Fill(v)
}

func (s *Set) FillTun(ap AP, v flow.Tun) {
	s.cellTun(ap).Fill(v)
}

// Teardown drops every strong reference in the fixed order spec §4.4
// mandates: stream handlers, stream outbounds, datagram handlers,
// datagram outbounds, resolvers, tun. Callers must abort every
// background task tracked against these plugins before calling Teardown
// (spec §4.4, §5); Teardown itself only drops pointers.
func (s *Set) Teardown() {
	s.mu.Lock()
	sh, so := s.streamHandlers, s.streamOutbounds
	dh, do := s.datagramHandlers, s.datagramOutbounds
	res, tun := s.resolvers, s.tuns
	s.streamHandlers = make(map[AP]*Cell[flow.StreamHandler])
	s.streamOutbounds = make(map[AP]*Cell[flow.StreamOutboundFactory])
	s.datagramHandlers = make(map[AP]*Cell[flow.DatagramHandler])
	s.datagramOutbounds = make(map[AP]*Cell[flow.DatagramOutboundFactory])
	s.resolvers = make(map[AP]*Cell[flow.Resolver])
	s.tuns = make(map[AP]*Cell[flow.Tun])
	s.mu.Unlock()

	for _, c := range sh {
		c.Drop()
	}
	for _, c := range so {
		c.Drop()
	}
	for _, c := range dh {
		c.Drop()
	}
	for _, c := range do {
		c.Drop()
	}
	for _, c := range res {
		c.Drop()
	}
	for _, c := range tun {
		c.Drop()
	}
}
