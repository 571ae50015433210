// SPDX-License-Identifier: GPL-3.0-or-later
//
// Switch's atomic-pointer one-of-N selection and optional rendezvous
// weighted mode are grounded on spec.md §4.5 ("a mutable one-of-N
// pointer guarded by an atomic swap") and the open question in §9
// analog about weighted selection, resolved here by layering
// github.com/dgryski/go-rendezvous on top of the plain index-swap path
// rather than replacing it, so the common case stays a cheap atomic
// load.

package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// IndexStore persists and restores the current selection index, backing
// the "control responder persists the current index to the plugin
// cache" requirement of spec §4.5. It is the same shape as
// store.PluginCache; declared locally to keep dispatch free of a
// dependency on store's concrete types.
type IndexStore interface {
	SaveIndex(key string, index int) error
	LoadIndex(key string) (int, bool, error)
}

// Switch holds N candidate stream/datagram outbound factories and
// atomically swaps which one is selected.
type Switch struct {
	Key       string
	Members   []flow.StreamOutboundFactory
	DGMembers []flow.DatagramOutboundFactory
	Store     IndexStore

	// Rendezvous, when non-nil, enables weighted selection by a
	// caller-supplied key (e.g. the flow's destination host) instead of
	// the plain index swap.
	Rendezvous *rendezvous.Table

	current atomic.Int64
}

// Restore loads the persisted index from Store, defaulting to 0 if
// nothing has been saved yet.
func (s *Switch) Restore() error {
	if s.Store == nil {
		return nil
	}
	idx, ok, err := s.Store.LoadIndex(s.Key)
	if err != nil {
		return err
	}
	if ok {
		s.current.Store(int64(idx))
	}
	return nil
}

// Select atomically swaps the active index and persists it.
func (s *Switch) Select(index int) error {
	if index < 0 || index >= len(s.Members) {
		return fmt.Errorf("dispatch: switch index %d out of range [0,%d)", index, len(s.Members))
	}
	s.current.Store(int64(index))
	if s.Store != nil {
		return s.Store.SaveIndex(s.Key, index)
	}
	return nil
}

// Current returns the active index.
func (s *Switch) Current() int {
	return int(s.current.Load())
}

// DialStream implements [flow.StreamOutboundFactory] by delegating to
// the currently-selected member, or to the rendezvous-weighted member
// keyed on the destination host when Rendezvous is configured.
func (s *Switch) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	idx := s.Current()
	if s.Rendezvous != nil {
		idx = s.weightedIndex(fctx)
	}
	if idx < 0 || idx >= len(s.Members) {
		return nil, flow.ErrNoOutbound
	}
	return s.Members[idx].DialStream(ctx, fctx, initialData)
}

// DialDatagram implements [flow.DatagramOutboundFactory], mirroring
// DialStream's selection logic over DGMembers.
func (s *Switch) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	idx := s.Current()
	if s.Rendezvous != nil {
		idx = s.weightedIndex(fctx)
	}
	if idx < 0 || idx >= len(s.DGMembers) {
		return nil, flow.ErrNoOutbound
	}
	return s.DGMembers[idx].DialDatagram(ctx, fctx)
}

func (s *Switch) weightedIndex(fctx *flow.Context) int {
	key := fctx.RemotePeer.Host.String()
	node := s.Rendezvous.Get(key)
	for i, m := range memberNames(s.Members) {
		if m == node {
			return i
		}
	}
	return s.Current()
}

// memberNames returns a stable per-member node name (its slice index as
// a string) for rendezvous.New, keeping the hash ring keyed on position
// rather than requiring members to self-name.
func memberNames(members []flow.StreamOutboundFactory) []string {
	names := make([]string, len(members))
	for i := range members {
		names[i] = fmt.Sprintf("%d", i)
	}
	return names
}

// NewRendezvousTable builds the weighted hash ring for n members, keyed
// by xxhash (already a transitive dependency via the prometheus client,
// promoted to direct use here).
func NewRendezvousTable(n int) *rendezvous.Table {
	nodes := make([]string, n)
	for i := range nodes {
		nodes[i] = fmt.Sprintf("%d", i)
	}
	return rendezvous.New(nodes, xxhash.Sum64String)
}
