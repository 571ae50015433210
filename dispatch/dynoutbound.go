// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
)

// ProxyRecordStore resolves a persisted proxy record by index and
// parses it into a stream/datagram outbound pair. The record storage
// and its graph-loader wiring are external collaborators (spec.md
// Non-goals: SQLite-backed profile/proxy storage); this interface is
// flowplane's seam onto them (spec §4.5, "Dyn-outbound").
type ProxyRecordStore interface {
	// Load builds the stream/datagram outbound factories for the proxy
	// record at index, using the caller-supplied shared upstream for any
	// "$out.tcp"/"$out.udp" placeholder the record's mini plugin-graph
	// references.
	Load(ctx context.Context, index int, sharedUpstream flow.StreamOutboundFactory) (flow.StreamOutboundFactory, flow.DatagramOutboundFactory, error)
}

// DynOutbound selects one persisted proxy record by index and keeps its
// parsed plugin-set alive only as long as it remains selected (spec
// §4.5, "Dyn-outbound").
type DynOutbound struct {
	Records  ProxyRecordStore
	Upstream flow.StreamOutboundFactory

	mu      sync.Mutex
	index   int
	stream  flow.StreamOutboundFactory
	dgram   flow.DatagramOutboundFactory
	loaded  bool
}

// Select atomically swaps to the proxy record at index, parsing it on
// demand; the previously-selected record's plugin-set is dropped once no
// longer referenced.
func (d *DynOutbound) Select(ctx context.Context, index int) error {
	stream, dgram, err := d.Records.Load(ctx, index, d.Upstream)
	if err != nil {
		return fmt.Errorf("dispatch: dyn-outbound record %d: %w", index, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index = index
	d.stream = stream
	d.dgram = dgram
	d.loaded = true
	return nil
}

func (d *DynOutbound) current() (flow.StreamOutboundFactory, flow.DatagramOutboundFactory, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream, d.dgram, d.loaded
}

// DialStream implements [flow.StreamOutboundFactory].
func (d *DynOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	stream, _, ok := d.current()
	if !ok || stream == nil {
		return nil, flow.ErrNoOutbound
	}
	return stream.DialStream(ctx, fctx, initialData)
}

// DialDatagram implements [flow.DatagramOutboundFactory].
func (d *DynOutbound) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	_, dgram, ok := d.current()
	if !ok || dgram == nil {
		return nil, flow.ErrNoOutbound
	}
	return dgram.DialDatagram(ctx, fctx)
}
