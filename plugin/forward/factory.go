// SPDX-License-Identifier: GPL-3.0-or-later

// Package forward registers [dispatch.Forward], the terminal leaf
// handler, as a graph plugin: it requires a stream outbound to dial and
// provides a stream handler that copies bytes until either side closes
// (spec §4.5, "Forward").
package forward

import (
	"context"
	"fmt"
	"sync"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/dispatch"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/prometheus/client_golang/prometheus"
)

// Param is the descriptor parameter for a forward plugin instance.
type Param struct {
	Next    string `cbor:"next"`
	Metrics bool   `cbor:"metrics"`
}

// Factory implements [graph.Factory] for the forward leaf.
type Factory struct {
	param Param
}

// NewFactory returns an empty [*Factory] suitable for registration with
// a [graph.Registry].
func NewFactory() *Factory {
	return &Factory{}
}

// Parse implements [graph.Factory].
func (*Factory) Parse(desc graph.Descriptor) (*graph.ParsedPlugin, error) {
	var p Param
	if err := config.DecodeParam(desc.Param, &p); err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	if p.Next == "" {
		return nil, fmt.Errorf("forward: next must be set")
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Requires:   []graph.Requirement{{AP: graph.NewAP(p.Next, "tcp"), Type: graph.APStreamOutboundFactory}},
		Provides:   []graph.Provision{{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamHandler}},
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	selfAP := graph.NewAP(name, "tcp")
	_ = set.WeakStreamHandler(selfAP)

	nextAP := graph.NewAP(f.param.Next, "tcp")
	weak := set.WeakStreamOutbound(nextAP)
	resolve(ctx, nextAP)

	var metrics *dispatch.ForwardMetrics
	if f.param.Metrics {
		metrics = sharedMetrics()
	}

	set.FillStreamHandler(selfAP, &dispatch.Forward{
		Outbound: &weakOutbound{weak: weak},
		Metrics:  metrics,
	})
	return nil
}

// metricsOnce/metricsInstance back sharedMetrics: every forward instance
// in a process reports through the same counters/gauge, matching spec
// §4.5's "global TCP-connection / UDP-session gauge" rather than one set
// per plugin instance.
var (
	metricsOnce     sync.Once
	metricsInstance *dispatch.ForwardMetrics
)

func sharedMetrics() *dispatch.ForwardMetrics {
	metricsOnce.Do(func() {
		m, err := dispatch.NewForwardMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			// A previous registration (e.g. a test re-using the default
			// registry) beat us to it; fall back to no metrics rather
			// than fail the whole plugin load over an observability leg.
			return
		}
		metricsInstance = m
	})
	return metricsInstance
}

// weakOutbound resolves Next through a weak handle at dial time so a
// torn-down dependency surfaces as [flow.ErrNoOutbound].
type weakOutbound struct {
	weak *graph.Weak[flow.StreamOutboundFactory]
}

func (o *weakOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	next, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	return next.DialStream(ctx, fctx, initialData)
}
