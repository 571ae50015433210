// SPDX-License-Identifier: GPL-3.0-or-later

package socks5

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
)

// Param is the descriptor parameter for a SOCKS5 inbound plugin.
type Param struct {
	Next string `cbor:"next"`
}

// Factory implements [graph.Factory] for the SOCKS5 inbound handler.
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
		return nil, fmt.Errorf("socks5: %w", err)
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Requires:   []graph.Requirement{{AP: graph.NewAP(p.Next, "tcp"), Type: graph.APStreamHandler}},
		Provides:   []graph.Provision{{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamHandler}},
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	selfAP := graph.NewAP(name, "tcp")
	_ = set.WeakStreamHandler(selfAP)

	nextAP := graph.NewAP(f.param.Next, "tcp")
	weak := set.WeakStreamHandler(nextAP)
	resolve(ctx, nextAP)

	set.FillStreamHandler(selfAP, &weakHandler{weak: weak})
	return nil
}

// weakHandler adapts a [*graph.Weak] stream-handler dependency to
// [flow.StreamHandler] so [Handler] can hold onto it across teardown
// without caching a stale strong pointer.
type weakHandler struct {
	weak *graph.Weak[flow.StreamHandler]
}

func (w *weakHandler) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	next, ok := w.weak.Upgrade()
	if !ok {
		return flow.ErrNoOutbound
	}
	h := &Handler{Next: next}
	return h.HandleStream(ctx, fctx, lower)
}
