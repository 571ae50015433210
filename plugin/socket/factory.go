// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/graph"
	"github.com/bassosimone/nop"
)

// Param is the descriptor parameter for the socket plugin: which
// access points it should provide. A profile typically declares one
// instance providing both, named e.g. "direct".
type Param struct {
	TCP bool `cbor:"tcp"`
	UDP bool `cbor:"udp"`
}

// Factory implements [graph.Factory] for the leaf OS-socket plugin: it
// has no Requires of its own (spec §4.6's resolve-then-connect
// pipeline ends here) and provides stream/datagram outbound access
// points backed directly by [StreamOutboundFactory]/[DatagramOutboundFactory].
type Factory struct {
	param Param
}

// NewFactory returns an empty [*Factory] suitable for registration
// with a [graph.Registry].
func NewFactory() *Factory {
	return &Factory{}
}

// Parse implements [graph.Factory].
func (*Factory) Parse(desc graph.Descriptor) (*graph.ParsedPlugin, error) {
	var p Param
	if len(desc.Param) > 0 {
		if err := config.DecodeParam(desc.Param, &p); err != nil {
			return nil, fmt.Errorf("socket: %w", err)
		}
	} else {
		p = Param{TCP: true, UDP: true}
	}
	var provides []graph.Provision
	if p.TCP {
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamOutboundFactory})
	}
	if p.UDP {
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "udp"), Type: graph.APDatagramOutboundFactory})
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &Factory{param: p},
		Provides:   provides,
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	cfg := nop.NewConfig()
	if f.param.TCP {
		set.FillStreamOutbound(graph.NewAP(name, "tcp"), NewStreamOutboundFactory(cfg, nop.DefaultSLogger()))
	}
	if f.param.UDP {
		set.FillDatagramOutbound(graph.NewAP(name, "udp"), NewDatagramOutboundFactory(cfg))
	}
	return nil
}
