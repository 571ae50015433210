// SPDX-License-Identifier: GPL-3.0-or-later

package nullreject

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/graph"
)

// NullFactory implements [graph.Factory] for the "null" plugin type: it
// provides stream-outbound, datagram-outbound, and resolver access
// points that always fail. A profile declares which access points it
// actually wants via Param.
type NullFactory struct {
	param NullParam
}

// NullParam selects which access points a "null" plugin instance
// provides; omitted fields simply aren't registered.
type NullParam struct {
	TCP      bool `cbor:"tcp"`
	UDP      bool `cbor:"udp"`
	Resolver bool `cbor:"resolver"`
}

// NewNullFactory returns an empty [*NullFactory] suitable for
// registration with a [graph.Registry].
func NewNullFactory() *NullFactory {
	return &NullFactory{}
}

// Parse implements [graph.Factory].
func (*NullFactory) Parse(desc graph.Descriptor) (*graph.ParsedPlugin, error) {
	var p NullParam
	// An absent or empty Param means "provide everything": Null has no
	// state to misconfigure, so there is nothing to validate.
	if len(desc.Param) > 0 {
		if err := config.DecodeParam(desc.Param, &p); err != nil {
			return nil, fmt.Errorf("nullreject: %w", err)
		}
	} else {
		p = NullParam{TCP: true, UDP: true, Resolver: true}
	}
	var provides []graph.Provision
	if p.TCP {
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamOutboundFactory})
	}
	if p.UDP {
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "udp"), Type: graph.APDatagramOutboundFactory})
	}
	if p.Resolver {
		provides = append(provides, graph.Provision{AP: graph.NewAP(desc.Name, "dns"), Type: graph.APResolver})
	}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &NullFactory{param: p},
		Provides:   provides,
	}, nil
}

// Load implements [graph.Factory].
func (f *NullFactory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	if f.param.TCP {
		set.FillStreamOutbound(graph.NewAP(name, "tcp"), Null{})
	}
	if f.param.UDP {
		set.FillDatagramOutbound(graph.NewAP(name, "udp"), Null{})
	}
	if f.param.Resolver {
		set.FillResolver(graph.NewAP(name, "dns"), Null{})
	}
	return nil
}

// RejectFactory implements [graph.Factory] for the "reject" plugin
// type: it provides a stream-handler and datagram-handler access point
// that silently drop every incoming flow.
type RejectFactory struct{}

// NewRejectFactory returns an empty [*RejectFactory] suitable for
// registration with a [graph.Registry].
func NewRejectFactory() *RejectFactory {
	return &RejectFactory{}
}

// Parse implements [graph.Factory].
func (*RejectFactory) Parse(desc graph.Descriptor) (*graph.ParsedPlugin, error) {
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    &RejectFactory{},
		Provides: []graph.Provision{
			{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamHandler},
			{AP: graph.NewAP(desc.Name, "udp"), Type: graph.APDatagramHandler},
		},
	}, nil
}

// Load implements [graph.Factory].
func (*RejectFactory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	set.FillStreamHandler(graph.NewAP(name, "tcp"), RejectHandler{})
	set.FillDatagramHandler(graph.NewAP(name, "udp"), RejectHandler{})
	return nil
}
