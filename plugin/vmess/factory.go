// SPDX-License-Identifier: GPL-3.0-or-later

// Package vmess registers the VMess codec engine (codec/vmess) as a
// graph plugin, mirroring plugin/shadowsocks's shape: it requires a
// lower stream outbound and provides a stream outbound performing the
// VMess AEAD (or legacy) handshake before handing off (spec §4.3).
package vmess

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/codec/vmess"
	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/google/uuid"
)

// Param is the descriptor parameter for a VMess outbound plugin.
type Param struct {
	Lower    string `cbor:"lower"`
	UserID   string `cbor:"user_id"`
	AlterID  uint16 `cbor:"alter_id"`
	Security string `cbor:"security"`
}

// Factory implements [graph.Factory] for the VMess outbound.
type Factory struct {
	param    Param
	userID   [16]byte
	security vmess.Security
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
		return nil, fmt.Errorf("vmess: %w", err)
	}
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		return nil, fmt.Errorf("vmess: parsing user_id: %w", err)
	}
	security, err := parseSecurity(p.Security)
	if err != nil {
		return nil, fmt.Errorf("vmess: %w", err)
	}
	f := &Factory{param: p, userID: [16]byte(id), security: security}
	return &graph.ParsedPlugin{
		Descriptor: desc,
		Factory:    f,
		Requires:   []graph.Requirement{{AP: graph.NewAP(p.Lower, "tcp"), Type: graph.APStreamOutboundFactory}},
		Provides:   []graph.Provision{{AP: graph.NewAP(desc.Name, "tcp"), Type: graph.APStreamOutboundFactory}},
	}, nil
}

// Load implements [graph.Factory].
func (f *Factory) Load(ctx context.Context, name string, set *graph.Set, resolve graph.ResolveFunc) error {
	selfAP := graph.NewAP(name, "tcp")
	_ = set.WeakStreamOutbound(selfAP)

	lowerAP := graph.NewAP(f.param.Lower, "tcp")
	weak := set.WeakStreamOutbound(lowerAP)
	resolve(ctx, lowerAP)

	out := &vmessOutbound{weak: weak, userID: f.userID, alterID: f.param.AlterID, security: f.security}
	set.FillStreamOutbound(selfAP, out)
	return nil
}

type vmessOutbound struct {
	weak     *graph.Weak[flow.StreamOutboundFactory]
	userID   [16]byte
	alterID  uint16
	security vmess.Security
}

func (o *vmessOutbound) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	lower, ok := o.weak.Upgrade()
	if !ok {
		return nil, flow.ErrNoOutbound
	}
	factory := &vmess.OutboundFactory{Lower: lower, UserID: o.userID, AlterID: o.alterID, Security: o.security}
	return factory.DialStream(ctx, fctx, initialData)
}

func parseSecurity(name string) (vmess.Security, error) {
	switch name {
	case "", "auto":
		return vmess.SecurityAuto, nil
	case "none":
		return vmess.SecurityNone, nil
	case "aes-128-gcm":
		return vmess.SecurityAES128GCM, nil
	case "chacha20-poly1305":
		return vmess.SecurityChacha20Poly1305, nil
	default:
		return 0, fmt.Errorf("unknown security %q", name)
	}
}
