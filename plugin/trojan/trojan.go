// SPDX-License-Identifier: GPL-3.0-or-later

// Package trojan implements the Trojan codec leg (spec §1, "Trojan"
// alongside Shadowsocks/VMess). Trojan has no framing of its own once
// connected: the client sends a fixed handshake — a hex-encoded SHA224
// password digest, a command byte, and a Shadowsocks-shaped destination
// header — as the first bytes of an already-TLS-wrapped stream, then
// the connection carries the proxied payload verbatim. That matches
// TrojanStreamOutboundFactory in the retrieved original_source tree:
// the handshake is prepended to initial_data and handed straight to
// the lower outbound, with no codec wrapping of the resulting stream.
package trojan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/codec/shadowsocks"
	"github.com/bassosimone/flowplane/flow"
)

const (
	cmdConnect = 0x01
)

// OutboundFactory dials Lower and prepends the Trojan handshake to the
// initial data so a single lower dial (typically TLS) carries both.
type OutboundFactory struct {
	Lower    flow.StreamOutboundFactory
	Password string
}

// NewOutboundFactory returns an [*OutboundFactory] for password over lower.
func NewOutboundFactory(lower flow.StreamOutboundFactory, password string) *OutboundFactory {
	return &OutboundFactory{Lower: lower, Password: password}
}

// DialStream implements [flow.StreamOutboundFactory].
func (f *OutboundFactory) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	addr, err := shadowsocks.EncodeAddress(fctx.RemotePeer)
	if err != nil {
		return nil, fmt.Errorf("trojan: %w", err)
	}

	hash := passwordHex(f.Password)
	handshake := buffer.New(len(hash) + 2 + 1 + len(addr) + 2)
	handshake.Append(hash)
	handshake.Append([]byte("\r\n"))
	handshake.Append([]byte{cmdConnect})
	handshake.Append(addr)
	handshake.Append([]byte("\r\n"))
	if initialData != nil {
		handshake.Append(initialData.Bytes())
	}

	stream, err := f.Lower.DialStream(ctx, fctx, handshake)
	if err != nil {
		return nil, fmt.Errorf("trojan: dialing lower stream: %w", err)
	}
	return stream, nil
}

// passwordHex returns the hex-encoded SHA224 digest of password, the
// 56-byte value Trojan sends as the first handshake field.
func passwordHex(password string) []byte {
	sum := sha256.Sum224([]byte(password))
	hash := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(hash, sum[:])
	return hash
}
