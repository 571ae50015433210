// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
)

// DatagramOutboundFactory dials a Shadowsocks UDP session over a lower
// [flow.DatagramOutboundFactory] bound to the proxy server (spec §4.2,
// "Datagram SS"). Every packet carries its own destination header and its
// own fresh IV and subkey, so the server address supplied at dial time
// never limits which destination a later SendTo targets.
type DatagramOutboundFactory struct {
	Lower    flow.DatagramOutboundFactory
	Cipher   string
	Password string
}

// NewDatagramOutboundFactory resolves cipherName against the cipher
// table, rejecting stream ciphers (Shadowsocks UDP framing requires AEAD).
func NewDatagramOutboundFactory(lower flow.DatagramOutboundFactory, cipherName, password string) (*DatagramOutboundFactory, error) {
	spec, err := Lookup(cipherName)
	if err != nil {
		return nil, err
	}
	if spec.Family != FamilyAEAD {
		return nil, fmt.Errorf("shadowsocks: datagram framing requires an AEAD cipher, got %q", cipherName)
	}
	return &DatagramOutboundFactory{Lower: lower, Cipher: cipherName, Password: password}, nil
}

// DialDatagram implements [flow.DatagramOutboundFactory].
func (f *DatagramOutboundFactory) DialDatagram(ctx context.Context, fctx *flow.Context) (flow.Datagram, error) {
	spec, err := Lookup(f.Cipher)
	if err != nil {
		return nil, err
	}
	lower, err := f.Lower.DialDatagram(ctx, fctx)
	if err != nil {
		return nil, fmt.Errorf("shadowsocks: dialing lower datagram session: %w", err)
	}
	return &datagramSession{
		lower:      lower,
		spec:       spec,
		masterKey:  EVPBytesToKey(f.Password, spec.KeyLen),
		serverPeer: fctx.RemotePeer,
	}, nil
}

// datagramSession implements [flow.Datagram] by framing and unframing
// Shadowsocks UDP packets around a lower datagram session addressed to
// the proxy server.
type datagramSession struct {
	lower      flow.Datagram
	spec       CipherSpec
	masterKey  []byte
	serverPeer flow.Peer
}

func (s *datagramSession) RecvFrom(ctx context.Context) (flow.Peer, *buffer.Buffer, error) {
	peer, buf, err := s.lower.RecvFrom(ctx)
	if err != nil || buf == nil {
		return peer, buf, err
	}
	dest, payload, err := DecodePacket(s.spec, s.masterKey, buf.Bytes())
	if err != nil {
		return flow.Peer{}, nil, err
	}
	return dest, buffer.Wrap(payload), nil
}

func (s *datagramSession) SendReady(ctx context.Context) error {
	return s.lower.SendReady(ctx)
}

func (s *datagramSession) SendTo(ctx context.Context, dest flow.Peer, buf *buffer.Buffer) error {
	encoded, err := EncodePacket(s.spec, s.masterKey, dest, buf.Bytes())
	if err != nil {
		return err
	}
	return s.lower.SendTo(ctx, s.serverPeer, buffer.Wrap(encoded))
}

func (s *datagramSession) Shutdown() error {
	return s.lower.Shutdown()
}
