// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"crypto/rand"
	"fmt"

	"github.com/bassosimone/flowplane/flow"
)

// EncodePacket encrypts a single Shadowsocks UDP datagram in one shot
// with a fresh subkey derived from a fresh IV (spec §4.2, "Datagram SS"):
//
//	[IV][encrypted: dest-header ‖ payload][tag]
func EncodePacket(spec CipherSpec, masterKey []byte, dest flow.Peer, payload []byte) ([]byte, error) {
	if spec.Family != FamilyAEAD {
		return nil, fmt.Errorf("shadowsocks: datagram framing requires an AEAD cipher")
	}
	iv := make([]byte, spec.IVLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	subkey, err := DeriveSubkey(masterKey, iv, spec.KeyLen)
	if err != nil {
		return nil, err
	}
	aead, err := spec.newAEAD(subkey)
	if err != nil {
		return nil, err
	}
	hdr, err := EncodeAddress(dest)
	if err != nil {
		return nil, err
	}
	plaintext := append(hdr, payload...)
	zeroNonce := make([]byte, aead.NonceSize())
	out := make([]byte, 0, len(iv)+len(plaintext)+aead.Overhead())
	out = append(out, iv...)
	out = aead.Seal(out, zeroNonce, plaintext, nil)
	return out, nil
}

// DecodePacket reverses [EncodePacket], returning the decoded destination
// and payload.
func DecodePacket(spec CipherSpec, masterKey []byte, packet []byte) (flow.Peer, []byte, error) {
	if spec.Family != FamilyAEAD {
		return flow.Peer{}, nil, fmt.Errorf("shadowsocks: datagram framing requires an AEAD cipher")
	}
	if len(packet) < spec.IVLen {
		return flow.Peer{}, nil, flow.ErrUnexpectedData
	}
	iv := packet[:spec.IVLen]
	sealed := packet[spec.IVLen:]
	subkey, err := DeriveSubkey(masterKey, iv, spec.KeyLen)
	if err != nil {
		return flow.Peer{}, nil, err
	}
	aead, err := spec.newAEAD(subkey)
	if err != nil {
		return flow.Peer{}, nil, err
	}
	zeroNonce := make([]byte, aead.NonceSize())
	plaintext, err := aead.Open(nil, zeroNonce, sealed, nil)
	if err != nil {
		return flow.Peer{}, nil, flow.ErrUnexpectedData
	}
	dest, n, err := DecodeAddress(plaintext)
	if err != nil {
		return flow.Peer{}, nil, err
	}
	return dest, plaintext[n:], nil
}
