// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"net/netip"
	"testing"

	"github.com/bassosimone/flowplane/flow"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	spec, err := Lookup("aes-256-gcm")
	require.NoError(t, err)
	masterKey := EVPBytesToKey("udp password", spec.KeyLen)

	cases := []flow.Peer{
		{Host: flow.NewHostIP(netip.MustParseAddr("198.51.100.1")), Port: 53},
		{Host: flow.NewHostIP(netip.MustParseAddr("2001:db8::1")), Port: 853},
		{Host: flow.NewHostDomain("Example.COM."), Port: 443},
	}

	for _, dest := range cases {
		payload := []byte("dns query bytes")
		packet, err := EncodePacket(spec, masterKey, dest, payload)
		require.NoError(t, err)

		gotDest, gotPayload, err := DecodePacket(spec, masterKey, packet)
		require.NoError(t, err)
		require.Equal(t, dest.Port, gotDest.Port)
		require.Equal(t, dest.Host.String(), gotDest.Host.String())
		require.Equal(t, payload, gotPayload)
	}
}

func TestPacketRejectsTamperedCiphertext(t *testing.T) {
	spec, err := Lookup("aes-128-gcm")
	require.NoError(t, err)
	masterKey := EVPBytesToKey("password", spec.KeyLen)
	dest := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("203.0.113.1")), Port: 80}

	packet, err := EncodePacket(spec, masterKey, dest, []byte("x"))
	require.NoError(t, err)
	packet[len(packet)-1] ^= 0xFF

	_, _, err = DecodePacket(spec, masterKey, packet)
	require.Error(t, err)
}

func TestPacketRejectsStreamCipher(t *testing.T) {
	spec, err := Lookup("aes-128-ctr")
	require.NoError(t, err)
	dest := flow.Peer{Host: flow.NewHostIP(netip.MustParseAddr("203.0.113.1")), Port: 80}

	_, err = EncodePacket(spec, make([]byte, spec.KeyLen), dest, []byte("x"))
	require.Error(t, err)
}
