// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import "net/netip"

func netipAddrFrom4(b []byte) netip.Addr {
	var a [4]byte
	copy(a[:], b)
	return netip.AddrFrom4(a)
}

func netipAddrFrom16(b []byte) netip.Addr {
	var a [16]byte
	copy(a[:], b)
	return netip.AddrFrom16(a)
}
