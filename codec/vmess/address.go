// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/bassosimone/flowplane/flow"
)

// encodeAddress appends the VMess destination encoding (port, then
// address-type tag and address bytes) to dst.
func encodeAddress(dst []byte, dest flow.Peer) ([]byte, error) {
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], dest.Port)
	dst = append(dst, portBuf[:]...)

	switch dest.Host.Kind {
	case flow.HostIP:
		if dest.Host.IP.Is4() {
			dst = append(dst, addrTypeIPv4)
			b := dest.Host.IP.As4()
			dst = append(dst, b[:]...)
		} else {
			dst = append(dst, addrTypeIPv6)
			b := dest.Host.IP.As16()
			dst = append(dst, b[:]...)
		}
	case flow.HostDomainName:
		if len(dest.Host.Domain) > 255 {
			return nil, fmt.Errorf("vmess: domain name too long")
		}
		dst = append(dst, addrTypeDomain, byte(len(dest.Host.Domain)))
		dst = append(dst, dest.Host.Domain...)
	default:
		return nil, fmt.Errorf("vmess: unknown host kind")
	}
	return dst, nil
}

// decodeAddress decodes a VMess destination (port first, then the
// address tag and bytes) from the front of buf, returning the decoded
// peer and the number of bytes consumed.
func decodeAddress(buf []byte) (flow.Peer, int, error) {
	if len(buf) < 3 {
		return flow.Peer{}, 0, flow.ErrUnexpectedData
	}
	port := binary.BigEndian.Uint16(buf[:2])
	switch buf[2] {
	case addrTypeIPv4:
		if len(buf) < 3+4 {
			return flow.Peer{}, 0, flow.ErrUnexpectedData
		}
		var a [4]byte
		copy(a[:], buf[3:7])
		return flow.Peer{Host: flow.NewHostIP(netip.AddrFrom4(a)), Port: port}, 7, nil
	case addrTypeIPv6:
		if len(buf) < 3+16 {
			return flow.Peer{}, 0, flow.ErrUnexpectedData
		}
		var a [16]byte
		copy(a[:], buf[3:19])
		return flow.Peer{Host: flow.NewHostIP(netip.AddrFrom16(a)), Port: port}, 19, nil
	case addrTypeDomain:
		if len(buf) < 4 {
			return flow.Peer{}, 0, flow.ErrUnexpectedData
		}
		n := int(buf[3])
		if len(buf) < 4+n {
			return flow.Peer{}, 0, flow.ErrUnexpectedData
		}
		name := string(buf[4 : 4+n])
		return flow.Peer{Host: flow.NewHostDomain(name), Port: port}, 4 + n, nil
	default:
		return flow.Peer{}, 0, flow.ErrUnexpectedData
	}
}
