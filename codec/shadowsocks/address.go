// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"encoding/binary"
	"fmt"

	"github.com/bassosimone/flowplane/flow"
)

const (
	addrTypeIPv4   = 0x01
	addrTypeDomain = 0x03
	addrTypeIPv6   = 0x04
)

// EncodeAddress encodes dest as the Shadowsocks destination header:
// 0x01+ipv4 | 0x03+len+domain | 0x04+ipv6, followed by a big-endian port
// (spec §4.2 step 1).
func EncodeAddress(dest flow.Peer) ([]byte, error) {
	var out []byte
	switch dest.Host.Kind {
	case flow.HostIP:
		if dest.Host.IP.Is4() {
			out = append(out, addrTypeIPv4)
			b := dest.Host.IP.As4()
			out = append(out, b[:]...)
		} else {
			out = append(out, addrTypeIPv6)
			b := dest.Host.IP.As16()
			out = append(out, b[:]...)
		}
	case flow.HostDomainName:
		if len(dest.Host.Domain) > 255 {
			return nil, fmt.Errorf("shadowsocks: domain name too long")
		}
		out = append(out, addrTypeDomain, byte(len(dest.Host.Domain)))
		out = append(out, dest.Host.Domain...)
	default:
		return nil, fmt.Errorf("shadowsocks: unknown host kind")
	}
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], dest.Port)
	out = append(out, portBuf[:]...)
	return out, nil
}

// DecodeAddress decodes a Shadowsocks destination header from the front
// of buf, returning the decoded peer and the number of bytes consumed.
func DecodeAddress(buf []byte) (flow.Peer, int, error) {
	if len(buf) < 1 {
		return flow.Peer{}, 0, flow.ErrUnexpectedData
	}
	switch buf[0] {
	case addrTypeIPv4:
		if len(buf) < 1+4+2 {
			return flow.Peer{}, 0, flow.ErrUnexpectedData
		}
		ip := netipAddrFrom4(buf[1:5])
		port := binary.BigEndian.Uint16(buf[5:7])
		return flow.Peer{Host: flow.NewHostIP(ip), Port: port}, 7, nil
	case addrTypeIPv6:
		if len(buf) < 1+16+2 {
			return flow.Peer{}, 0, flow.ErrUnexpectedData
		}
		ip := netipAddrFrom16(buf[1:17])
		port := binary.BigEndian.Uint16(buf[17:19])
		return flow.Peer{Host: flow.NewHostIP(ip), Port: port}, 19, nil
	case addrTypeDomain:
		if len(buf) < 2 {
			return flow.Peer{}, 0, flow.ErrUnexpectedData
		}
		n := int(buf[1])
		if len(buf) < 2+n+2 {
			return flow.Peer{}, 0, flow.ErrUnexpectedData
		}
		name := string(buf[2 : 2+n])
		port := binary.BigEndian.Uint16(buf[2+n : 2+n+2])
		return flow.Peer{Host: flow.NewHostDomain(name), Port: port}, 2 + n + 2, nil
	default:
		return flow.Peer{}, 0, flow.ErrUnexpectedData
	}
}
