// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"

	"github.com/bassosimone/flowplane/flow"
)

// requestHeader is the plaintext VMess request header (spec §4.3 step 1):
//
//	{ version=1, data_iv[16], data_key[16], res_auth, opt, padding_len<<4|security,
//	  reserved, cmd, port, addr, random[padding_len], fnv1a_checksum[4] }
type requestHeader struct {
	DataIV   [dataIVLen]byte
	DataKey  [dataKeyLen]byte
	ResAuth  byte
	Opt      byte
	Security Security
	Cmd      Command
	Dest     flow.Peer
}

// newRequestHeader builds a header with fresh random data_iv/data_key
// and res_auth, and shake size-obfuscation enabled whenever the chosen
// security leaves the size field unauthenticated (spec §4.3: "Security
// selection", "none = sizes obfuscated, bodies plain").
func newRequestHeader(cmd Command, dest flow.Peer, security Security) (*requestHeader, error) {
	h := &requestHeader{Cmd: cmd, Dest: dest, Security: ResolveSecurity(security)}
	if _, err := rand.Read(h.DataIV[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(h.DataKey[:]); err != nil {
		return nil, err
	}
	var resAuthBuf [1]byte
	if _, err := rand.Read(resAuthBuf[:]); err != nil {
		return nil, err
	}
	h.ResAuth = resAuthBuf[0]
	h.Opt = optStandard
	if h.Security == SecurityNone {
		h.Opt |= optShake
	}
	return h, nil
}

// encode appends the plaintext header (with a random 0..15 byte padding
// and a trailing FNV-1a checksum over everything preceding it) to dst.
func (h *requestHeader) encode(dst []byte) ([]byte, error) {
	start := len(dst)

	var paddingLenByte [1]byte
	if _, err := rand.Read(paddingLenByte[:]); err != nil {
		return nil, err
	}
	paddingLen := int(paddingLenByte[0] & 0x0F)

	dst = append(dst, 1) // version
	dst = append(dst, h.DataIV[:]...)
	dst = append(dst, h.DataKey[:]...)
	dst = append(dst, h.ResAuth, h.Opt, byte(paddingLen<<4)|byte(h.Security), 0 /* reserved */, byte(h.Cmd))

	var err error
	dst, err = encodeAddress(dst, h.Dest)
	if err != nil {
		return nil, err
	}

	if paddingLen > 0 {
		padding := make([]byte, paddingLen)
		if _, err := rand.Read(padding); err != nil {
			return nil, err
		}
		dst = append(dst, padding...)
	}

	sum := fnv.New32a()
	sum.Write(dst[start:])
	var sumBuf [4]byte
	binary.BigEndian.PutUint32(sumBuf[:], sum.Sum32())
	dst = append(dst, sumBuf[:]...)

	return dst, nil
}

// responseHeader is the plaintext VMess response header (spec §4.3 step 3):
//
//	{ res_auth, opt, cmd, cmd_len }
//
// grounded on ytflow/src/plugin/vmess/protocol/header/aes_cfb.rs, whose
// 4-byte ResponseHeader shape is reused verbatim for the AEAD variant.
type responseHeader struct {
	ResAuth byte
	Opt     byte
	Cmd     byte
	CmdLen  byte
}

const responseHeaderLen = 4

func decodeResponseHeader(buf []byte, wantResAuth byte) (responseHeader, error) {
	if len(buf) < responseHeaderLen {
		return responseHeader{}, flow.ErrUnexpectedData
	}
	res := responseHeader{ResAuth: buf[0], Opt: buf[1], Cmd: buf[2], CmdLen: buf[3]}
	if res.ResAuth != wantResAuth || res.Cmd != 0 || res.CmdLen != 0 {
		return responseHeader{}, flow.ErrUnexpectedData
	}
	return res, nil
}
