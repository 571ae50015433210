// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"crypto/sha1"
	"io"

	"golang.org/x/crypto/hkdf"
)

var subkeyInfo = []byte("ss-subkey")

// DeriveSubkey derives the per-connection AEAD subkey from the cipher's
// master key and a fresh salt (the IV) via HKDF-SHA1 with info
// "ss-subkey" (spec §4.2, "Handshake").
func DeriveSubkey(masterKey, salt []byte, keyLen int) ([]byte, error) {
	out := make([]byte, keyLen)
	r := hkdf.New(sha1.New, masterKey, salt, subkeyInfo)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
