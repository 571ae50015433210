// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"hash"
)

// cmdKeySuffix is the fixed suffix MD5-hashed together with the user ID
// to derive cmd_key (spec §4.3; grounded on
// ytflow/src/plugin/vmess/protocol/header/crypto.rs derive_cmd_key).
const cmdKeySuffix = "c48619fe-8f02-49e0-b9e9-edf763e17e21"

// deriveCmdKey returns MD5(userID || cmdKeySuffix).
func deriveCmdKey(userID [userIDLen]byte) [16]byte {
	h := md5.New()
	h.Write(userID[:])
	h.Write([]byte(cmdKeySuffix))
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// vmessAEADKDFLabel roots every nested-HMAC chain below (spec §4.3's
// "four HMAC-SHA-256 sub-keys"; grounded on the HmacFixedKeyHash chain
// building block in ytflow/src/plugin/vmess/hmac_hash.rs, ported here as
// a plain functional nested-HMAC instead of the Rust type-level chain).
const vmessAEADKDFLabel = "VMess AEAD KDF"

// kdf derives length bytes of key material from key by walking a chain
// of HMAC-SHA-256 constructors, one per path label, rooted at
// vmessAEADKDFLabel, then HMAC'ing data under the resulting chain keyed
// by key.
func kdf(key []byte, path []string, data []byte) []byte {
	ctor := func() hash.Hash { return hmac.New(sha256.New, []byte(vmessAEADKDFLabel)) }
	for _, label := range path {
		prev := ctor
		lbl := []byte(label)
		ctor = func() hash.Hash { return hmac.New(prev, lbl) }
	}
	h := hmac.New(ctor, key)
	h.Write(data)
	return h.Sum(nil)
}

// Sub-key labels for the AEAD request header (spec §4.3: "labels {"VMess
// Header AEAD Key_Length", "auth_len", ...}").
var (
	labelHeaderLengthKey   = []string{"VMess Header AEAD Key_Length"}
	labelHeaderLengthNonce = []string{"VMess Header AEAD Nonce_Length"}
	labelHeaderPayloadKey  = []string{"VMess Header AEAD Key"}
	labelHeaderPayloadIV   = []string{"VMess Header AEAD Nonce"}
	labelAuthID            = []string{"auth_len"}
)

// headerSubkeys holds the four HMAC-SHA-256-derived sub-keys used to
// seal an AEAD request header, all bound to the same per-connection
// nonce and a coarse UTC timestamp (spec §4.3 step 1).
type headerSubkeys struct {
	lengthKey   []byte
	lengthNonce []byte
	payloadKey  []byte
	payloadNonce []byte
	aad         []byte
}

func deriveHeaderSubkeys(cmdKey []byte, nonce []byte, timestamp uint64) headerSubkeys {
	var tsBuf [8]byte
	putUint64BE(tsBuf[:], timestamp)
	bound := append(append([]byte{}, nonce...), tsBuf[:]...)

	return headerSubkeys{
		lengthKey:    kdf(cmdKey, labelHeaderLengthKey, bound)[:16],
		lengthNonce:  kdf(cmdKey, labelHeaderLengthNonce, bound)[:12],
		payloadKey:   kdf(cmdKey, labelHeaderPayloadKey, bound)[:16],
		payloadNonce: kdf(cmdKey, labelHeaderPayloadIV, bound)[:12],
		aad:          kdf(cmdKey, labelAuthID, bound),
	}
}

func putUint64BE(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
