// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// requestEncoder seals a plaintext [requestHeader] for the wire and
// returns a matching [responseDecoder] bound to the same per-connection
// key material (spec §4.3 steps 1-3).
type requestEncoder interface {
	encryptRequest(h *requestHeader) ([]byte, responseDecoder, error)
}

// responseDecoder verifies and decodes the server's response header.
type responseDecoder interface {
	// sealedLen is how many ciphertext bytes decryptResponse needs.
	sealedLen() int
	decryptResponse(sealed []byte) (responseHeader, error)
}

// aeadRequestEncoder implements the alter_id==0 AEAD variant (spec §4.3
// step 1). The per-connection nonce and a coarse UTC timestamp are sent
// ahead of the sealed length/header sub-chunks so the peer can re-derive
// the same HMAC-SHA-256 sub-keys (see DESIGN.md for why this differs
// from AuthID obfuscation: the original_source subset retrieved for
// this module does not include that file, so this module implements the
// AEAD shape spec.md §4.3 describes directly).
type aeadRequestEncoder struct {
	cmdKey []byte
}

func newAEADRequestEncoder(userID [userIDLen]byte) *aeadRequestEncoder {
	cmdKey := deriveCmdKey(userID)
	return &aeadRequestEncoder{cmdKey: cmdKey[:]}
}

func (e *aeadRequestEncoder) encryptRequest(h *requestHeader) ([]byte, responseDecoder, error) {
	var nonce [8]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nil, err
	}
	timestamp := uint64(time.Now().Unix())

	sub := deriveHeaderSubkeys(e.cmdKey, nonce[:], timestamp)

	plaintext, err := h.encode(nil)
	if err != nil {
		return nil, nil, err
	}

	lengthAEAD, err := newAESGCM(sub.lengthKey)
	if err != nil {
		return nil, nil, err
	}
	payloadAEAD, err := newAESGCM(sub.payloadKey)
	if err != nil {
		return nil, nil, err
	}

	var lengthBuf [2]byte
	binary.BigEndian.PutUint16(lengthBuf[:], uint16(len(plaintext)))
	sealedLength := lengthAEAD.Seal(nil, sub.lengthNonce, lengthBuf[:], sub.aad)
	sealedHeader := payloadAEAD.Seal(nil, sub.payloadNonce, plaintext, sub.aad)

	var out []byte
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], timestamp)
	out = append(out, nonce[:]...)
	out = append(out, tsBuf[:]...)
	out = append(out, sealedLength...)
	out = append(out, sealedHeader...)

	resKey, resNonce := deriveResponseKeyNonce(h.DataKey, h.DataIV)
	resAEAD, err := newAESGCM(resKey)
	if err != nil {
		return nil, nil, err
	}
	return out, &aeadResponseDecoder{aead: resAEAD, nonce: resNonce, resAuth: h.ResAuth}, nil
}

type aeadResponseDecoder struct {
	aead    cipher.AEAD
	nonce   []byte
	resAuth byte
}

func (d *aeadResponseDecoder) sealedLen() int {
	return responseHeaderLen + d.aead.Overhead()
}

func (d *aeadResponseDecoder) decryptResponse(sealed []byte) (responseHeader, error) {
	plain, err := d.aead.Open(nil, d.nonce, sealed, nil)
	if err != nil {
		return responseHeader{}, err
	}
	return decodeResponseHeader(plain, d.resAuth)
}

// legacyRequestEncoder implements the alter_id!=0 AES-CFB variant (spec
// §4.3 step 2; grounded on
// ytflow/src/plugin/vmess/protocol/header/aes_cfb.rs).
type legacyRequestEncoder struct {
	userID [userIDLen]byte
}

func newLegacyRequestEncoder(userID [userIDLen]byte) *legacyRequestEncoder {
	return &legacyRequestEncoder{userID: userID}
}

func (e *legacyRequestEncoder) encryptRequest(h *requestHeader) ([]byte, responseDecoder, error) {
	timestamp := uint64(time.Now().Unix())
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], timestamp)

	certHMAC := hmac.New(md5.New, e.userID[:])
	certHMAC.Write(tsBuf[:])
	certification := certHMAC.Sum(nil)

	cmdKey := deriveCmdKey(e.userID)
	ivHash := md5.New()
	for i := 0; i < 4; i++ {
		ivHash.Write(tsBuf[:])
	}
	headerIV := ivHash.Sum(nil)

	block, err := aes.NewCipher(cmdKey[:])
	if err != nil {
		return nil, nil, err
	}
	enc := cipher.NewCFBEncrypter(block, headerIV)

	plaintext, err := h.encode(nil)
	if err != nil {
		return nil, nil, err
	}
	ciphertext := make([]byte, len(plaintext))
	enc.XORKeyStream(ciphertext, plaintext)

	out := append(append([]byte{}, certification...), ciphertext...)

	resKey, resIV16 := deriveLegacyResponseKeyIV(h.DataKey, h.DataIV)
	resBlock, err := aes.NewCipher(resKey)
	if err != nil {
		return nil, nil, err
	}
	dec := cipher.NewCFBDecrypter(resBlock, resIV16)
	return out, &legacyResponseDecoder{dec: dec, resAuth: h.ResAuth}, nil
}

type legacyResponseDecoder struct {
	dec     cipher.Stream
	resAuth byte
}

func (d *legacyResponseDecoder) sealedLen() int {
	return responseHeaderLen
}

func (d *legacyResponseDecoder) decryptResponse(sealed []byte) (responseHeader, error) {
	if len(sealed) < responseHeaderLen {
		return responseHeader{}, errShortResponse
	}
	plain := make([]byte, responseHeaderLen)
	d.dec.XORKeyStream(plain, sealed[:responseHeaderLen])
	return decodeResponseHeader(plain, d.resAuth)
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// deriveResponseKeyNonce implements spec §4.3 step 3 ("res_key =
// MD5(data_key), res_iv = MD5(data_iv)"), truncating res_iv to the
// 12-byte GCM nonce size.
func deriveResponseKeyNonce(dataKey, dataIV [dataKeyLen]byte) (key, nonce []byte) {
	keyHash := md5.Sum(dataKey[:])
	ivHash := md5.Sum(dataIV[:])
	return keyHash[:], ivHash[:12]
}

func deriveLegacyResponseKeyIV(dataKey, dataIV [dataKeyLen]byte) (key, iv []byte) {
	keyHash := md5.Sum(dataKey[:])
	ivHash := md5.Sum(dataIV[:])
	return keyHash[:], ivHash[:]
}
