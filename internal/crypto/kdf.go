package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/phlthy88/Signal-You-Messenger/internal/util/memzero"
)

// IVSize is the byte length of the derived message IV. The first NonceSize
// bytes serve as the AEAD nonce.
const IVSize = 16

// DeriveSecrets derives n bytes of key material via HKDF-SHA256.
func DeriveSecrets(secret, salt, info []byte, n int) []byte {
	out := make([]byte, n)
	r := hkdf.New(sha256.New, secret, salt, info)
	_, _ = io.ReadFull(r, out)
	return out
}

// DeriveRootKey advances the root key with a DH ratchet output, producing the
// next root key and a fresh chain key.
func DeriveRootKey(rootKey, dhOutput [KeySize]byte) (newRoot, chainKey [KeySize]byte) {
	okm := DeriveSecrets(dhOutput[:], rootKey[:], []byte("WhisperRatchet"), 2*KeySize)
	copy(newRoot[:], okm[:KeySize])
	copy(chainKey[:], okm[KeySize:])
	memzero.Zero(okm)
	return newRoot, chainKey
}

// MessageKeys is the per-message key material derived from a chain key.
type MessageKeys struct {
	CipherKey    [KeySize]byte
	MACKey       [KeySize]byte
	IV           [IVSize]byte
	NextChainKey [KeySize]byte
}

// DeriveMessageKeys performs one symmetric-key ratchet step: the next chain
// key is HMAC(ck, 0x02); the message-key seed is HMAC(ck, 0x01), expanded
// into cipher key, MAC key and IV.
func DeriveMessageKeys(chainKey [KeySize]byte) MessageKeys {
	var mk MessageKeys
	copy(mk.NextChainKey[:], hmacSHA256(chainKey[:], []byte{0x02}))

	seed := hmacSHA256(chainKey[:], []byte{0x01})
	okm := DeriveSecrets(seed, nil, []byte("WhisperMessageKeys"), 2*KeySize+IVSize)
	copy(mk.CipherKey[:], okm[:KeySize])
	copy(mk.MACKey[:], okm[KeySize:2*KeySize])
	copy(mk.IV[:], okm[2*KeySize:])
	memzero.Zero(seed)
	memzero.Zero(okm)
	return mk
}

// Zero wipes the derived key material.
func (mk *MessageKeys) Zero() {
	memzero.Zero32(&mk.CipherKey)
	memzero.Zero32(&mk.MACKey)
	memzero.Zero(mk.IV[:])
	memzero.Zero32(&mk.NextChainKey)
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
