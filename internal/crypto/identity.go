package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"

	"github.com/phlthy88/Signal-You-Messenger/internal/util/memzero"
)

const (
	// KeySize is the byte length of all curve keys and symmetric keys.
	KeySize = 32
	// SignatureSize is the byte length of an Ed25519 signature.
	SignatureSize = 64
)

// IdentityKeyPair is the long-term Ed25519 identity key of an endpoint. The
// same key serves signing and, through the birational Edwards-to-Montgomery
// map, X25519 Diffie-Hellman.
type IdentityKeyPair struct {
	seed [KeySize]byte
	priv ed25519.PrivateKey
}

// GenerateIdentityKeyPair returns a fresh identity key pair.
func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	var seed [KeySize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	return IdentityKeyPairFromSeed(seed), nil
}

// IdentityKeyPairFromSeed rebuilds an identity key pair from its stored seed.
func IdentityKeyPairFromSeed(seed [KeySize]byte) *IdentityKeyPair {
	return &IdentityKeyPair{seed: seed, priv: ed25519.NewKeyFromSeed(seed[:])}
}

// PublicKey returns the Ed25519 public half.
func (k *IdentityKeyPair) PublicKey() IdentityPublicKey {
	var pub IdentityPublicKey
	copy(pub[:], k.priv[KeySize:])
	return pub
}

// Seed returns the private seed for secure storage.
func (k *IdentityKeyPair) Seed() [KeySize]byte { return k.seed }

// Sign signs message with the identity key.
func (k *IdentityKeyPair) Sign(message []byte) [SignatureSize]byte {
	var sig [SignatureSize]byte
	copy(sig[:], ed25519.Sign(k.priv, message))
	return sig
}

// dhScalar derives the X25519 private scalar from the Ed25519 seed. This is
// the same scalar the Ed25519 public point is built from, so the Montgomery
// form of the public key matches agreements made with this scalar.
func (k *IdentityKeyPair) dhScalar() [KeySize]byte {
	h := sha512.Sum512(k.seed[:])
	var scalar [KeySize]byte
	copy(scalar[:], h[:KeySize])
	clamp(&scalar)
	memzero.Zero(h[:])
	return scalar
}

// DHPublicKey returns the X25519 public key corresponding to the identity.
func (k *IdentityKeyPair) DHPublicKey() DHPublicKey {
	scalar := k.dhScalar()
	defer memzero.Zero32(&scalar)
	pub, _ := curve25519.X25519(scalar[:], curve25519.Basepoint)
	var out DHPublicKey
	copy(out[:], pub)
	return out
}

// DHAgreement performs X25519 agreement between the identity key and peer.
func (k *IdentityKeyPair) DHAgreement(peer DHPublicKey) ([KeySize]byte, error) {
	scalar := k.dhScalar()
	defer memzero.Zero32(&scalar)
	return x25519(scalar, peer)
}

// Zero wipes the private material.
func (k *IdentityKeyPair) Zero() {
	memzero.Zero32(&k.seed)
	memzero.Zero(k.priv)
}

// IdentityPublicKey is a peer's Ed25519 identity key.
type IdentityPublicKey [KeySize]byte

// Slice returns the key as a byte slice.
func (p IdentityPublicKey) Slice() []byte { return p[:] }

// IdentityPublicKeyFromBytes validates length and copies b.
func IdentityPublicKeyFromBytes(b []byte) (IdentityPublicKey, error) {
	var pub IdentityPublicKey
	if len(b) != KeySize {
		return pub, ErrInvalidKeyLength
	}
	copy(pub[:], b)
	return pub, nil
}

// Verify checks sig over message.
func (p IdentityPublicKey) Verify(message []byte, sig [SignatureSize]byte) error {
	if !ed25519.Verify(ed25519.PublicKey(p[:]), message, sig[:]) {
		return ErrBadSignature
	}
	return nil
}

// DHPublicKey converts the Edwards-form identity key to its Montgomery form
// for X25519 agreement. Bytes that do not decompress to an Edwards point are
// rejected: there is no safe fallback that both parties can agree on.
func (p IdentityPublicKey) DHPublicKey() (DHPublicKey, error) {
	point, err := new(edwards25519.Point).SetBytes(p[:])
	if err != nil {
		return DHPublicKey{}, ErrInvalidPublicKey
	}
	var out DHPublicKey
	copy(out[:], point.BytesMontgomery())
	return out, nil
}
