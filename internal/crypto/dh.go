package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/phlthy88/Signal-You-Messenger/internal/util/memzero"
)

// DHPublicKey is a Curve25519 public key.
type DHPublicKey [KeySize]byte

// Slice returns the key as a byte slice.
func (p DHPublicKey) Slice() []byte { return p[:] }

// DHPublicKeyFromBytes validates length and copies b.
func DHPublicKeyFromBytes(b []byte) (DHPublicKey, error) {
	var pub DHPublicKey
	if len(b) != KeySize {
		return pub, ErrInvalidKeyLength
	}
	copy(pub[:], b)
	return pub, nil
}

// DHKeyPair is an ephemeral or semi-static Curve25519 key pair, used for
// ratchet keys, pre-keys and signed pre-keys.
type DHKeyPair struct {
	priv [KeySize]byte
	pub  DHPublicKey
}

// GenerateDHKeyPair returns a fresh key pair. The private key is clamped per
// RFC 7748.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	var priv [KeySize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, err
	}
	clamp(&priv)
	return DHKeyPairFromPrivate(priv)
}

// DHKeyPairFromPrivate rebuilds a key pair from stored private key bytes.
func DHKeyPairFromPrivate(priv [KeySize]byte) (*DHKeyPair, error) {
	pb, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	kp := &DHKeyPair{priv: priv}
	copy(kp.pub[:], pb)
	return kp, nil
}

// PublicKey returns the public half.
func (k *DHKeyPair) PublicKey() DHPublicKey { return k.pub }

// PrivateKeyBytes returns the private key for secure storage.
func (k *DHKeyPair) PrivateKeyBytes() [KeySize]byte { return k.priv }

// Agreement performs X25519 Diffie-Hellman with peer.
func (k *DHKeyPair) Agreement(peer DHPublicKey) ([KeySize]byte, error) {
	return x25519(k.priv, peer)
}

// Clone returns an independent copy of the key pair.
func (k *DHKeyPair) Clone() *DHKeyPair {
	cp := *k
	return &cp
}

// Zero wipes the private half.
func (k *DHKeyPair) Zero() {
	memzero.Zero32(&k.priv)
}

func clamp(k *[KeySize]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

func x25519(priv [KeySize]byte, pub DHPublicKey) ([KeySize]byte, error) {
	var out [KeySize]byte
	secret, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return out, ErrInvalidPublicKey
	}
	copy(out[:], secret)
	return out, nil
}
