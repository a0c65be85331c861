package domain

import (
	"encoding/binary"
	"time"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
)

// PreKey is a one-time Diffie-Hellman key. It is consumed (removed from
// storage) the first time a responder uses it.
type PreKey struct {
	ID      uint32
	KeyPair *crypto.DHKeyPair
}

// GeneratePreKey creates a fresh pre-key with the given id.
func GeneratePreKey(id uint32) (PreKey, error) {
	kp, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return PreKey{}, err
	}
	return PreKey{ID: id, KeyPair: kp}, nil
}

// Serialize encodes the pre-key for storage: id, private key, public key.
func (p PreKey) Serialize() []byte {
	out := make([]byte, 0, 4+2*crypto.KeySize)
	out = binary.BigEndian.AppendUint32(out, p.ID)
	priv := p.KeyPair.PrivateKeyBytes()
	out = append(out, priv[:]...)
	pub := p.KeyPair.PublicKey()
	out = append(out, pub[:]...)
	return out
}

// DeserializePreKey decodes a stored pre-key.
func DeserializePreKey(data []byte) (PreKey, error) {
	if len(data) < 4+crypto.KeySize {
		return PreKey{}, ErrMalformedMessage
	}
	id := binary.BigEndian.Uint32(data[:4])
	var priv [crypto.KeySize]byte
	copy(priv[:], data[4:4+crypto.KeySize])
	kp, err := crypto.DHKeyPairFromPrivate(priv)
	if err != nil {
		return PreKey{}, err
	}
	return PreKey{ID: id, KeyPair: kp}, nil
}

// PreKeyPublic is the publishable half of a one-time pre-key.
type PreKeyPublic struct {
	ID  uint32
	Key crypto.DHPublicKey
}

// SignedPreKey is a medium-lived Diffie-Hellman key whose public half is
// signed by the identity key. It is rotated periodically.
type SignedPreKey struct {
	ID        uint32
	KeyPair   *crypto.DHKeyPair
	Signature [crypto.SignatureSize]byte
	Timestamp int64
}

// GenerateSignedPreKey creates and signs a fresh signed pre-key.
func GenerateSignedPreKey(id uint32, identity *crypto.IdentityKeyPair) (SignedPreKey, error) {
	kp, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return SignedPreKey{}, err
	}
	pub := kp.PublicKey()
	return SignedPreKey{
		ID:        id,
		KeyPair:   kp,
		Signature: identity.Sign(pub[:]),
		Timestamp: time.Now().Unix(),
	}, nil
}

// Serialize encodes the signed pre-key for storage.
func (s SignedPreKey) Serialize() []byte {
	out := make([]byte, 0, 4+2*crypto.KeySize+crypto.SignatureSize+8)
	out = binary.BigEndian.AppendUint32(out, s.ID)
	priv := s.KeyPair.PrivateKeyBytes()
	out = append(out, priv[:]...)
	pub := s.KeyPair.PublicKey()
	out = append(out, pub[:]...)
	out = append(out, s.Signature[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(s.Timestamp))
	return out
}

// DeserializeSignedPreKey decodes a stored signed pre-key.
func DeserializeSignedPreKey(data []byte) (SignedPreKey, error) {
	if len(data) < 4+2*crypto.KeySize+crypto.SignatureSize+8 {
		return SignedPreKey{}, ErrMalformedMessage
	}
	id := binary.BigEndian.Uint32(data[:4])
	var priv [crypto.KeySize]byte
	copy(priv[:], data[4:4+crypto.KeySize])
	kp, err := crypto.DHKeyPairFromPrivate(priv)
	if err != nil {
		return SignedPreKey{}, err
	}
	spk := SignedPreKey{ID: id, KeyPair: kp}
	off := 4 + 2*crypto.KeySize
	copy(spk.Signature[:], data[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	spk.Timestamp = int64(binary.BigEndian.Uint64(data[off : off+8]))
	return spk, nil
}

// PreKeyBundle is the publishable key snapshot a peer fetches to initiate a
// session. It is verifiable without any private key.
type PreKeyBundle struct {
	RegistrationID        uint32
	DeviceID              uint32
	PreKeyID              *uint32
	PreKeyPublic          *crypto.DHPublicKey
	SignedPreKeyID        uint32
	SignedPreKeyPublic    crypto.DHPublicKey
	SignedPreKeySignature [crypto.SignatureSize]byte
	IdentityKey           crypto.IdentityPublicKey
}

// Verify checks the signed pre-key signature against the bundle's identity
// key.
func (b PreKeyBundle) Verify() error {
	return b.IdentityKey.Verify(b.SignedPreKeyPublic[:], b.SignedPreKeySignature)
}

// Serialize encodes the bundle for network transmission.
func (b PreKeyBundle) Serialize() []byte {
	out := make([]byte, 0, 256)
	out = binary.BigEndian.AppendUint32(out, b.RegistrationID)
	out = binary.BigEndian.AppendUint32(out, b.DeviceID)

	if b.PreKeyID != nil && b.PreKeyPublic != nil {
		out = append(out, 1)
		out = binary.BigEndian.AppendUint32(out, *b.PreKeyID)
		out = append(out, b.PreKeyPublic[:]...)
	} else {
		out = append(out, 0)
	}

	out = binary.BigEndian.AppendUint32(out, b.SignedPreKeyID)
	out = append(out, b.SignedPreKeyPublic[:]...)
	out = append(out, b.SignedPreKeySignature[:]...)
	out = append(out, b.IdentityKey[:]...)
	return out
}

// DeserializePreKeyBundle decodes a bundle received from the network.
func DeserializePreKeyBundle(data []byte) (PreKeyBundle, error) {
	var b PreKeyBundle
	if len(data) < 9 {
		return b, ErrMalformedMessage
	}
	b.RegistrationID = binary.BigEndian.Uint32(data[:4])
	b.DeviceID = binary.BigEndian.Uint32(data[4:8])

	off := 9
	if data[8] == 1 {
		if len(data) < off+4+crypto.KeySize {
			return b, ErrMalformedMessage
		}
		id := binary.BigEndian.Uint32(data[off : off+4])
		off += 4
		var pub crypto.DHPublicKey
		copy(pub[:], data[off:off+crypto.KeySize])
		off += crypto.KeySize
		b.PreKeyID = &id
		b.PreKeyPublic = &pub
	}

	if len(data) < off+4+2*crypto.KeySize+crypto.SignatureSize {
		return b, ErrMalformedMessage
	}
	b.SignedPreKeyID = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	copy(b.SignedPreKeyPublic[:], data[off:off+crypto.KeySize])
	off += crypto.KeySize
	copy(b.SignedPreKeySignature[:], data[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	copy(b.IdentityKey[:], data[off:off+crypto.KeySize])
	return b, nil
}
