package domain

import "github.com/phlthy88/Signal-You-Messenger/internal/crypto"

// IdentityStore persists the local identity seed and registration id.
type IdentityStore interface {
	SaveIdentity(seed [crypto.KeySize]byte, registrationID uint32) error
	LoadIdentity() (seed [crypto.KeySize]byte, registrationID uint32, ok bool, err error)
}

// PreKeyStore persists one-time and signed pre-keys.
type PreKeyStore interface {
	PutPreKey(pk PreKey) error
	GetPreKey(id uint32) (PreKey, bool, error)
	DeletePreKey(id uint32) error
	ListPreKeys() ([]PreKey, error)

	PutSignedPreKey(spk SignedPreKey) error
	GetSignedPreKey() (SignedPreKey, bool, error)
}

// SessionStore persists serialized session blobs keyed by the address string
// `name.device_id`.
type SessionStore interface {
	PutSession(address string, blob []byte) error
	GetSession(address string) ([]byte, bool, error)
	DeleteSession(address string) error
}

// TrustStore records remote identity keys by peer name.
type TrustStore interface {
	PutTrustedIdentity(name string, key crypto.IdentityPublicKey) error
	GetTrustedIdentity(name string) (crypto.IdentityPublicKey, bool, error)
	ListTrustedIdentities() (map[string]crypto.IdentityPublicKey, error)
}

// Store is the full persisted-state interface consumed by the engine.
type Store interface {
	IdentityStore
	PreKeyStore
	SessionStore
	TrustStore
}
