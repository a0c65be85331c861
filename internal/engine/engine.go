package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
	"github.com/phlthy88/Signal-You-Messenger/internal/logger"
	"github.com/phlthy88/Signal-You-Messenger/internal/protocol/ratchet"
)

const (
	// maxPreKeyID is the largest one-time pre-key id before the counter
	// wraps back to 1.
	maxPreKeyID = 0x00FFFFFF
	// preKeyBatchSize is how many pre-keys a refill generates.
	preKeyBatchSize = 100
	// preKeyLowWater triggers a refill when the stock drops below it.
	preKeyLowWater = 10

	registrationIDMask = 0x3FFF
)

// sessionEntry pairs a ratchet session with its own lock so sessions with
// different peers never contend.
type sessionEntry struct {
	mu      sync.Mutex
	state   *ratchet.SessionState
	pending *pendingPreKey
}

// pendingPreKey holds the X3DH parameters the initiator repeats on every
// outgoing message until the peer's first reply proves the session is
// established on both ends.
type pendingPreKey struct {
	ephemeralKey   crypto.DHPublicKey
	preKeyID       *uint32
	signedPreKeyID uint32
}

// Engine is the protocol endpoint for one local identity.
type Engine struct {
	name           string
	identity       *crypto.IdentityKeyPair
	registrationID uint32

	mu           sync.Mutex
	preKeys      map[uint32]domain.PreKey
	nextPreKeyID uint32
	signedPreKey *domain.SignedPreKey
	trusted      map[string]crypto.IdentityPublicKey

	sessionsMu sync.RWMutex
	sessions   map[string]*sessionEntry

	store domain.Store
	log   *slog.Logger
}

// New creates an engine with a freshly generated identity. When store is
// non-nil the identity is persisted immediately.
func New(name string, store domain.Store) (*Engine, error) {
	identity, err := crypto.GenerateIdentityKeyPair()
	if err != nil {
		return nil, err
	}
	registrationID, err := generateRegistrationID()
	if err != nil {
		return nil, err
	}
	e := newEngine(name, identity, registrationID, store)
	if store != nil {
		if err := store.SaveIdentity(identity.Seed(), registrationID); err != nil {
			return nil, fmt.Errorf("engine: persist identity: %w", err)
		}
	}
	e.log.Info("identity created", "name", name, "registration_id", registrationID)
	return e, nil
}

// FromIdentity creates an engine around an existing identity.
func FromIdentity(name string, identity *crypto.IdentityKeyPair, registrationID uint32, store domain.Store) *Engine {
	return newEngine(name, identity, registrationID, store)
}

// Load restores an engine from a store: identity, pre-keys, signed pre-key
// and trusted identities. Sessions are restored lazily on first use.
func Load(name string, store domain.Store) (*Engine, error) {
	seed, registrationID, ok, err := store.LoadIdentity()
	if err != nil {
		return nil, fmt.Errorf("engine: load identity: %w", err)
	}
	if !ok {
		return nil, ErrNoIdentity
	}
	e := newEngine(name, crypto.IdentityKeyPairFromSeed(seed), registrationID, store)

	preKeys, err := store.ListPreKeys()
	if err != nil {
		return nil, fmt.Errorf("engine: load pre-keys: %w", err)
	}
	for _, pk := range preKeys {
		e.preKeys[pk.ID] = pk
		if next := pk.ID + 1; next > e.nextPreKeyID {
			e.nextPreKeyID = next
		}
	}
	if e.nextPreKeyID > maxPreKeyID {
		e.nextPreKeyID = 1
	}

	spk, ok, err := store.GetSignedPreKey()
	if err != nil {
		return nil, fmt.Errorf("engine: load signed pre-key: %w", err)
	}
	if ok {
		e.signedPreKey = &spk
	}

	trusted, err := store.ListTrustedIdentities()
	if err != nil {
		return nil, fmt.Errorf("engine: load trusted identities: %w", err)
	}
	for name, key := range trusted {
		e.trusted[name] = key
	}

	e.log.Info("identity loaded",
		"name", name,
		"pre_keys", len(e.preKeys),
		"trusted_peers", len(e.trusted))
	return e, nil
}

func newEngine(name string, identity *crypto.IdentityKeyPair, registrationID uint32, store domain.Store) *Engine {
	return &Engine{
		name:           name,
		identity:       identity,
		registrationID: registrationID,
		preKeys:        make(map[uint32]domain.PreKey),
		nextPreKeyID:   1,
		trusted:        make(map[string]crypto.IdentityPublicKey),
		sessions:       make(map[string]*sessionEntry),
		store:          store,
		log:            logger.L().With("component", "engine"),
	}
}

// Name returns the local endpoint name.
func (e *Engine) Name() string { return e.name }

// IdentityKey returns the local public identity key.
func (e *Engine) IdentityKey() crypto.IdentityPublicKey { return e.identity.PublicKey() }

// RegistrationID returns the local registration id.
func (e *Engine) RegistrationID() uint32 { return e.registrationID }

// generateRegistrationID draws a random non-zero 14-bit id.
func generateRegistrationID() (uint32, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	id := uint32(binary.BigEndian.Uint16(b[:])) & registrationIDMask
	if id == 0 {
		id = 1
	}
	return id, nil
}
