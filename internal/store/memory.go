package store

import (
	"sync"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
)

// MemoryStore is an in-memory Store for tests and ephemeral identities.
type MemoryStore struct {
	mu sync.Mutex

	seed           [crypto.KeySize]byte
	registrationID uint32
	hasIdentity    bool

	preKeys      map[uint32]domain.PreKey
	signedPreKey *domain.SignedPreKey
	sessions     map[string][]byte
	trusted      map[string]crypto.IdentityPublicKey
}

var _ domain.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		preKeys:  make(map[uint32]domain.PreKey),
		sessions: make(map[string][]byte),
		trusted:  make(map[string]crypto.IdentityPublicKey),
	}
}

func (s *MemoryStore) SaveIdentity(seed [crypto.KeySize]byte, registrationID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = seed
	s.registrationID = registrationID
	s.hasIdentity = true
	return nil
}

func (s *MemoryStore) LoadIdentity() ([crypto.KeySize]byte, uint32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed, s.registrationID, s.hasIdentity, nil
}

func (s *MemoryStore) PutPreKey(pk domain.PreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preKeys[pk.ID] = pk
	return nil
}

func (s *MemoryStore) GetPreKey(id uint32) (domain.PreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk, ok := s.preKeys[id]
	return pk, ok, nil
}

func (s *MemoryStore) DeletePreKey(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.preKeys, id)
	return nil
}

func (s *MemoryStore) ListPreKeys() ([]domain.PreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PreKey, 0, len(s.preKeys))
	for _, pk := range s.preKeys {
		out = append(out, pk)
	}
	return out, nil
}

func (s *MemoryStore) PutSignedPreKey(spk domain.SignedPreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedPreKey = &spk
	return nil
}

func (s *MemoryStore) GetSignedPreKey() (domain.SignedPreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedPreKey == nil {
		return domain.SignedPreKey{}, false, nil
	}
	return *s.signedPreKey, true, nil
}

func (s *MemoryStore) PutSession(address string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[address] = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryStore) GetSession(address string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.sessions[address]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (s *MemoryStore) DeleteSession(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, address)
	return nil
}

func (s *MemoryStore) PutTrustedIdentity(name string, key crypto.IdentityPublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[name] = key
	return nil
}

func (s *MemoryStore) GetTrustedIdentity(name string) (crypto.IdentityPublicKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.trusted[name]
	return key, ok, nil
}

func (s *MemoryStore) ListTrustedIdentities() (map[string]crypto.IdentityPublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]crypto.IdentityPublicKey, len(s.trusted))
	for name, key := range s.trusted {
		out[name] = key
	}
	return out, nil
}
