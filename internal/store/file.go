package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
)

const (
	identityFile     = "identity.enc"
	preKeysFile      = "prekeys.json"       // map[id][]byte
	signedPreKeyFile = "signed_prekey.json" // single record
	sessionsFile     = "sessions.json"      // map[address][]byte
	trustedFile      = "trusted.json"       // map[name][]byte
)

// FileStore keeps all engine state under one directory. The identity seed is
// sealed with a passphrase-derived key; everything else is written as
// owner-only JSON files.
type FileStore struct {
	dir        string
	passphrase string
	mu         sync.Mutex
}

var _ domain.Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a store rooted at
// dir.
func NewFileStore(dir, passphrase string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir, passphrase: passphrase}, nil
}

type identityRecord struct {
	Seed           []byte `json:"seed"`
	RegistrationID uint32 `json:"registration_id"`
}

// SaveIdentity seals the identity seed and registration id under the
// passphrase.
func (s *FileStore) SaveIdentity(seed [crypto.KeySize]byte, registrationID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(identityRecord{Seed: seed[:], RegistrationID: registrationID})
	if err != nil {
		return err
	}
	blob, err := sealEnvelope(s.passphrase, raw)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, identityFile), blob, 0o600)
}

// LoadIdentity opens the sealed identity. A missing file reports ok=false.
func (s *FileStore) LoadIdentity() (seed [crypto.KeySize]byte, registrationID uint32, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(filepath.Join(s.dir, identityFile))
	if errors.Is(err, os.ErrNotExist) {
		return seed, 0, false, nil
	}
	if err != nil {
		return seed, 0, false, err
	}
	raw, err := openEnvelope(s.passphrase, blob)
	if err != nil {
		return seed, 0, false, err
	}
	var rec identityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return seed, 0, false, err
	}
	if len(rec.Seed) != crypto.KeySize {
		return seed, 0, false, fmt.Errorf("store: identity seed has %d bytes", len(rec.Seed))
	}
	copy(seed[:], rec.Seed)
	return seed, rec.RegistrationID, true, nil
}

func (s *FileStore) PutPreKey(pk domain.PreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, preKeysFile)
	m := make(map[string][]byte)
	if err := readJSON(path, &m); err != nil {
		return err
	}
	m[strconv.FormatUint(uint64(pk.ID), 10)] = pk.Serialize()
	return writeJSON(path, m, 0o600)
}

func (s *FileStore) GetPreKey(id uint32) (domain.PreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string][]byte)
	if err := readJSON(filepath.Join(s.dir, preKeysFile), &m); err != nil {
		return domain.PreKey{}, false, err
	}
	data, ok := m[strconv.FormatUint(uint64(id), 10)]
	if !ok {
		return domain.PreKey{}, false, nil
	}
	pk, err := domain.DeserializePreKey(data)
	if err != nil {
		return domain.PreKey{}, false, err
	}
	return pk, true, nil
}

func (s *FileStore) DeletePreKey(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, preKeysFile)
	m := make(map[string][]byte)
	if err := readJSON(path, &m); err != nil {
		return err
	}
	delete(m, strconv.FormatUint(uint64(id), 10))
	return writeJSON(path, m, 0o600)
}

func (s *FileStore) ListPreKeys() ([]domain.PreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string][]byte)
	if err := readJSON(filepath.Join(s.dir, preKeysFile), &m); err != nil {
		return nil, err
	}
	out := make([]domain.PreKey, 0, len(m))
	for _, data := range m {
		pk, err := domain.DeserializePreKey(data)
		if err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, nil
}

func (s *FileStore) PutSignedPreKey(spk domain.SignedPreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, signedPreKeyFile), spk.Serialize(), 0o600)
}

func (s *FileStore) GetSignedPreKey() (domain.SignedPreKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	if err := readJSON(filepath.Join(s.dir, signedPreKeyFile), &data); err != nil {
		return domain.SignedPreKey{}, false, err
	}
	if data == nil {
		return domain.SignedPreKey{}, false, nil
	}
	spk, err := domain.DeserializeSignedPreKey(data)
	if err != nil {
		return domain.SignedPreKey{}, false, err
	}
	return spk, true, nil
}

func (s *FileStore) PutSession(address string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, sessionsFile)
	m := make(map[string][]byte)
	if err := readJSON(path, &m); err != nil {
		return err
	}
	m[address] = append([]byte(nil), blob...)
	return writeJSON(path, m, 0o600)
}

func (s *FileStore) GetSession(address string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string][]byte)
	if err := readJSON(filepath.Join(s.dir, sessionsFile), &m); err != nil {
		return nil, false, err
	}
	blob, ok := m[address]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (s *FileStore) DeleteSession(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, sessionsFile)
	m := make(map[string][]byte)
	if err := readJSON(path, &m); err != nil {
		return err
	}
	delete(m, address)
	return writeJSON(path, m, 0o600)
}

func (s *FileStore) PutTrustedIdentity(name string, key crypto.IdentityPublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, trustedFile)
	m := make(map[string][]byte)
	if err := readJSON(path, &m); err != nil {
		return err
	}
	m[name] = key.Slice()
	return writeJSON(path, m, 0o600)
}

func (s *FileStore) GetTrustedIdentity(name string) (crypto.IdentityPublicKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string][]byte)
	if err := readJSON(filepath.Join(s.dir, trustedFile), &m); err != nil {
		return crypto.IdentityPublicKey{}, false, err
	}
	data, ok := m[name]
	if !ok {
		return crypto.IdentityPublicKey{}, false, nil
	}
	key, err := crypto.IdentityPublicKeyFromBytes(data)
	if err != nil {
		return crypto.IdentityPublicKey{}, false, err
	}
	return key, true, nil
}

func (s *FileStore) ListTrustedIdentities() (map[string]crypto.IdentityPublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string][]byte)
	if err := readJSON(filepath.Join(s.dir, trustedFile), &m); err != nil {
		return nil, err
	}
	out := make(map[string]crypto.IdentityPublicKey, len(m))
	for name, data := range m {
		key, err := crypto.IdentityPublicKeyFromBytes(data)
		if err != nil {
			return nil, err
		}
		out[name] = key
	}
	return out, nil
}
