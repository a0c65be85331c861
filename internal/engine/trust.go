package engine

import (
	"fmt"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
)

// TrustIdentity records (or replaces) the identity key for a peer. Replacing
// an existing key is an explicit user decision, typically after comparing
// safety numbers out of band.
func (e *Engine) TrustIdentity(name string, key crypto.IdentityPublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil {
		if err := e.store.PutTrustedIdentity(name, key); err != nil {
			return fmt.Errorf("engine: persist trusted identity %s: %w", name, err)
		}
	}
	e.trusted[name] = key
	e.log.Info("identity trusted", "peer", name)
	return nil
}

// TrustedIdentity returns the recorded identity key for a peer.
func (e *Engine) TrustedIdentity(name string) (crypto.IdentityPublicKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.trusted[name]
	return key, ok
}

// IsIdentityTrusted reports whether key matches the recorded identity for
// the peer. An unknown peer is trusted on first use.
func (e *Engine) IsIdentityTrusted(name string, key crypto.IdentityPublicKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	known, ok := e.trusted[name]
	return !ok || known == key
}

// GetSafetyNumber computes the safety number between the local identity and
// a peer's recorded identity key.
func (e *Engine) GetSafetyNumber(remoteName string) (string, error) {
	e.mu.Lock()
	remoteKey, ok := e.trusted[remoteName]
	e.mu.Unlock()
	if !ok {
		return "", ErrUntrustedIdentity
	}
	return crypto.CalculateFingerprint(e.identity.PublicKey(), e.name, remoteKey, remoteName), nil
}

// trustIdentityIfNew records the key for name unless one is already present.
func (e *Engine) trustIdentityIfNew(name string, key crypto.IdentityPublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trustIdentityIfNewLocked(name, key)
}

func (e *Engine) trustIdentityIfNewLocked(name string, key crypto.IdentityPublicKey) error {
	if _, ok := e.trusted[name]; ok {
		return nil
	}
	if e.store != nil {
		if err := e.store.PutTrustedIdentity(name, key); err != nil {
			return fmt.Errorf("engine: persist trusted identity %s: %w", name, err)
		}
	}
	e.trusted[name] = key
	return nil
}
