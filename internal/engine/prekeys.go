package engine

import (
	"fmt"

	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
)

// GeneratePreKeys creates count one-time pre-keys, persists them and returns
// the publishable halves. Ids are assigned from a monotonically increasing
// counter that wraps to 1 past maxPreKeyID.
func (e *Engine) GeneratePreKeys(count int) ([]domain.PreKeyPublic, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generatePreKeysLocked(count)
}

func (e *Engine) generatePreKeysLocked(count int) ([]domain.PreKeyPublic, error) {
	published := make([]domain.PreKeyPublic, 0, count)
	for i := 0; i < count; i++ {
		id := e.nextPreKeyID
		pk, err := domain.GeneratePreKey(id)
		if err != nil {
			return published, err
		}
		if e.store != nil {
			if err := e.store.PutPreKey(pk); err != nil {
				return published, fmt.Errorf("engine: persist pre-key %d: %w", id, err)
			}
		}
		e.preKeys[id] = pk
		published = append(published, domain.PreKeyPublic{ID: id, Key: pk.KeyPair.PublicKey()})

		e.nextPreKeyID++
		if e.nextPreKeyID > maxPreKeyID {
			e.nextPreKeyID = 1
		}
	}
	e.log.Debug("pre-keys generated", "count", len(published), "next_id", e.nextPreKeyID)
	return published, nil
}

// GenerateSignedPreKey rotates the signed pre-key and returns the new one.
// The previous key is kept only in already-issued bundles; initial messages
// referencing it are rejected after rotation.
func (e *Engine) GenerateSignedPreKey() (domain.SignedPreKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uint32(1)
	if e.signedPreKey != nil {
		id = e.signedPreKey.ID + 1
	}
	spk, err := domain.GenerateSignedPreKey(id, e.identity)
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	if e.store != nil {
		if err := e.store.PutSignedPreKey(spk); err != nil {
			return domain.SignedPreKey{}, fmt.Errorf("engine: persist signed pre-key: %w", err)
		}
	}
	e.signedPreKey = &spk
	e.log.Info("signed pre-key rotated", "id", id)
	return spk, nil
}

// PreKeyCount returns the number of unconsumed one-time pre-keys.
func (e *Engine) PreKeyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.preKeys)
}

// RefillPreKeysIfNeeded tops the pre-key stock up to a full batch when it has
// dropped below the low-water mark. It returns the newly published keys, or
// nil when no refill was needed.
func (e *Engine) RefillPreKeysIfNeeded() ([]domain.PreKeyPublic, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.preKeys) >= preKeyLowWater {
		return nil, nil
	}
	return e.generatePreKeysLocked(preKeyBatchSize - len(e.preKeys))
}

// CreatePreKeyBundle builds a publishable bundle: identity, signed pre-key
// and, when stock remains, one one-time pre-key. An empty pre-key stock
// degrades the bundle rather than failing it.
func (e *Engine) CreatePreKeyBundle(deviceID uint32) (domain.PreKeyBundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.signedPreKey == nil {
		return domain.PreKeyBundle{}, ErrNoSignedPreKey
	}

	bundle := domain.PreKeyBundle{
		RegistrationID:        e.registrationID,
		DeviceID:              deviceID,
		SignedPreKeyID:        e.signedPreKey.ID,
		SignedPreKeyPublic:    e.signedPreKey.KeyPair.PublicKey(),
		SignedPreKeySignature: e.signedPreKey.Signature,
		IdentityKey:           e.identity.PublicKey(),
	}

	// Lowest id first, so distribution order matches generation order.
	var lowest uint32
	found := false
	for id := range e.preKeys {
		if !found || id < lowest {
			lowest = id
			found = true
		}
	}
	if found {
		pk := e.preKeys[lowest]
		id := pk.ID
		pub := pk.KeyPair.PublicKey()
		bundle.PreKeyID = &id
		bundle.PreKeyPublic = &pub
	} else {
		e.log.Warn("pre-key stock empty, issuing bundle without one-time pre-key")
	}
	return bundle, nil
}
