package engine

import (
	"fmt"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
	"github.com/phlthy88/Signal-You-Messenger/internal/protocol/ratchet"
	"github.com/phlthy88/Signal-You-Messenger/internal/protocol/x3dh"
)

// ProcessPreKeyBundle establishes an initiator session with the bundle's
// owner. The peer's identity key is recorded on first use; a bundle carrying
// a different key than previously recorded is rejected.
func (e *Engine) ProcessPreKeyBundle(remote domain.ProtocolAddress, bundle domain.PreKeyBundle) error {
	e.mu.Lock()
	if known, ok := e.trusted[remote.Name]; ok && known != bundle.IdentityKey {
		e.mu.Unlock()
		return ErrIdentityMismatch
	}
	e.mu.Unlock()

	res, err := x3dh.Initiate(e.identity, bundle)
	if err != nil {
		return err
	}

	ratchetKey, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return err
	}
	state, err := ratchet.InitializeAlice(res.SharedSecret, ratchetKey, bundle.SignedPreKeyPublic)
	if err != nil {
		return err
	}

	entry := &sessionEntry{
		state: state,
		pending: &pendingPreKey{
			ephemeralKey:   res.EphemeralKey,
			preKeyID:       res.UsedPreKeyID,
			signedPreKeyID: bundle.SignedPreKeyID,
		},
	}
	if err := e.persistSession(remote.String(), state); err != nil {
		return err
	}
	if err := e.trustIdentityIfNew(remote.Name, bundle.IdentityKey); err != nil {
		return err
	}

	e.sessionsMu.Lock()
	e.sessions[remote.String()] = entry
	e.sessionsMu.Unlock()

	e.log.Info("session initiated", "peer", remote.String(),
		"one_time_pre_key", res.UsedPreKeyID != nil)
	return nil
}

// Encrypt produces a serialized ratchet message for an established session.
func (e *Engine) Encrypt(remote domain.ProtocolAddress, plaintext []byte) ([]byte, error) {
	entry, err := e.session(remote.String())
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	staged := entry.state.Clone()
	msg, err := staged.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	if err := e.persistSession(remote.String(), staged); err != nil {
		return nil, err
	}
	entry.state.Zero()
	entry.state = staged
	return msg.Serialize(), nil
}

// EncryptInitial produces a serialized initial message: a ratchet message
// wrapped with the X3DH parameters from ProcessPreKeyBundle. It is used for
// every outgoing message until the peer's first reply arrives.
func (e *Engine) EncryptInitial(remote domain.ProtocolAddress, plaintext []byte) ([]byte, error) {
	entry, err := e.session(remote.String())
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.pending == nil {
		return nil, fmt.Errorf("engine: session with %s already established", remote.String())
	}

	staged := entry.state.Clone()
	msg, err := staged.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	if err := e.persistSession(remote.String(), staged); err != nil {
		return nil, err
	}
	entry.state.Zero()
	entry.state = staged

	initial := domain.NewInitialMessage(
		e.identity.PublicKey(),
		entry.pending.ephemeralKey,
		entry.pending.preKeyID,
		entry.pending.signedPreKeyID,
		msg.Serialize(),
	)
	return initial.Serialize(), nil
}

// Decrypt opens a serialized ratchet message from an established session. A
// successful decrypt completes the handshake for initiator sessions.
func (e *Engine) Decrypt(remote domain.ProtocolAddress, data []byte) ([]byte, error) {
	entry, err := e.session(remote.String())
	if err != nil {
		return nil, err
	}
	return e.decryptWithEntry(remote.String(), entry, data)
}

func (e *Engine) decryptWithEntry(addr string, entry *sessionEntry, data []byte) ([]byte, error) {
	msg, err := domain.ParseRatchetMessage(data)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	staged := entry.state.Clone()
	plaintext, err := staged.Decrypt(msg)
	if err != nil {
		return nil, err
	}
	if err := e.persistSession(addr, staged); err != nil {
		return nil, err
	}
	entry.state.Zero()
	entry.state = staged
	entry.pending = nil
	return plaintext, nil
}

// DecryptInitial establishes a responder session from an initial message and
// opens the ratchet message inside it. The referenced one-time pre-key is
// consumed only after the whole operation has succeeded, and never twice.
func (e *Engine) DecryptInitial(remote domain.ProtocolAddress, data []byte) ([]byte, error) {
	msg, err := domain.ParseInitialMessage(data)
	if err != nil {
		return nil, err
	}

	// An established session answers follow-up initial messages directly.
	// Re-running the key agreement here would reset ratchet progress, so
	// without a fresh one-time pre-key a decrypt failure is final rather
	// than grounds to rebuild the session.
	if entry, serr := e.session(remote.String()); serr == nil {
		plaintext, derr := e.decryptWithEntry(remote.String(), entry, msg.Message)
		if derr == nil {
			return plaintext, nil
		}
		if msg.PreKeyID == nil {
			return nil, derr
		}
		e.log.Warn("initial message did not match existing session, re-establishing",
			"peer", remote.String())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if known, ok := e.trusted[remote.Name]; ok && known != msg.IdentityKey {
		return nil, ErrIdentityMismatch
	}
	if e.signedPreKey == nil || e.signedPreKey.ID != msg.SignedPreKeyID {
		return nil, ErrUnknownSignedPreKey
	}

	var oneTimePreKey *domain.PreKey
	if msg.PreKeyID != nil {
		pk, ok := e.preKeys[*msg.PreKeyID]
		if !ok {
			return nil, ErrUnknownPreKey
		}
		oneTimePreKey = &pk
	}

	secret, err := x3dh.Respond(
		e.identity,
		e.signedPreKey.KeyPair,
		keyPairOrNil(oneTimePreKey),
		msg.IdentityKey,
		msg.EphemeralKey,
	)
	if err != nil {
		return nil, err
	}

	// The ratchet owns its key pair, so Bob's session gets a copy of the
	// signed pre-key rather than the stored original.
	state := ratchet.InitializeBob(secret, e.signedPreKey.KeyPair.Clone())

	inner, err := domain.ParseRatchetMessage(msg.Message)
	if err != nil {
		return nil, err
	}
	plaintext, err := state.Decrypt(inner)
	if err != nil {
		return nil, err
	}

	if err := e.persistSession(remote.String(), state); err != nil {
		return nil, err
	}
	if oneTimePreKey != nil {
		if e.store != nil {
			if err := e.store.DeletePreKey(oneTimePreKey.ID); err != nil {
				return nil, fmt.Errorf("engine: consume pre-key %d: %w", oneTimePreKey.ID, err)
			}
		}
		delete(e.preKeys, oneTimePreKey.ID)
	}
	if err := e.trustIdentityIfNewLocked(remote.Name, msg.IdentityKey); err != nil {
		return nil, err
	}

	e.sessionsMu.Lock()
	e.sessions[remote.String()] = &sessionEntry{state: state}
	e.sessionsMu.Unlock()

	e.log.Info("session established", "peer", remote.String(),
		"one_time_pre_key", oneTimePreKey != nil)
	return plaintext, nil
}

// HasSession reports whether a session exists for the address, in memory or
// in the store.
func (e *Engine) HasSession(remote domain.ProtocolAddress) bool {
	_, err := e.session(remote.String())
	return err == nil
}

// SessionBlob returns the serialized session state for the address.
func (e *Engine) SessionBlob(remote domain.ProtocolAddress) ([]byte, error) {
	entry, err := e.session(remote.String())
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Marshal()
}

// RestoreSession replaces the session for the address with a previously
// serialized one.
func (e *Engine) RestoreSession(remote domain.ProtocolAddress, blob []byte) error {
	state, err := ratchet.UnmarshalSessionState(blob)
	if err != nil {
		return err
	}
	if err := e.persistSession(remote.String(), state); err != nil {
		return err
	}
	e.sessionsMu.Lock()
	e.sessions[remote.String()] = &sessionEntry{state: state}
	e.sessionsMu.Unlock()
	return nil
}

// DeleteSession removes the session for the address from memory and store.
func (e *Engine) DeleteSession(remote domain.ProtocolAddress) error {
	e.sessionsMu.Lock()
	delete(e.sessions, remote.String())
	e.sessionsMu.Unlock()
	if e.store != nil {
		return e.store.DeleteSession(remote.String())
	}
	return nil
}

// CleanupSkippedKeys drops skipped message keys older than the retention
// cutoff from every in-memory session.
func (e *Engine) CleanupSkippedKeys() {
	e.sessionsMu.RLock()
	entries := make(map[string]*sessionEntry, len(e.sessions))
	for addr, entry := range e.sessions {
		entries[addr] = entry
	}
	e.sessionsMu.RUnlock()

	for addr, entry := range entries {
		entry.mu.Lock()
		before := entry.state.SkippedKeyCount()
		entry.state.CleanupSkippedKeys(ratchet.DefaultSkippedKeyMaxAge)
		if dropped := before - entry.state.SkippedKeyCount(); dropped > 0 {
			if err := e.persistSession(addr, entry.state); err != nil {
				e.log.Warn("persist after skipped-key cleanup failed", "peer", addr, "err", err)
			}
			e.log.Debug("skipped keys expired", "peer", addr, "dropped", dropped)
		}
		entry.mu.Unlock()
	}
}

// session returns the entry for addr, restoring it from the store on a miss.
func (e *Engine) session(addr string) (*sessionEntry, error) {
	e.sessionsMu.RLock()
	entry, ok := e.sessions[addr]
	e.sessionsMu.RUnlock()
	if ok {
		return entry, nil
	}

	if e.store != nil {
		blob, ok, err := e.store.GetSession(addr)
		if err != nil {
			return nil, fmt.Errorf("engine: load session %s: %w", addr, err)
		}
		if ok {
			state, err := ratchet.UnmarshalSessionState(blob)
			if err != nil {
				return nil, err
			}
			e.sessionsMu.Lock()
			defer e.sessionsMu.Unlock()
			if existing, ok := e.sessions[addr]; ok {
				return existing, nil
			}
			entry = &sessionEntry{state: state}
			e.sessions[addr] = entry
			return entry, nil
		}
	}
	return nil, ErrUnknownSession
}

func (e *Engine) persistSession(addr string, state *ratchet.SessionState) error {
	if e.store == nil {
		return nil
	}
	blob, err := state.Marshal()
	if err != nil {
		return err
	}
	if err := e.store.PutSession(addr, blob); err != nil {
		return fmt.Errorf("engine: persist session %s: %w", addr, err)
	}
	return nil
}

func keyPairOrNil(pk *domain.PreKey) *crypto.DHKeyPair {
	if pk == nil {
		return nil
	}
	return pk.KeyPair
}
