package ratchet

import (
	"errors"
	"math"
	"time"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
	"github.com/phlthy88/Signal-You-Messenger/internal/util/memzero"
)

const (
	// maxSkip bounds how many message keys a single decrypt may derive past
	// the stored receive counter.
	maxSkip = 1000
	// maxSkippedKeys caps the stored skipped-key table. When full, the
	// oldest entry is zeroized and evicted before a new one is stored.
	maxSkippedKeys = 1000

	// DefaultSkippedKeyMaxAge is the retention cutoff for skipped keys.
	DefaultSkippedKeyMaxAge = 7 * 24 * time.Hour
)

var (
	// ErrNoSendingChain indicates an encrypt before the sending chain
	// exists. The session must be re-established.
	ErrNoSendingChain = errors.New("ratchet: no sending chain key")
	// ErrNoReceivingChain indicates a decrypt with no receiving chain,
	// which means corrupted state or a protocol bug.
	ErrNoReceivingChain = errors.New("ratchet: no receiving chain key")
	// ErrTooManySkippedMessages indicates a message counter too far ahead
	// of the receive counter. The session state is left unchanged.
	ErrTooManySkippedMessages = errors.New("ratchet: too many skipped messages")
	// ErrCorruptState indicates a persisted session blob that does not
	// decode.
	ErrCorruptState = errors.New("ratchet: corrupt session state")
)

type skippedKeyID struct {
	ratchetKey crypto.DHPublicKey
	counter    uint32
}

// skippedKey is a derived-but-unused message key retained for late
// delivery. Zeroed on eviction and consumption. seq records insertion
// order so capacity eviction is deterministic even when timestamps tie.
type skippedKey struct {
	cipherKey [crypto.KeySize]byte
	macKey    [crypto.KeySize]byte
	iv        [crypto.IVSize]byte
	timestamp int64
	seq       uint64
}

func (k *skippedKey) zero() {
	memzero.Zero32(&k.cipherKey)
	memzero.Zero32(&k.macKey)
	memzero.Zero(k.iv[:])
}

// SessionState is the per-peer ratchet state. It is owned by the engine's
// session registry and mutated only through Encrypt and Decrypt.
type SessionState struct {
	dhSelf   *crypto.DHKeyPair
	dhRemote *crypto.DHPublicKey

	rootKey           [crypto.KeySize]byte
	sendingChainKey   *[crypto.KeySize]byte
	receivingChainKey *[crypto.KeySize]byte

	sendingCounter   uint32
	receivingCounter uint32
	previousCounter  uint32

	skipped    map[skippedKeyID]*skippedKey
	skippedSeq uint64
}

// InitializeAlice creates the initiator's session from the X3DH shared
// secret. One DH ratchet step is performed immediately, so the sending chain
// is ready before the first message.
func InitializeAlice(
	sharedSecret [crypto.KeySize]byte,
	ourRatchetKey *crypto.DHKeyPair,
	theirRatchetKey crypto.DHPublicKey,
) (*SessionState, error) {
	dh, err := ourRatchetKey.Agreement(theirRatchetKey)
	if err != nil {
		return nil, err
	}
	rootKey, sendingChainKey := crypto.DeriveRootKey(sharedSecret, dh)
	memzero.Zero32(&dh)

	remote := theirRatchetKey
	return &SessionState{
		dhSelf:          ourRatchetKey,
		dhRemote:        &remote,
		rootKey:         rootKey,
		sendingChainKey: &sendingChainKey,
		skipped:         make(map[skippedKeyID]*skippedKey),
	}, nil
}

// InitializeBob creates the responder's session from the X3DH shared secret.
// Neither chain exists yet; the first decrypt performs the DH ratchet step
// that populates them. ourRatchetKey must be the signed pre-key pair the
// initiator ratcheted against.
func InitializeBob(
	sharedSecret [crypto.KeySize]byte,
	ourRatchetKey *crypto.DHKeyPair,
) *SessionState {
	return &SessionState{
		dhSelf:  ourRatchetKey,
		rootKey: sharedSecret,
		skipped: make(map[skippedKeyID]*skippedKey),
	}
}

// RatchetPublicKey returns our current ratchet public key.
func (s *SessionState) RatchetPublicKey() crypto.DHPublicKey {
	return s.dhSelf.PublicKey()
}

// SendingCounter returns the next outgoing message counter.
func (s *SessionState) SendingCounter() uint32 { return s.sendingCounter }

// ReceivingCounter returns the next expected incoming message counter.
func (s *SessionState) ReceivingCounter() uint32 { return s.receivingCounter }

// SkippedKeyCount returns the number of stored skipped message keys.
func (s *SessionState) SkippedKeyCount() int { return len(s.skipped) }

// Encrypt derives the next message key from the sending chain, advances the
// chain and builds the wire message. The counters and chain key are only
// updated once encryption has succeeded.
func (s *SessionState) Encrypt(plaintext []byte) (domain.RatchetMessage, error) {
	if s.sendingChainKey == nil {
		return domain.RatchetMessage{}, ErrNoSendingChain
	}

	mk := crypto.DeriveMessageKeys(*s.sendingChainKey)
	defer mk.Zero()

	var nonce [crypto.NonceSize]byte
	copy(nonce[:], mk.IV[:crypto.NonceSize])
	ciphertext, err := crypto.Encrypt(&mk.CipherKey, &nonce, plaintext)
	if err != nil {
		return domain.RatchetMessage{}, err
	}

	header := domain.MessageHeader{
		RatchetKey:      s.dhSelf.PublicKey(),
		PreviousCounter: s.previousCounter,
		Counter:         s.sendingCounter,
	}

	*s.sendingChainKey = mk.NextChainKey
	s.sendingCounter++

	return domain.RatchetMessage{Header: header, Ciphertext: ciphertext}, nil
}

// Decrypt processes an incoming message: skipped-key lookup, DH ratchet on a
// new remote key, skip-and-store up to the message counter, then AEAD open.
// Any failure leaves the session exactly as it was.
func (s *SessionState) Decrypt(msg domain.RatchetMessage) ([]byte, error) {
	id := skippedKeyID{ratchetKey: msg.Header.RatchetKey, counter: msg.Header.Counter}
	if sk, ok := s.skipped[id]; ok {
		var nonce [crypto.NonceSize]byte
		copy(nonce[:], sk.iv[:crypto.NonceSize])
		plaintext, err := crypto.Decrypt(&sk.cipherKey, &nonce, msg.Ciphertext)
		if err != nil {
			return nil, err
		}
		sk.zero()
		delete(s.skipped, id)
		return plaintext, nil
	}

	// Work on a copy so a failure part-way through the skip/ratchet/open
	// sequence cannot leave the session half-advanced.
	staged := s.Clone()
	plaintext, err := staged.decryptCommit(msg)
	if err != nil {
		return nil, err
	}
	s.Zero()
	*s = *staged
	return plaintext, nil
}

// Zero wipes all key material held by the state. The state is unusable
// afterwards.
func (s *SessionState) Zero() {
	s.dhSelf.Zero()
	memzero.Zero32(&s.rootKey)
	if s.sendingChainKey != nil {
		memzero.Zero32(s.sendingChainKey)
	}
	if s.receivingChainKey != nil {
		memzero.Zero32(s.receivingChainKey)
	}
	for _, sk := range s.skipped {
		sk.zero()
	}
}

func (s *SessionState) decryptCommit(msg domain.RatchetMessage) ([]byte, error) {
	theirKey := msg.Header.RatchetKey
	if s.dhRemote == nil || *s.dhRemote != theirKey {
		if s.receivingChainKey != nil {
			// Close out the current receiving chain before stepping.
			if err := s.skipMessageKeys(msg.Header.PreviousCounter); err != nil {
				return nil, err
			}
		}
		if err := s.dhRatchet(theirKey); err != nil {
			return nil, err
		}
	}

	if s.receivingChainKey == nil {
		return nil, ErrNoReceivingChain
	}
	if err := s.skipMessageKeys(msg.Header.Counter); err != nil {
		return nil, err
	}

	mk := crypto.DeriveMessageKeys(*s.receivingChainKey)
	defer mk.Zero()

	var nonce [crypto.NonceSize]byte
	copy(nonce[:], mk.IV[:crypto.NonceSize])
	plaintext, err := crypto.Decrypt(&mk.CipherKey, &nonce, msg.Ciphertext)
	if err != nil {
		return nil, err
	}

	next := mk.NextChainKey
	s.receivingChainKey = &next
	s.receivingCounter = msg.Header.Counter + 1
	return plaintext, nil
}

// dhRatchet steps the DH ratchet against a newly seen remote key: a new
// receiving chain from DH(old local key, new remote key), then a new local
// key pair and a new sending chain from DH(new local key, new remote key),
// advancing the root key twice.
func (s *SessionState) dhRatchet(theirKey crypto.DHPublicKey) error {
	s.previousCounter = s.sendingCounter
	s.sendingCounter = 0
	s.receivingCounter = 0

	remote := theirKey
	s.dhRemote = &remote

	dh, err := s.dhSelf.Agreement(theirKey)
	if err != nil {
		return err
	}
	rootKey, receivingChainKey := crypto.DeriveRootKey(s.rootKey, dh)
	memzero.Zero32(&dh)
	s.rootKey = rootKey
	s.receivingChainKey = &receivingChainKey

	newSelf, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return err
	}
	s.dhSelf.Zero()
	s.dhSelf = newSelf

	dh, err = s.dhSelf.Agreement(theirKey)
	if err != nil {
		return err
	}
	rootKey, sendingChainKey := crypto.DeriveRootKey(s.rootKey, dh)
	memzero.Zero32(&dh)
	s.rootKey = rootKey
	s.sendingChainKey = &sendingChainKey
	return nil
}

// skipMessageKeys derives and stores message keys in the receiving chain up
// to (but not including) until.
func (s *SessionState) skipMessageKeys(until uint32) error {
	if s.receivingChainKey == nil || until <= s.receivingCounter {
		return nil
	}
	if until-s.receivingCounter > maxSkip {
		return ErrTooManySkippedMessages
	}
	if s.dhRemote == nil {
		return nil
	}

	for s.receivingCounter < until {
		mk := crypto.DeriveMessageKeys(*s.receivingChainKey)
		s.storeSkippedKey(*s.dhRemote, s.receivingCounter, &mk)
		next := mk.NextChainKey
		s.receivingChainKey = &next
		s.receivingCounter++
		memzero.Zero32(&mk.NextChainKey)
	}
	return nil
}

func (s *SessionState) storeSkippedKey(remote crypto.DHPublicKey, counter uint32, mk *crypto.MessageKeys) {
	if len(s.skipped) >= maxSkippedKeys {
		var oldestID skippedKeyID
		oldest := uint64(math.MaxUint64)
		for id, sk := range s.skipped {
			if sk.seq < oldest {
				oldest = sk.seq
				oldestID = id
			}
		}
		s.skipped[oldestID].zero()
		delete(s.skipped, oldestID)
	}

	sk := &skippedKey{timestamp: time.Now().Unix(), seq: s.skippedSeq}
	s.skippedSeq++
	sk.cipherKey = mk.CipherKey
	sk.macKey = mk.MACKey
	sk.iv = mk.IV
	s.skipped[skippedKeyID{ratchetKey: remote, counter: counter}] = sk
}

// CleanupSkippedKeys zeroizes and drops skipped keys older than maxAge.
func (s *SessionState) CleanupSkippedKeys(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge).Unix()
	for id, sk := range s.skipped {
		if sk.timestamp < cutoff {
			sk.zero()
			delete(s.skipped, id)
		}
	}
}

// Clone returns a deep copy of the session state.
func (s *SessionState) Clone() *SessionState {
	cp := &SessionState{
		dhSelf:           s.dhSelf.Clone(),
		rootKey:          s.rootKey,
		sendingCounter:   s.sendingCounter,
		receivingCounter: s.receivingCounter,
		previousCounter:  s.previousCounter,
		skipped:          make(map[skippedKeyID]*skippedKey, len(s.skipped)),
		skippedSeq:       s.skippedSeq,
	}
	if s.dhRemote != nil {
		remote := *s.dhRemote
		cp.dhRemote = &remote
	}
	if s.sendingChainKey != nil {
		ck := *s.sendingChainKey
		cp.sendingChainKey = &ck
	}
	if s.receivingChainKey != nil {
		ck := *s.receivingChainKey
		cp.receivingChainKey = &ck
	}
	for id, sk := range s.skipped {
		skc := *sk
		cp.skipped[id] = &skc
	}
	return cp
}
