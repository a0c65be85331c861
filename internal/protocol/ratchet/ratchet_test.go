package ratchet_test

import (
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
	"github.com/phlthy88/Signal-You-Messenger/internal/protocol/ratchet"
)

// newSessionPair wires an initiator and responder session from a random
// shared secret, the way the engine does after X3DH completes.
func newSessionPair(t *testing.T) (alice, bob *ratchet.SessionState) {
	t.Helper()

	var secret [crypto.KeySize]byte
	_, err := rand.Read(secret[:])
	require.NoError(t, err)

	bobRatchetKey, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)
	aliceRatchetKey, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)

	alice, err = ratchet.InitializeAlice(secret, aliceRatchetKey, bobRatchetKey.PublicKey())
	require.NoError(t, err)
	bob = ratchet.InitializeBob(secret, bobRatchetKey)
	return alice, bob
}

func TestFirstMessageRoundTrip(t *testing.T) {
	alice, bob := newSessionPair(t)

	msg, err := alice.Encrypt([]byte("hello over the ratchet"))
	require.NoError(t, err)
	require.NotEqual(t, []byte("hello over the ratchet"), msg.Ciphertext)

	plaintext, err := bob.Decrypt(msg)
	require.NoError(t, err)
	require.Equal(t, []byte("hello over the ratchet"), plaintext)
}

func TestResponderCannotEncryptBeforeFirstDecrypt(t *testing.T) {
	_, bob := newSessionPair(t)

	_, err := bob.Encrypt([]byte("too early"))
	require.ErrorIs(t, err, ratchet.ErrNoSendingChain)
}

func TestSequentialMessages(t *testing.T) {
	alice, bob := newSessionPair(t)

	for i := 0; i < 20; i++ {
		want := []byte(fmt.Sprintf("message %d", i))
		msg, err := alice.Encrypt(want)
		require.NoError(t, err)

		got, err := bob.Decrypt(msg)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Equal(t, uint32(20), alice.SendingCounter())
	require.Equal(t, uint32(20), bob.ReceivingCounter())
}

func TestPingPong(t *testing.T) {
	alice, bob := newSessionPair(t)

	for round := 0; round < 10; round++ {
		fromAlice := []byte(fmt.Sprintf("alice round %d", round))
		msg, err := alice.Encrypt(fromAlice)
		require.NoError(t, err)
		got, err := bob.Decrypt(msg)
		require.NoError(t, err)
		require.Equal(t, fromAlice, got)

		fromBob := []byte(fmt.Sprintf("bob round %d", round))
		msg, err = bob.Encrypt(fromBob)
		require.NoError(t, err)
		got, err = alice.Decrypt(msg)
		require.NoError(t, err)
		require.Equal(t, fromBob, got)
	}
}

func TestOutOfOrderDelivery(t *testing.T) {
	alice, bob := newSessionPair(t)

	var msgs []domain.RatchetMessage
	for i := 0; i < 3; i++ {
		msg, err := alice.Encrypt([]byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}

	got, err := bob.Decrypt(msgs[0])
	require.NoError(t, err)
	require.Equal(t, []byte("m0"), got)

	// Skipping m1 must store its key.
	got, err = bob.Decrypt(msgs[2])
	require.NoError(t, err)
	require.Equal(t, []byte("m2"), got)
	require.Equal(t, 1, bob.SkippedKeyCount())

	got, err = bob.Decrypt(msgs[1])
	require.NoError(t, err)
	require.Equal(t, []byte("m1"), got)
	require.Equal(t, 0, bob.SkippedKeyCount())
}

func TestSkippedKeyConsumedOnce(t *testing.T) {
	alice, bob := newSessionPair(t)

	m0, err := alice.Encrypt([]byte("zero"))
	require.NoError(t, err)
	m1, err := alice.Encrypt([]byte("one"))
	require.NoError(t, err)

	_, err = bob.Decrypt(m1)
	require.NoError(t, err)

	_, err = bob.Decrypt(m0)
	require.NoError(t, err)

	// Replay of an already consumed message must not decrypt.
	_, err = bob.Decrypt(m0)
	require.Error(t, err)
}

func TestSkipBoundRejectedWithoutStateChange(t *testing.T) {
	alice, bob := newSessionPair(t)

	first, err := alice.Encrypt([]byte("first"))
	require.NoError(t, err)
	_, err = bob.Decrypt(first)
	require.NoError(t, err)

	var far domain.RatchetMessage
	for i := 0; i < 1500; i++ {
		far, err = alice.Encrypt([]byte("filler"))
		require.NoError(t, err)
	}

	before := bob.ReceivingCounter()
	_, err = bob.Decrypt(far)
	require.ErrorIs(t, err, ratchet.ErrTooManySkippedMessages)
	require.Equal(t, before, bob.ReceivingCounter())
	require.Equal(t, 0, bob.SkippedKeyCount())
}

func TestTamperedCiphertextLeavesStateUsable(t *testing.T) {
	alice, bob := newSessionPair(t)

	msg, err := alice.Encrypt([]byte("intact"))
	require.NoError(t, err)

	tampered := msg
	tampered.Ciphertext = append([]byte(nil), msg.Ciphertext...)
	tampered.Ciphertext[0] ^= 0x01

	_, err = bob.Decrypt(tampered)
	require.ErrorIs(t, err, crypto.ErrDecryptionFailed)

	// The failed attempt must not have advanced the chain.
	got, err := bob.Decrypt(msg)
	require.NoError(t, err)
	require.Equal(t, []byte("intact"), got)
}

func TestRatchetKeyRotatesAcrossTurns(t *testing.T) {
	alice, bob := newSessionPair(t)

	m, err := alice.Encrypt([]byte("a1"))
	require.NoError(t, err)
	aliceKey1 := m.Header.RatchetKey
	_, err = bob.Decrypt(m)
	require.NoError(t, err)

	m, err = bob.Encrypt([]byte("b1"))
	require.NoError(t, err)
	_, err = alice.Decrypt(m)
	require.NoError(t, err)

	m, err = alice.Encrypt([]byte("a2"))
	require.NoError(t, err)
	require.NotEqual(t, aliceKey1, m.Header.RatchetKey)
	require.Equal(t, uint32(0), m.Header.Counter)
	require.Equal(t, uint32(1), m.Header.PreviousCounter)
	_, err = bob.Decrypt(m)
	require.NoError(t, err)
}

func TestSerializationRoundTrip(t *testing.T) {
	alice, bob := newSessionPair(t)

	m0, err := alice.Encrypt([]byte("before save"))
	require.NoError(t, err)
	m1, err := alice.Encrypt([]byte("skipped"))
	require.NoError(t, err)
	m2, err := alice.Encrypt([]byte("after gap"))
	require.NoError(t, err)

	_, err = bob.Decrypt(m0)
	require.NoError(t, err)
	_, err = bob.Decrypt(m2)
	require.NoError(t, err)
	require.Equal(t, 1, bob.SkippedKeyCount())

	blob, err := bob.Marshal()
	require.NoError(t, err)

	restored, err := ratchet.UnmarshalSessionState(blob)
	require.NoError(t, err)
	require.Equal(t, bob.SendingCounter(), restored.SendingCounter())
	require.Equal(t, bob.ReceivingCounter(), restored.ReceivingCounter())
	require.Equal(t, bob.SkippedKeyCount(), restored.SkippedKeyCount())
	require.Equal(t, bob.RatchetPublicKey(), restored.RatchetPublicKey())

	// The restored session must drain the skipped key and keep conversing.
	got, err := restored.Decrypt(m1)
	require.NoError(t, err)
	require.Equal(t, []byte("skipped"), got)

	reply, err := restored.Encrypt([]byte("picked up where we left off"))
	require.NoError(t, err)
	got, err = alice.Decrypt(reply)
	require.NoError(t, err)
	require.Equal(t, []byte("picked up where we left off"), got)
}

func TestSkippedKeyCapacityEviction(t *testing.T) {
	alice, bob := newSessionPair(t)

	msgs := make([]domain.RatchetMessage, 1003)
	for i := range msgs {
		m, err := alice.Encrypt([]byte(fmt.Sprintf("bulk %d", i)))
		require.NoError(t, err)
		msgs[i] = m
	}

	// Skipping 1000 messages fills the table exactly to capacity.
	_, err := bob.Decrypt(msgs[1000])
	require.NoError(t, err)
	require.Equal(t, 1000, bob.SkippedKeyCount())

	// One more skipped key evicts the oldest entry instead of growing.
	_, err = bob.Decrypt(msgs[1002])
	require.NoError(t, err)
	require.Equal(t, 1000, bob.SkippedKeyCount())

	// The evicted key belonged to the first skipped message.
	_, err = bob.Decrypt(msgs[0])
	require.Error(t, err)

	// The second-oldest entry survived the eviction.
	got, err := bob.Decrypt(msgs[1])
	require.NoError(t, err)
	require.Equal(t, []byte("bulk 1"), got)
	require.Equal(t, 999, bob.SkippedKeyCount())
}

func TestSkippedKeyAgeCleanup(t *testing.T) {
	alice, bob := newSessionPair(t)

	m0, err := alice.Encrypt([]byte("zero"))
	require.NoError(t, err)
	_, err = alice.Encrypt([]byte("one"))
	require.NoError(t, err)
	m2, err := alice.Encrypt([]byte("two"))
	require.NoError(t, err)

	_, err = bob.Decrypt(m2)
	require.NoError(t, err)
	require.Equal(t, 2, bob.SkippedKeyCount())

	// Nothing is old enough yet.
	bob.CleanupSkippedKeys(time.Hour)
	require.Equal(t, 2, bob.SkippedKeyCount())

	// A cutoff in the future expires every entry.
	bob.CleanupSkippedKeys(-time.Second)
	require.Equal(t, 0, bob.SkippedKeyCount())

	_, err = bob.Decrypt(m0)
	require.Error(t, err)
}

func TestZeroedCloneLeavesOriginalUsable(t *testing.T) {
	alice, bob := newSessionPair(t)

	m0, err := alice.Encrypt([]byte("zero"))
	require.NoError(t, err)
	m1, err := alice.Encrypt([]byte("one"))
	require.NoError(t, err)

	_, err = bob.Decrypt(m1)
	require.NoError(t, err)
	require.Equal(t, 1, bob.SkippedKeyCount())

	// Wiping a deep copy must not disturb the live session's keys.
	cp := bob.Clone()
	cp.Zero()

	got, err := bob.Decrypt(m0)
	require.NoError(t, err)
	require.Equal(t, []byte("zero"), got)

	reply, err := bob.Encrypt([]byte("still alive"))
	require.NoError(t, err)
	got, err = alice.Decrypt(reply)
	require.NoError(t, err)
	require.Equal(t, []byte("still alive"), got)
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := ratchet.UnmarshalSessionState([]byte{0xde, 0xad, 0xbe, 0xef})
	require.ErrorIs(t, err, ratchet.ErrCorruptState)
}
