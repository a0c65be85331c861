package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
	"github.com/phlthy88/Signal-You-Messenger/internal/engine"
	"github.com/phlthy88/Signal-You-Messenger/internal/protocol/x3dh"
	"github.com/phlthy88/Signal-You-Messenger/internal/store"
)

// newPeer builds an engine with published pre-keys, backed by a memory store.
func newPeer(t *testing.T, name string) (*engine.Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	e, err := engine.New(name, st)
	require.NoError(t, err)
	_, err = e.GenerateSignedPreKey()
	require.NoError(t, err)
	_, err = e.GeneratePreKeys(20)
	require.NoError(t, err)
	return e, st
}

func addr(name string) domain.ProtocolAddress {
	return domain.NewProtocolAddress(name, 1)
}

func TestConversationFlow(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NotNil(t, bundle.PreKeyID)

	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))
	require.True(t, alice.HasSession(addr("bob")))

	wire, err := alice.EncryptInitial(addr("bob"), []byte("Hello Bob!"))
	require.NoError(t, err)

	got, err := bob.DecryptInitial(addr("alice"), wire)
	require.NoError(t, err)
	require.Equal(t, []byte("Hello Bob!"), got)
	require.True(t, bob.HasSession(addr("alice")))

	reply, err := bob.Encrypt(addr("alice"), []byte("How are you?"))
	require.NoError(t, err)
	got, err = alice.Decrypt(addr("bob"), reply)
	require.NoError(t, err)
	require.Equal(t, []byte("How are you?"), got)

	// After the reply the handshake is complete on both ends.
	wire, err = alice.Encrypt(addr("bob"), []byte("Doing well."))
	require.NoError(t, err)
	got, err = bob.Decrypt(addr("alice"), wire)
	require.NoError(t, err)
	require.Equal(t, []byte("Doing well."), got)
}

func TestOneTimePreKeyConsumedOnce(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	before := bob.PreKeyCount()
	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))

	wire, err := alice.EncryptInitial(addr("bob"), []byte("first contact"))
	require.NoError(t, err)

	_, err = bob.DecryptInitial(addr("alice"), wire)
	require.NoError(t, err)
	require.Equal(t, before-1, bob.PreKeyCount())

	// A replay must not find the consumed one-time pre-key.
	_, err = bob.DecryptInitial(addr("alice"), wire)
	require.ErrorIs(t, err, engine.ErrUnknownPreKey)
	require.Equal(t, before-1, bob.PreKeyCount())
}

func TestBundleWithoutOneTimePreKey(t *testing.T) {
	alice, _ := newPeer(t, "alice")

	st := store.NewMemoryStore()
	bob, err := engine.New("bob", st)
	require.NoError(t, err)
	_, err = bob.GenerateSignedPreKey()
	require.NoError(t, err)

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.Nil(t, bundle.PreKeyID)

	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))
	wire, err := alice.EncryptInitial(addr("bob"), []byte("no opk available"))
	require.NoError(t, err)

	got, err := bob.DecryptInitial(addr("alice"), wire)
	require.NoError(t, err)
	require.Equal(t, []byte("no opk available"), got)
}

func TestBundleRequiresSignedPreKey(t *testing.T) {
	e, err := engine.New("carol", nil)
	require.NoError(t, err)
	_, err = e.CreatePreKeyBundle(1)
	require.ErrorIs(t, err, engine.ErrNoSignedPreKey)
}

func TestRotatedSignedPreKeyRejected(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))
	wire, err := alice.EncryptInitial(addr("bob"), []byte("stale"))
	require.NoError(t, err)

	// Bob rotates before the initial message arrives.
	_, err = bob.GenerateSignedPreKey()
	require.NoError(t, err)

	_, err = bob.DecryptInitial(addr("alice"), wire)
	require.ErrorIs(t, err, engine.ErrUnknownSignedPreKey)
}

func TestTamperedBundleRejected(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	bundle.SignedPreKeyPublic[0] ^= 0x01

	err = alice.ProcessPreKeyBundle(addr("bob"), bundle)
	require.ErrorIs(t, err, x3dh.ErrVerificationFailed)
	require.False(t, alice.HasSession(addr("bob")))
}

func TestIdentityMismatchRejected(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")
	impostor, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))

	forged, err := impostor.CreatePreKeyBundle(1)
	require.NoError(t, err)
	err = alice.ProcessPreKeyBundle(addr("bob"), forged)
	require.ErrorIs(t, err, engine.ErrIdentityMismatch)
}

func TestOutOfOrderThroughEngine(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))

	wire, err := alice.EncryptInitial(addr("bob"), []byte("m0"))
	require.NoError(t, err)
	_, err = bob.DecryptInitial(addr("alice"), wire)
	require.NoError(t, err)

	m1, err := alice.Encrypt(addr("bob"), []byte("m1"))
	require.NoError(t, err)
	m2, err := alice.Encrypt(addr("bob"), []byte("m2"))
	require.NoError(t, err)

	got, err := bob.Decrypt(addr("alice"), m2)
	require.NoError(t, err)
	require.Equal(t, []byte("m2"), got)
	got, err = bob.Decrypt(addr("alice"), m1)
	require.NoError(t, err)
	require.Equal(t, []byte("m1"), got)
}

func TestUnknownSession(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	_, err := alice.Encrypt(addr("stranger"), []byte("hello?"))
	require.ErrorIs(t, err, engine.ErrUnknownSession)
}

func TestSafetyNumberSymmetry(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	require.NoError(t, alice.TrustIdentity("bob", bob.IdentityKey()))
	require.NoError(t, bob.TrustIdentity("alice", alice.IdentityKey()))

	fromAlice, err := alice.GetSafetyNumber("bob")
	require.NoError(t, err)
	fromBob, err := bob.GetSafetyNumber("alice")
	require.NoError(t, err)
	require.Equal(t, fromAlice, fromBob)
	require.Len(t, fromAlice, 71)
}

func TestSafetyNumberUntrusted(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	_, err := alice.GetSafetyNumber("nobody")
	require.ErrorIs(t, err, engine.ErrUntrustedIdentity)
}

func TestTrustOnFirstUse(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))

	key, ok := alice.TrustedIdentity("bob")
	require.True(t, ok)
	require.Equal(t, bob.IdentityKey(), key)
	require.True(t, alice.IsIdentityTrusted("bob", bob.IdentityKey()))
	require.False(t, alice.IsIdentityTrusted("bob", alice.IdentityKey()))
}

func TestPreKeyRefill(t *testing.T) {
	st := store.NewMemoryStore()
	e, err := engine.New("dave", st)
	require.NoError(t, err)

	_, err = e.GeneratePreKeys(5)
	require.NoError(t, err)
	require.Equal(t, 5, e.PreKeyCount())

	published, err := e.RefillPreKeysIfNeeded()
	require.NoError(t, err)
	require.Len(t, published, 95)
	require.Equal(t, 100, e.PreKeyCount())

	// Already stocked, refill is a no-op.
	published, err = e.RefillPreKeysIfNeeded()
	require.NoError(t, err)
	require.Nil(t, published)
}

func TestPreKeyIDWrapsAfterReload(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := engine.New("erin", st)
	require.NoError(t, err)

	// A stored pre-key at the id ceiling must wrap the counter on load.
	pk, err := domain.GeneratePreKey(0x00FFFFFF)
	require.NoError(t, err)
	require.NoError(t, st.PutPreKey(pk))

	reloaded, err := engine.Load("erin", st)
	require.NoError(t, err)
	published, err := reloaded.GeneratePreKeys(1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), published[0].ID)
}

func TestFollowUpInitialMessagesUseExistingSession(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))

	// Alice keeps wrapping until Bob's first reply arrives.
	w0, err := alice.EncryptInitial(addr("bob"), []byte("first"))
	require.NoError(t, err)
	w1, err := alice.EncryptInitial(addr("bob"), []byte("second"))
	require.NoError(t, err)

	got, err := bob.DecryptInitial(addr("alice"), w0)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)

	// The second initial message rides the session built from the first
	// instead of re-running the key agreement.
	got, err = bob.DecryptInitial(addr("alice"), w1)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)

	reply, err := bob.Encrypt(addr("alice"), []byte("got both"))
	require.NoError(t, err)
	got, err = alice.Decrypt(addr("bob"), reply)
	require.NoError(t, err)
	require.Equal(t, []byte("got both"), got)
}

func TestInitialMessageReplayDoesNotResetSession(t *testing.T) {
	alice, _ := newPeer(t, "alice")

	st := store.NewMemoryStore()
	bob, err := engine.New("bob", st)
	require.NoError(t, err)
	_, err = bob.GenerateSignedPreKey()
	require.NoError(t, err)

	// No one-time pre-key in play, so nothing marks the replay as consumed.
	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.Nil(t, bundle.PreKeyID)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))

	wire, err := alice.EncryptInitial(addr("bob"), []byte("hello"))
	require.NoError(t, err)
	_, err = bob.DecryptInitial(addr("alice"), wire)
	require.NoError(t, err)

	reply, err := bob.Encrypt(addr("alice"), []byte("ack"))
	require.NoError(t, err)
	_, err = alice.Decrypt(addr("bob"), reply)
	require.NoError(t, err)

	// The replay must be rejected without rebuilding the session.
	_, err = bob.DecryptInitial(addr("alice"), wire)
	require.Error(t, err)

	// Ratchet progress on both ends is intact.
	wire, err = alice.Encrypt(addr("bob"), []byte("still in sync"))
	require.NoError(t, err)
	got, err := bob.Decrypt(addr("alice"), wire)
	require.NoError(t, err)
	require.Equal(t, []byte("still in sync"), got)
}

func TestEngineRestartResumesSession(t *testing.T) {
	alice, aliceStore := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))

	wire, err := alice.EncryptInitial(addr("bob"), []byte("before restart"))
	require.NoError(t, err)
	_, err = bob.DecryptInitial(addr("alice"), wire)
	require.NoError(t, err)

	reply, err := bob.Encrypt(addr("alice"), []byte("ack"))
	require.NoError(t, err)
	_, err = alice.Decrypt(addr("bob"), reply)
	require.NoError(t, err)

	// A fresh engine over the same store picks up identity and session.
	revived, err := engine.Load("alice", aliceStore)
	require.NoError(t, err)
	require.Equal(t, alice.IdentityKey(), revived.IdentityKey())
	require.Equal(t, alice.RegistrationID(), revived.RegistrationID())
	require.True(t, revived.HasSession(addr("bob")))

	wire, err = revived.Encrypt(addr("bob"), []byte("after restart"))
	require.NoError(t, err)
	got, err := bob.Decrypt(addr("alice"), wire)
	require.NoError(t, err)
	require.Equal(t, []byte("after restart"), got)
}

func TestLoadWithoutIdentity(t *testing.T) {
	_, err := engine.Load("ghost", store.NewMemoryStore())
	require.ErrorIs(t, err, engine.ErrNoIdentity)
}

func TestSessionBlobRestore(t *testing.T) {
	alice, _ := newPeer(t, "alice")
	bob, _ := newPeer(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(1)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(addr("bob"), bundle))
	wire, err := alice.EncryptInitial(addr("bob"), []byte("hi"))
	require.NoError(t, err)
	_, err = bob.DecryptInitial(addr("alice"), wire)
	require.NoError(t, err)

	blob, err := bob.SessionBlob(addr("alice"))
	require.NoError(t, err)

	carol, err := engine.New("carol", nil)
	require.NoError(t, err)
	require.NoError(t, carol.RestoreSession(addr("alice"), blob))
	require.True(t, carol.HasSession(addr("alice")))
}
