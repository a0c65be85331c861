package x3dh

import (
	"errors"
	"fmt"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
	"github.com/phlthy88/Signal-You-Messenger/internal/domain"
	"github.com/phlthy88/Signal-You-Messenger/internal/util/memzero"
)

// 32 bytes of 0xFF prepended to the DH concatenation, per the X3DH spec.
var kdfPadding = [crypto.KeySize]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

var (
	// ErrVerificationFailed indicates a bundle whose signed pre-key
	// signature does not verify. No session may be established from it.
	ErrVerificationFailed = errors.New("x3dh: bundle verification failed")
	// ErrMissingKeyMaterial indicates required key material was absent.
	ErrMissingKeyMaterial = errors.New("x3dh: missing key material")
)

// Result of the initiator side of the key agreement.
type Result struct {
	SharedSecret [crypto.KeySize]byte
	EphemeralKey crypto.DHPublicKey
	UsedPreKeyID *uint32
}

// Initiate performs X3DH as the initiator against a peer's published bundle.
//
// Four DH values are computed: DH1(IK_A, SPK_B), DH2(EK_A, IK_B),
// DH3(EK_A, SPK_B) and, when the bundle carries a one-time pre-key,
// DH4(EK_A, OPK_B). The concatenation, prefixed with the fixed padding, is
// fed through HKDF with a zero salt to obtain the shared secret.
func Initiate(ourIdentity *crypto.IdentityKeyPair, bundle domain.PreKeyBundle) (Result, error) {
	if err := bundle.Verify(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	ephemeral, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return Result{}, err
	}
	defer ephemeral.Zero()

	theirIdentityDH, err := bundle.IdentityKey.DHPublicKey()
	if err != nil {
		return Result{}, err
	}

	dh1, err := ourIdentity.DHAgreement(bundle.SignedPreKeyPublic)
	if err != nil {
		return Result{}, err
	}
	dh2, err := ephemeral.Agreement(theirIdentityDH)
	if err != nil {
		return Result{}, err
	}
	dh3, err := ephemeral.Agreement(bundle.SignedPreKeyPublic)
	if err != nil {
		return Result{}, err
	}

	concat := make([]byte, 0, 5*crypto.KeySize)
	concat = append(concat, kdfPadding[:]...)
	concat = append(concat, dh1[:]...)
	concat = append(concat, dh2[:]...)
	concat = append(concat, dh3[:]...)

	var usedPreKeyID *uint32
	if bundle.PreKeyPublic != nil {
		dh4, err := ephemeral.Agreement(*bundle.PreKeyPublic)
		if err != nil {
			return Result{}, err
		}
		concat = append(concat, dh4[:]...)
		memzero.Zero32(&dh4)
		usedPreKeyID = bundle.PreKeyID
	}

	res := Result{
		SharedSecret: kdf(concat),
		EphemeralKey: ephemeral.PublicKey(),
		UsedPreKeyID: usedPreKeyID,
	}
	memzero.Zero(concat)
	memzero.Zero32(&dh1)
	memzero.Zero32(&dh2)
	memzero.Zero32(&dh3)
	return res, nil
}

// Respond performs X3DH as the responder, with the roles of the four DH
// computations swapped. Given the same key material it produces a secret
// identical to the initiator's.
func Respond(
	ourIdentity *crypto.IdentityKeyPair,
	ourSignedPreKey *crypto.DHKeyPair,
	ourOneTimePreKey *crypto.DHKeyPair,
	theirIdentity crypto.IdentityPublicKey,
	theirEphemeral crypto.DHPublicKey,
) ([crypto.KeySize]byte, error) {
	var secret [crypto.KeySize]byte
	if ourSignedPreKey == nil {
		return secret, ErrMissingKeyMaterial
	}

	theirIdentityDH, err := theirIdentity.DHPublicKey()
	if err != nil {
		return secret, err
	}

	dh1, err := ourSignedPreKey.Agreement(theirIdentityDH)
	if err != nil {
		return secret, err
	}
	dh2, err := ourIdentity.DHAgreement(theirEphemeral)
	if err != nil {
		return secret, err
	}
	dh3, err := ourSignedPreKey.Agreement(theirEphemeral)
	if err != nil {
		return secret, err
	}

	concat := make([]byte, 0, 5*crypto.KeySize)
	concat = append(concat, kdfPadding[:]...)
	concat = append(concat, dh1[:]...)
	concat = append(concat, dh2[:]...)
	concat = append(concat, dh3[:]...)

	if ourOneTimePreKey != nil {
		dh4, err := ourOneTimePreKey.Agreement(theirEphemeral)
		if err != nil {
			return secret, err
		}
		concat = append(concat, dh4[:]...)
		memzero.Zero32(&dh4)
	}

	secret = kdf(concat)
	memzero.Zero(concat)
	memzero.Zero32(&dh1)
	memzero.Zero32(&dh2)
	memzero.Zero32(&dh3)
	return secret, nil
}

func kdf(input []byte) [crypto.KeySize]byte {
	salt := make([]byte, crypto.KeySize)
	var out [crypto.KeySize]byte
	copy(out[:], crypto.DeriveSecrets(input, salt, []byte("X3DH"), crypto.KeySize))
	return out
}
