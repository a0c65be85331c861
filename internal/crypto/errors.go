package crypto

import "errors"

var (
	// ErrInvalidKeyLength indicates malformed key material on input.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length")
	// ErrInvalidPublicKey indicates bytes that do not decode to a curve point.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")
	// ErrBadSignature indicates a failed Ed25519 verification.
	ErrBadSignature = errors.New("crypto: signature verification failed")
	// ErrDecryptionFailed indicates an AEAD authentication failure.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)
