package engine

import "errors"

var (
	// ErrNoIdentity indicates a Load from a store that holds no identity.
	ErrNoIdentity = errors.New("engine: no identity in store")
	// ErrNoSignedPreKey indicates a bundle was requested before a signed
	// pre-key exists.
	ErrNoSignedPreKey = errors.New("engine: no signed pre-key")
	// ErrUnknownSession indicates no session exists for the address.
	ErrUnknownSession = errors.New("engine: unknown session")
	// ErrUnknownPreKey indicates an initial message referencing a one-time
	// pre-key we no longer hold. Most likely the message was replayed.
	ErrUnknownPreKey = errors.New("engine: unknown one-time pre-key")
	// ErrUnknownSignedPreKey indicates an initial message built against a
	// signed pre-key that has since been rotated away.
	ErrUnknownSignedPreKey = errors.New("engine: unknown signed pre-key")
	// ErrIdentityMismatch indicates a peer presented an identity key that
	// differs from the one previously recorded for it.
	ErrIdentityMismatch = errors.New("engine: identity key changed for peer")
	// ErrUntrustedIdentity indicates no recorded identity for the peer.
	ErrUntrustedIdentity = errors.New("engine: no trusted identity for peer")
)
