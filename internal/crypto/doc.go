// Package crypto exposes the primitives used by the protocol engine.
//
// Contents
//
//   - Ed25519 identity key pairs with signing and a deterministic X25519
//     conversion for Diffie-Hellman (IdentityKeyPair, IdentityPublicKey)
//   - X25519 key generation, clamping and agreement (DHKeyPair, DHPublicKey)
//   - HKDF-SHA256 derivation: X3DH secret, root-key step, message keys
//   - AES-256-GCM authenticated encryption with 96-bit nonces
//   - Safety-number fingerprints for identity verification
//
// # Notes
//
// Fixed-size array types are used for all key material to avoid accidental
// reallocations. Callers should treat returned secrets as sensitive and rely
// on the Zero methods when practical to reduce lifetime in memory.
package crypto
