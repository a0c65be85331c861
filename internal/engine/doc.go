// Package engine ties the key agreement and ratchet layers together behind
// one API: local identity and pre-key management, session establishment from
// pre-key bundles and initial messages, per-peer encrypt/decrypt, identity
// trust and safety numbers.
//
// The engine is safe for concurrent use. Each session has its own lock, so
// traffic with different peers does not serialize. When a store is attached,
// state changes are written through before they are committed in memory.
package engine
