// Package ratchet implements the Double Ratchet session state machine: a
// Diffie-Hellman ratchet stepped on direction changes combined with a
// symmetric-key ratchet stepped per message.
//
// A session starts in one of two states. The initiator (after
// InitializeAlice) has a sending chain and can encrypt immediately; the
// responder (after InitializeBob) has neither chain until its first decrypt
// triggers a DH ratchet step. After one ratchet step in each direction the
// session is fully bidirectional.
//
// All failure paths leave the session state untouched: a decrypt either
// fully commits (counters, chain keys, skipped-key table) or changes
// nothing. A corrupted session is unrecoverable without re-running the key
// agreement, so partial advancement is never acceptable.
//
// Reference: https://signal.org/docs/specifications/doubleratchet/
package ratchet
