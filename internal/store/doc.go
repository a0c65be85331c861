// Package store provides the persisted-state backends consumed by the
// engine: an in-memory store for tests and ephemeral sessions, and a
// file-backed store that keeps the identity seed in a passphrase-encrypted
// envelope and the rest as private JSON files.
package store
