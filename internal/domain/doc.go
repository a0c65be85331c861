// Package domain holds the shared protocol types: addresses, pre-keys,
// bundles, wire messages and the store interfaces consumed by the engine.
//
// Wire formats use big-endian integers throughout and are fixed by the
// protocol; see the Serialize/Parse pairs on each type.
package domain
