// Package x3dh implements the Extended Triple Diffie-Hellman key agreement
// used to establish the initial shared secret of a session.
//
// Reference: https://signal.org/docs/specifications/x3dh/
package x3dh
