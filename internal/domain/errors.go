package domain

import "errors"

var (
	// ErrMalformedMessage indicates a wire parsing failure, surfaced before
	// any cryptographic operation.
	ErrMalformedMessage = errors.New("domain: malformed message")
	// ErrUnsupportedVersion indicates an initial message with an unknown
	// protocol version byte.
	ErrUnsupportedVersion = errors.New("domain: unsupported protocol version")
	// ErrBadAddress indicates a protocol address string that does not parse.
	ErrBadAddress = errors.New("domain: invalid protocol address")
)
