package domain

import (
	"encoding/binary"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
)

// InitialMessageVersion is the protocol version byte on InitialMessage.
const InitialMessageVersion = 3

const headerSize = crypto.KeySize + 8

// MessageHeader accompanies every ratchet ciphertext: the sender's current
// ratchet public key plus the previous-chain and current message counters.
type MessageHeader struct {
	RatchetKey      crypto.DHPublicKey
	PreviousCounter uint32
	Counter         uint32
}

// Serialize encodes the fixed 40-byte header.
func (h MessageHeader) Serialize() []byte {
	out := make([]byte, 0, headerSize)
	out = append(out, h.RatchetKey[:]...)
	out = binary.BigEndian.AppendUint32(out, h.PreviousCounter)
	out = binary.BigEndian.AppendUint32(out, h.Counter)
	return out
}

// ParseMessageHeader decodes a serialized header.
func ParseMessageHeader(data []byte) (MessageHeader, error) {
	var h MessageHeader
	if len(data) < headerSize {
		return h, ErrMalformedMessage
	}
	copy(h.RatchetKey[:], data[:crypto.KeySize])
	h.PreviousCounter = binary.BigEndian.Uint32(data[crypto.KeySize : crypto.KeySize+4])
	h.Counter = binary.BigEndian.Uint32(data[crypto.KeySize+4 : headerSize])
	return h, nil
}

// RatchetMessage is the wire unit for an established session.
type RatchetMessage struct {
	Header     MessageHeader
	Ciphertext []byte
}

// Serialize encodes header length, header and ciphertext.
func (m RatchetMessage) Serialize() []byte {
	header := m.Header.Serialize()
	out := make([]byte, 0, 4+len(header)+len(m.Ciphertext))
	out = binary.BigEndian.AppendUint32(out, uint32(len(header)))
	out = append(out, header...)
	out = append(out, m.Ciphertext...)
	return out
}

// ParseRatchetMessage decodes a serialized ratchet message.
func ParseRatchetMessage(data []byte) (RatchetMessage, error) {
	var m RatchetMessage
	if len(data) < 4 {
		return m, ErrMalformedMessage
	}
	headerLen := int(binary.BigEndian.Uint32(data[:4]))
	if headerLen < 0 || len(data) < 4+headerLen {
		return m, ErrMalformedMessage
	}
	header, err := ParseMessageHeader(data[4 : 4+headerLen])
	if err != nil {
		return m, err
	}
	m.Header = header
	m.Ciphertext = append([]byte(nil), data[4+headerLen:]...)
	return m, nil
}

// InitialMessage is the first message in a new conversation direction: a
// ratchet message wrapped with the X3DH public parameters the responder
// needs to derive the shared secret.
type InitialMessage struct {
	Version        byte
	IdentityKey    crypto.IdentityPublicKey
	EphemeralKey   crypto.DHPublicKey
	PreKeyID       *uint32
	SignedPreKeyID uint32
	Message        []byte // serialized RatchetMessage
}

// NewInitialMessage wraps a serialized ratchet message with X3DH parameters.
func NewInitialMessage(
	identityKey crypto.IdentityPublicKey,
	ephemeralKey crypto.DHPublicKey,
	preKeyID *uint32,
	signedPreKeyID uint32,
	message []byte,
) InitialMessage {
	return InitialMessage{
		Version:        InitialMessageVersion,
		IdentityKey:    identityKey,
		EphemeralKey:   ephemeralKey,
		PreKeyID:       preKeyID,
		SignedPreKeyID: signedPreKeyID,
		Message:        message,
	}
}

// Serialize encodes the initial message for transmission.
func (m InitialMessage) Serialize() []byte {
	out := make([]byte, 0, 80+len(m.Message))
	out = append(out, m.Version)
	out = append(out, m.IdentityKey[:]...)
	out = append(out, m.EphemeralKey[:]...)
	if m.PreKeyID != nil {
		out = append(out, 1)
		out = binary.BigEndian.AppendUint32(out, *m.PreKeyID)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint32(out, m.SignedPreKeyID)
	out = binary.BigEndian.AppendUint32(out, uint32(len(m.Message)))
	out = append(out, m.Message...)
	return out
}

// ParseInitialMessage decodes a received initial message.
func ParseInitialMessage(data []byte) (InitialMessage, error) {
	var m InitialMessage
	if len(data) < 1+2*crypto.KeySize+1+8 {
		return m, ErrMalformedMessage
	}
	m.Version = data[0]
	if m.Version != InitialMessageVersion {
		return m, ErrUnsupportedVersion
	}
	copy(m.IdentityKey[:], data[1:1+crypto.KeySize])
	copy(m.EphemeralKey[:], data[1+crypto.KeySize:1+2*crypto.KeySize])

	off := 1 + 2*crypto.KeySize
	hasPreKey := data[off] == 1
	off++
	if hasPreKey {
		if len(data) < off+4 {
			return m, ErrMalformedMessage
		}
		id := binary.BigEndian.Uint32(data[off : off+4])
		m.PreKeyID = &id
		off += 4
	}

	if len(data) < off+8 {
		return m, ErrMalformedMessage
	}
	m.SignedPreKeyID = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	msgLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+msgLen {
		return m, ErrMalformedMessage
	}
	m.Message = append([]byte(nil), data[off:off+msgLen]...)
	return m, nil
}
