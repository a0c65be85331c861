package ratchet

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/phlthy88/Signal-You-Messenger/internal/crypto"
	"github.com/phlthy88/Signal-You-Messenger/internal/util/memzero"
)

// sessionWire is the CBOR shape of a persisted session. Field numbers keep
// the encoding compact and stable across renames.
type sessionWire struct {
	DHSelfPriv []byte        `cbor:"1,keyasint"`
	DHRemote   []byte        `cbor:"2,keyasint,omitempty"`
	RootKey    []byte        `cbor:"3,keyasint"`
	SendCK     []byte        `cbor:"4,keyasint,omitempty"`
	RecvCK     []byte        `cbor:"5,keyasint,omitempty"`
	Ns         uint32        `cbor:"6,keyasint"`
	Nr         uint32        `cbor:"7,keyasint"`
	PN         uint32        `cbor:"8,keyasint"`
	Skipped    []skippedWire `cbor:"9,keyasint,omitempty"`
	SkippedSeq uint64        `cbor:"10,keyasint,omitempty"`
}

type skippedWire struct {
	RatchetKey []byte `cbor:"1,keyasint"`
	Counter    uint32 `cbor:"2,keyasint"`
	CipherKey  []byte `cbor:"3,keyasint"`
	MACKey     []byte `cbor:"4,keyasint"`
	IV         []byte `cbor:"5,keyasint"`
	Timestamp  int64  `cbor:"6,keyasint"`
	Seq        uint64 `cbor:"7,keyasint"`
}

// Marshal encodes the full session state, skipped-key table included. The
// output contains live key material and must only be handed to an encrypting
// store.
func (s *SessionState) Marshal() ([]byte, error) {
	priv := s.dhSelf.PrivateKeyBytes()
	defer memzero.Zero32(&priv)
	w := sessionWire{
		DHSelfPriv: priv[:],
		RootKey:    s.rootKey[:],
		Ns:         s.sendingCounter,
		Nr:         s.receivingCounter,
		PN:         s.previousCounter,
		SkippedSeq: s.skippedSeq,
	}
	if s.dhRemote != nil {
		w.DHRemote = s.dhRemote.Slice()
	}
	if s.sendingChainKey != nil {
		w.SendCK = s.sendingChainKey[:]
	}
	if s.receivingChainKey != nil {
		w.RecvCK = s.receivingChainKey[:]
	}
	for id, sk := range s.skipped {
		key := id.ratchetKey
		w.Skipped = append(w.Skipped, skippedWire{
			RatchetKey: key.Slice(),
			Counter:    id.counter,
			CipherKey:  sk.cipherKey[:],
			MACKey:     sk.macKey[:],
			IV:         sk.iv[:],
			Timestamp:  sk.timestamp,
			Seq:        sk.seq,
		})
	}
	return cbor.Marshal(w)
}

// UnmarshalSessionState decodes a session previously encoded by Marshal.
func UnmarshalSessionState(data []byte) (*SessionState, error) {
	var w sessionWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}

	var priv [crypto.KeySize]byte
	if err := copyKey(priv[:], w.DHSelfPriv); err != nil {
		return nil, err
	}
	dhSelf, err := crypto.DHKeyPairFromPrivate(priv)
	memzero.Zero32(&priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}

	s := &SessionState{
		dhSelf:           dhSelf,
		sendingCounter:   w.Ns,
		receivingCounter: w.Nr,
		previousCounter:  w.PN,
		skipped:          make(map[skippedKeyID]*skippedKey, len(w.Skipped)),
	}
	if err := copyKey(s.rootKey[:], w.RootKey); err != nil {
		return nil, err
	}
	if w.DHRemote != nil {
		remote, err := crypto.DHPublicKeyFromBytes(w.DHRemote)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
		}
		s.dhRemote = &remote
	}
	if w.SendCK != nil {
		var ck [crypto.KeySize]byte
		if err := copyKey(ck[:], w.SendCK); err != nil {
			return nil, err
		}
		s.sendingChainKey = &ck
	}
	if w.RecvCK != nil {
		var ck [crypto.KeySize]byte
		if err := copyKey(ck[:], w.RecvCK); err != nil {
			return nil, err
		}
		s.receivingChainKey = &ck
	}

	for _, sw := range w.Skipped {
		ratchetKey, err := crypto.DHPublicKeyFromBytes(sw.RatchetKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
		}
		sk := &skippedKey{timestamp: sw.Timestamp, seq: sw.Seq}
		if err := copyKey(sk.cipherKey[:], sw.CipherKey); err != nil {
			return nil, err
		}
		if err := copyKey(sk.macKey[:], sw.MACKey); err != nil {
			return nil, err
		}
		if err := copyKey(sk.iv[:], sw.IV); err != nil {
			return nil, err
		}
		s.skipped[skippedKeyID{ratchetKey: ratchetKey, counter: sw.Counter}] = sk
		if sk.seq >= s.skippedSeq {
			s.skippedSeq = sk.seq + 1
		}
	}
	s.skippedSeq = max(s.skippedSeq, w.SkippedSeq)
	return s, nil
}

func copyKey(dst, src []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: bad field length %d", ErrCorruptState, len(src))
	}
	copy(dst, src)
	return nil
}
