package doubleratchet

import (
	"fmt"

	"drchat/internal/cryptographic/kdf"
)

// State is the complete, serializable content of a Session. Restore(Snapshot())
// yields a session that behaves identically to the original.
type State struct {
	SendingKeyPair      KeyPair      `json:"sending_key_pair"`
	RemotePublicKey     []byte       `json:"remote_public_key,omitempty"`
	RootKey             []byte       `json:"root_key"`
	SendingChainKey     []byte       `json:"sending_chain_key,omitempty"`
	ReceivingChainKey   []byte       `json:"receiving_chain_key,omitempty"`
	SendCounter         uint32       `json:"send_counter"`
	ReceiveCounter      uint32       `json:"receive_counter"`
	PreviousChainLength uint32       `json:"previous_chain_length"`
	Skipped             []SkippedKey `json:"skipped,omitempty"`
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		SendingKeyPair:      s.sending.clone(),
		RemotePublicKey:     clone(s.remote),
		RootKey:             clone(s.rootKey),
		SendingChainKey:     clone(s.sendCK),
		ReceivingChainKey:   clone(s.recvCK),
		SendCounter:         s.ns,
		ReceiveCounter:      s.nr,
		PreviousChainLength: s.pn,
		Skipped:             s.skipped.Entries(),
	}
}

// Restore rebuilds a session from a Snapshot.
func Restore(p Primitives, cfg Config, st State) (*Session, error) {
	s, err := newSession(p, cfg)
	if err != nil {
		return nil, err
	}
	if len(st.RootKey) == 0 {
		return nil, fmt.Errorf("restore: missing root key")
	}
	if len(st.SendingKeyPair.Private) == 0 || len(st.SendingKeyPair.Public) == 0 {
		return nil, fmt.Errorf("restore: missing sending key pair")
	}
	if len(st.Skipped) > cfg.MaxStoredKeys {
		return nil, fmt.Errorf("restore: %w: %d skipped keys, limit %d", ErrResourceExhausted, len(st.Skipped), cfg.MaxStoredKeys)
	}
	for _, e := range st.Skipped {
		if err := s.skipped.Record(e.Pub, e.N, e.MessageKey); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}

	s.sending = st.SendingKeyPair.clone()
	s.remote = clone(st.RemotePublicKey)
	s.rootKey = clone(st.RootKey)
	s.sendCK = clone(st.SendingChainKey)
	s.recvCK = clone(st.ReceivingChainKey)
	s.ns = st.SendCounter
	s.nr = st.ReceiveCounter
	s.pn = st.PreviousChainLength
	return s, nil
}

// Wipe zeroes every secret held by the session. The session must not be used
// afterwards.
func (s *Session) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range [][]byte{s.sending.Private, s.rootKey, s.sendCK, s.recvCK} {
		kdf.Wipe(b)
	}
	s.skipped.Wipe()
	s.sendCK, s.recvCK = nil, nil
}
