package doubleratchet

import (
	"bytes"
	"fmt"
	"sort"

	"drchat/internal/cryptographic/kdf"
)

type (
	skippedID struct {
		pub string
		n   uint32
	}

	// SkippedKey is one stored message key, in the form used for persistence.
	SkippedKey struct {
		Pub        []byte `json:"pub"`
		N          uint32 `json:"n"`
		MessageKey []byte `json:"message_key"`
	}

	// SkippedKeys holds message keys for messages that have not arrived yet,
	// keyed by (ratchet public key, message number). It never grows past its
	// limit and each key can be taken once.
	SkippedKeys struct {
		limit int
		keys  map[skippedID][]byte
	}
)

func NewSkippedKeys(limit int) *SkippedKeys {
	return &SkippedKeys{
		limit: limit,
		keys:  make(map[skippedID][]byte),
	}
}

func (s *SkippedKeys) Len() int { return len(s.keys) }

// Free reports how many more keys fit.
func (s *SkippedKeys) Free() int { return s.limit - len(s.keys) }

// Record stores mk under (pub, n). Replacing an existing entry does not count
// against the limit.
func (s *SkippedKeys) Record(pub []byte, n uint32, mk []byte) error {
	id := skippedID{pub: string(pub), n: n}
	if old, ok := s.keys[id]; ok {
		kdf.Wipe(old)
		s.keys[id] = clone(mk)
		return nil
	}
	if len(s.keys) >= s.limit {
		return fmt.Errorf("%w: %d keys stored", ErrResourceExhausted, len(s.keys))
	}
	s.keys[id] = clone(mk)
	return nil
}

// Take removes and returns the key stored under (pub, n).
func (s *SkippedKeys) Take(pub []byte, n uint32) ([]byte, bool) {
	id := skippedID{pub: string(pub), n: n}
	mk, ok := s.keys[id]
	if !ok {
		return nil, false
	}
	delete(s.keys, id)
	return mk, true
}

func (s *SkippedKeys) Has(pub []byte, n uint32) bool {
	_, ok := s.keys[skippedID{pub: string(pub), n: n}]
	return ok
}

// recordAll inserts every entry or none of them.
func (s *SkippedKeys) recordAll(entries []SkippedKey) error {
	fresh := 0
	for _, e := range entries {
		if !s.Has(e.Pub, e.N) {
			fresh++
		}
	}
	if fresh > s.Free() {
		return fmt.Errorf("%w: need %d, %d free", ErrResourceExhausted, fresh, s.Free())
	}
	for _, e := range entries {
		if err := s.Record(e.Pub, e.N, e.MessageKey); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a copy of the store ordered by public key, then message number.
func (s *SkippedKeys) Entries() []SkippedKey {
	if len(s.keys) == 0 {
		return nil
	}
	out := make([]SkippedKey, 0, len(s.keys))
	for id, mk := range s.keys {
		out = append(out, SkippedKey{Pub: []byte(id.pub), N: id.n, MessageKey: clone(mk)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Pub, out[j].Pub); c != 0 {
			return c < 0
		}
		return out[i].N < out[j].N
	})
	return out
}

// Wipe zeroes and drops every stored key.
func (s *SkippedKeys) Wipe() {
	for id, mk := range s.keys {
		kdf.Wipe(mk)
		delete(s.keys, id)
	}
}
