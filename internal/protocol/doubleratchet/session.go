// Package doubleratchet implements the Double Ratchet: a per-conversation
// state machine deriving a fresh key for every message from a DH ratchet
// interleaved with a symmetric-key ratchet.
//
// A Session is safe for concurrent use; calls are serialized internally.
package doubleratchet

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"drchat/internal/cryptographic/kdf"
	"drchat/internal/model"
	"drchat/internal/utils/log"
)

const SharedSecretSize = 32

type Session struct {
	mu  sync.Mutex
	p   Primitives
	cfg Config

	// Our current DH ratchet key pair
	sending KeyPair
	// Remote party's current ratchet public key, nil until known
	remote []byte

	rootKey []byte
	sendCK  []byte // nil until a sending chain exists
	recvCK  []byte // nil until a receiving chain exists
	ns      uint32 // messages sent in current sending chain
	nr      uint32 // messages received in current receiving chain
	pn      uint32 // previous sending chain length

	skipped *SkippedKeys
}

func newSession(p Primitives, cfg Config) (*Session, error) {
	if p == nil {
		return nil, errors.New("nil primitives")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		p:       p,
		cfg:     cfg,
		skipped: NewSkippedKeys(cfg.MaxStoredKeys),
	}, nil
}

// InitializeAsInitiator starts the session of the party sending first. It can
// encrypt immediately and receives once the responder's first ratchet key
// arrives.
func InitializeAsInitiator(p Primitives, cfg Config, sharedSecret, responderPub []byte) (*Session, error) {
	if len(sharedSecret) != SharedSecretSize {
		return nil, ErrInvalidSharedSecret
	}
	if len(responderPub) == 0 {
		return nil, fmt.Errorf("%w: empty responder key", ErrInvalidPublicKey)
	}
	s, err := newSession(p, cfg)
	if err != nil {
		return nil, err
	}

	kp, err := p.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate ratchet key: %w", err)
	}
	dhOut, err := p.DH(kp, responderPub)
	if err != nil {
		return nil, fmt.Errorf("initial dh: %w", err)
	}
	defer kdf.Wipe(dhOut)

	s.rootKey, s.sendCK, err = p.KDFRootKey(sharedSecret, dhOut)
	if err != nil {
		return nil, fmt.Errorf("root kdf: %w", err)
	}
	s.sending = kp
	s.remote = clone(responderPub)
	return s, nil
}

// InitializeAsResponder starts the session of the party that waits for the
// first message. Until that message arrives the session can neither encrypt
// nor decrypt anything but it.
func InitializeAsResponder(p Primitives, cfg Config, sharedSecret []byte, kp KeyPair) (*Session, error) {
	if len(sharedSecret) != SharedSecretSize {
		return nil, ErrInvalidSharedSecret
	}
	if len(kp.Private) == 0 || len(kp.Public) == 0 {
		return nil, fmt.Errorf("%w: incomplete responder key pair", ErrInvalidPublicKey)
	}
	s, err := newSession(p, cfg)
	if err != nil {
		return nil, err
	}
	s.sending = kp.clone()
	s.rootKey = clone(sharedSecret)
	return s, nil
}

// PublicKey returns our current ratchet public key.
func (s *Session) PublicKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.sending.Public)
}

// CanSend reports whether a sending chain exists.
func (s *Session) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCK != nil
}

// Encrypt seals plaintext under the next sending message key. ad is
// authenticated together with the returned header.
func (s *Session) Encrypt(plaintext, ad []byte) (model.Header, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendCK == nil {
		return model.Header{}, nil, ErrNoSendingChain
	}
	if s.ns == math.MaxUint32 {
		return model.Header{}, nil, ErrChainExhausted
	}

	next, mk, err := advanceChain(s.p, s.sendCK)
	if err != nil {
		return model.Header{}, nil, err
	}
	defer kdf.Wipe(mk)

	hdr := BuildHeader(s.sending.Public, s.pn, s.ns)
	ct, err := s.p.Encrypt(mk, plaintext, EncodeAssociatedData(ad, hdr))
	if err != nil {
		return model.Header{}, nil, fmt.Errorf("encrypt: %w", err)
	}

	s.sendCK = next
	s.ns++
	return hdr, ct, nil
}

// Decrypt opens a message produced by the peer's Encrypt. On any error the
// session is unchanged, except that a stored skipped key matching the header
// is consumed by the attempt.
func (s *Session) Decrypt(hdr model.Header, ciphertext, ad []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(hdr.Pub) == 0 {
		return nil, fmt.Errorf("%w: missing ratchet key", ErrMalformedHeader)
	}
	aad := EncodeAssociatedData(ad, hdr)

	if mk, ok := s.skipped.Take(hdr.Pub, hdr.MsgNum); ok {
		defer kdf.Wipe(mk)
		plain, err := s.p.Decrypt(mk, ciphertext, aad)
		if err != nil {
			s.reject(hdr, err)
			return nil, err
		}
		return plain, nil
	}

	t := s.begin()
	plain, err := s.decrypt(t, hdr, ciphertext, aad)
	if err != nil {
		t.discard()
		s.reject(hdr, err)
		return nil, err
	}
	if err := s.commit(t); err != nil {
		t.discard()
		return nil, err
	}
	return plain, nil
}

func (s *Session) decrypt(t *receiveTxn, hdr model.Header, ciphertext, aad []byte) ([]byte, error) {
	if !bytes.Equal(hdr.Pub, t.remote) {
		if err := t.fillUpTo(hdr.Prev); err != nil {
			return nil, err
		}
		if err := t.dhRatchet(hdr.Pub); err != nil {
			return nil, err
		}
	}

	if hdr.MsgNum < t.nr {
		return nil, fmt.Errorf("%w: message %d, next expected %d", ErrDuplicateMessage, hdr.MsgNum, t.nr)
	}
	if t.recvCK == nil {
		return nil, ErrNoReceivingChain
	}
	if err := t.fillUpTo(hdr.MsgNum); err != nil {
		return nil, err
	}

	next, mk, err := advanceChain(t.p, t.recvCK)
	if err != nil {
		return nil, err
	}
	defer kdf.Wipe(mk)

	plain, err := t.p.Decrypt(mk, ciphertext, aad)
	if err != nil {
		return nil, err
	}
	t.recvCK = next
	t.nr = hdr.MsgNum + 1
	return plain, nil
}

func (s *Session) begin() *receiveTxn {
	return &receiveTxn{
		p:       s.p,
		cfg:     s.cfg,
		store:   s.skipped,
		sending: s.sending,
		remote:  s.remote,
		rootKey: s.rootKey,
		sendCK:  s.sendCK,
		recvCK:  s.recvCK,
		ns:      s.ns,
		nr:      s.nr,
		pn:      s.pn,
	}
}

func (s *Session) commit(t *receiveTxn) error {
	if err := s.skipped.recordAll(t.pending); err != nil {
		return err
	}
	for _, e := range t.pending {
		kdf.Wipe(e.MessageKey)
	}
	t.pending = nil

	if t.ratcheted {
		kdf.Wipe(s.sending.Private)
		log.Debug("dh ratchet step",
			zap.Uint32("previous_chain_length", t.pn),
			zap.Int("skipped_stored", s.skipped.Len()))
	}
	s.sending = t.sending
	s.remote = t.remote
	s.rootKey = t.rootKey
	s.sendCK = t.sendCK
	s.recvCK = t.recvCK
	s.ns = t.ns
	s.nr = t.nr
	s.pn = t.pn
	return nil
}

func (s *Session) reject(hdr model.Header, err error) {
	log.Debug("message rejected",
		zap.Uint32("msg_num", hdr.MsgNum),
		zap.Uint32("prev", hdr.Prev),
		zap.Uint32("receive_counter", s.nr),
		zap.Error(err))
}
