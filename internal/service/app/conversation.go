package app

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"drchat/internal/cryptographic/dh"
	"drchat/internal/model"
	"drchat/internal/protocol/doubleratchet"
	"drchat/internal/protocol/x3dh"
	"drchat/internal/utils/log"
)

var (
	ErrNoSession     = errors.New("no session with peer and message carries no handshake")
	ErrWrongEndpoint = errors.New("message is not addressed to this conversation")
)

type (
	// SessionStore persists ratchet state between runs.
	SessionStore interface {
		Save(ctx context.Context, owner, peer string, st doubleratchet.State) error
		Load(ctx context.Context, owner, peer string) (*doubleratchet.State, error)
		Delete(ctx context.Context, owner, peer string) error
	}

	// Conversation is the encrypted channel between the local user and one
	// peer. It is safe for concurrent use.
	Conversation struct {
		mu sync.Mutex

		suite doubleratchet.Primitives
		cfg   doubleratchet.Config
		store SessionStore

		user     *model.User
		peer     string
		peerKeys *model.SharedKey

		session *doubleratchet.Session
		loaded  bool

		// Sent with every frame until the peer has answered, so the peer can
		// bootstrap from whichever frame arrives first.
		handshake *model.X3DHHandshake
	}
)

func NewConversation(suite doubleratchet.Primitives, cfg doubleratchet.Config, store SessionStore,
	user *model.User, peer string, peerKeys *model.SharedKey) (*Conversation, error) {
	if err := x3dh.VerifyBundle(peerKeys); err != nil {
		return nil, fmt.Errorf("bundle of %s: %w", peer, err)
	}
	return &Conversation{
		suite:    suite,
		cfg:      cfg,
		store:    store,
		user:     user,
		peer:     peer,
		peerKeys: peerKeys,
	}, nil
}

// associatedData binds a frame to its sender and recipient.
func associatedData(from, to string) []byte {
	ad := make([]byte, 0, 2*binary.MaxVarintLen64+len(from)+len(to))
	ad = binary.AppendUvarint(ad, uint64(len(from)))
	ad = append(ad, from...)
	ad = binary.AppendUvarint(ad, uint64(len(to)))
	ad = append(ad, to...)
	return ad
}

func (c *Conversation) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	st, err := c.store.Load(ctx, c.user.Name, c.peer)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if st != nil {
		c.session, err = doubleratchet.Restore(c.suite, c.cfg, *st)
		if err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
		log.Debug("session restored", zap.String("peer", c.peer))
	}
	c.loaded = true
	return nil
}

func (c *Conversation) save(ctx context.Context) error {
	return c.store.Save(ctx, c.user.Name, c.peer, c.session.Snapshot())
}

// Seal encrypts text for the peer, starting a session if there is none.
func (c *Conversation) Seal(ctx context.Context, text string) (*model.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(ctx); err != nil {
		return nil, err
	}
	if c.session == nil {
		session, hs, err := c.initiate()
		if err != nil {
			return nil, err
		}
		c.session, c.handshake = session, hs
		log.Info("session initiated", zap.String("peer", c.peer))
	}

	hdr, ct, err := c.session.Encrypt([]byte(text), associatedData(c.user.Name, c.peer))
	if err != nil {
		return nil, err
	}
	if err := c.save(ctx); err != nil {
		return nil, err
	}

	return &model.Message{
		From:          c.user.Name,
		To:            c.peer,
		Header:        doubleratchet.MarshalHeader(hdr),
		Ciphertext:    ct,
		X3DHHandShake: c.handshake,
	}, nil
}

// Open decrypts a frame from the peer. A frame carrying a handshake starts
// the session when none exists yet.
func (c *Conversation) Open(ctx context.Context, m *model.Message) ([]byte, error) {
	if m.From != c.peer || m.To != c.user.Name {
		return nil, fmt.Errorf("%w: %s -> %s", ErrWrongEndpoint, m.From, m.To)
	}
	hdr, err := doubleratchet.ParseHeader(m.Header)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(ctx); err != nil {
		return nil, err
	}

	session := c.session
	if session == nil {
		if m.X3DHHandShake == nil {
			return nil, ErrNoSession
		}
		session, err = c.respond(m.X3DHHandShake)
		if err != nil {
			return nil, err
		}
	}

	pt, err := session.Decrypt(hdr, m.Ciphertext, associatedData(m.From, m.To))
	if err != nil {
		// A failed attempt still consumes a matching skipped key.
		if c.session != nil {
			if serr := c.save(ctx); serr != nil {
				return nil, errors.Join(err, serr)
			}
		}
		return nil, err
	}
	if c.session == nil {
		log.Info("session accepted", zap.String("peer", c.peer))
	}
	c.session = session
	c.handshake = nil
	if err := c.save(ctx); err != nil {
		return nil, err
	}
	return pt, nil
}

// Reset forgets the session with the peer, here and in the store. The next
// handshake frame from the peer starts a new one. An existing session is
// never replaced implicitly, so both sides reset after one of them lost its
// state.
func (c *Conversation) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx, c.user.Name, c.peer); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if c.session != nil {
		c.session.Wipe()
	}
	c.session, c.handshake = nil, nil
	c.loaded = true
	log.Info("session reset", zap.String("peer", c.peer))
	return nil
}

func (c *Conversation) identityPub() ([]byte, error) {
	if len(c.user.IKPriv) != dh.KeySize {
		return nil, dh.ErrInvalidKeyLength
	}
	pub := dh.PublicKey([32]byte(c.user.IKPriv))
	return pub[:], nil
}
