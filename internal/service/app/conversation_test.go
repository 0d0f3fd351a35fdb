package app

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drchat/internal/cryptographic/dh"
	"drchat/internal/cryptographic/signature"
	"drchat/internal/model"
	"drchat/internal/protocol/doubleratchet"
	"drchat/internal/protocol/x3dh"
)

type memSessions struct {
	mu sync.Mutex
	m  map[string]doubleratchet.State
}

func newMemSessions() *memSessions {
	return &memSessions{m: make(map[string]doubleratchet.State)}
}

func (s *memSessions) Save(_ context.Context, owner, peer string, st doubleratchet.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[owner+"/"+peer] = st
	return nil
}

func (s *memSessions) Load(_ context.Context, owner, peer string) (*doubleratchet.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[owner+"/"+peer]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *memSessions) Delete(_ context.Context, owner, peer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, owner+"/"+peer)
	return nil
}

func (s *memSessions) has(owner, peer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[owner+"/"+peer]
	return ok
}

func bundle(t *testing.T, u *model.User) *model.SharedKey {
	t.Helper()
	ik := dh.PublicKey([32]byte(u.IKPriv))
	spk := dh.PublicKey([32]byte(u.SPKPriv))
	return &model.SharedKey{
		IKPub:     ik[:],
		SPKPub:    spk[:],
		SigPub:    u.SigPub,
		Signature: u.SPKSig,
	}
}

type chat struct {
	aliceUser, bobUser *model.User
	store              *memSessions
	alice, bob         *Conversation
}

func newChat(t *testing.T) *chat {
	t.Helper()
	aliceUser, err := NewUserKeys("alice")
	require.NoError(t, err)
	bobUser, err := NewUserKeys("bob")
	require.NoError(t, err)

	c := &chat{aliceUser: aliceUser, bobUser: bobUser, store: newMemSessions()}
	c.alice = c.conversation(t, aliceUser, bobUser)
	c.bob = c.conversation(t, bobUser, aliceUser)
	return c
}

func (c *chat) conversation(t *testing.T, me, peer *model.User) *Conversation {
	t.Helper()
	suite, err := doubleratchet.NewSuite("")
	require.NoError(t, err)
	conv, err := NewConversation(suite, doubleratchet.DefaultConfig(), c.store, me, peer.Name, bundle(t, peer))
	require.NoError(t, err)
	return conv
}

func TestConversationBootstrapAndReply(t *testing.T) {
	ctx := context.Background()
	c := newChat(t)

	m, err := c.alice.Seal(ctx, "hi bob")
	require.NoError(t, err)
	require.NotNil(t, m.X3DHHandShake)
	assert.Equal(t, "alice", m.From)
	assert.Equal(t, "bob", m.To)

	pt, err := c.bob.Open(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", string(pt))

	reply, err := c.bob.Seal(ctx, "hi alice")
	require.NoError(t, err)
	assert.Nil(t, reply.X3DHHandShake)

	pt, err = c.alice.Open(ctx, reply)
	require.NoError(t, err)
	assert.Equal(t, "hi alice", string(pt))

	m, err = c.alice.Seal(ctx, "again")
	require.NoError(t, err)
	assert.Nil(t, m.X3DHHandShake, "handshake stops once the peer answered")
	pt, err = c.bob.Open(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "again", string(pt))
}

func TestConversationBootstrapFromLaterFrame(t *testing.T) {
	ctx := context.Background()
	c := newChat(t)

	first, err := c.alice.Seal(ctx, "lost")
	require.NoError(t, err)
	second, err := c.alice.Seal(ctx, "arrives")
	require.NoError(t, err)
	require.NotNil(t, second.X3DHHandShake)

	pt, err := c.bob.Open(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "arrives", string(pt))

	pt, err = c.bob.Open(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "lost", string(pt))
}

func TestConversationSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	c := newChat(t)

	m, err := c.alice.Seal(ctx, "one")
	require.NoError(t, err)
	_, err = c.bob.Open(ctx, m)
	require.NoError(t, err)

	// Fresh conversations load the persisted ratchet state.
	alice := c.conversation(t, c.aliceUser, c.bobUser)
	bob := c.conversation(t, c.bobUser, c.aliceUser)

	m, err = bob.Seal(ctx, "two")
	require.NoError(t, err)
	pt, err := alice.Open(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "two", string(pt))
}

func TestConversationRejects(t *testing.T) {
	ctx := context.Background()
	c := newChat(t)

	m, err := c.alice.Seal(ctx, "hello")
	require.NoError(t, err)

	noHandshake := *m
	noHandshake.X3DHHandShake = nil
	_, err = c.bob.Open(ctx, &noHandshake)
	assert.ErrorIs(t, err, ErrNoSession)

	redirected := *m
	redirected.To = "carol"
	_, err = c.bob.Open(ctx, &redirected)
	assert.ErrorIs(t, err, ErrWrongEndpoint)

	// The recipient name is bound into the associated data.
	c.bob.user = &model.User{Name: "carol", IKPriv: c.bobUser.IKPriv, SPKPriv: c.bobUser.SPKPriv}
	_, err = c.bob.Open(ctx, &redirected)
	assert.ErrorIs(t, err, doubleratchet.ErrAuthenticationFailed)
	c.bob.user = c.bobUser

	pt, err := c.bob.Open(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))

	_, err = c.bob.Open(ctx, m)
	assert.ErrorIs(t, err, doubleratchet.ErrDuplicateMessage)
}

func TestNewConversationVerifiesBundle(t *testing.T) {
	aliceUser, err := NewUserKeys("alice")
	require.NoError(t, err)
	bobUser, err := NewUserKeys("bob")
	require.NoError(t, err)

	b := bundle(t, bobUser)
	b.Signature[0] ^= 1

	suite, err := doubleratchet.NewSuite("")
	require.NoError(t, err)
	_, err = NewConversation(suite, doubleratchet.DefaultConfig(), newMemSessions(), aliceUser, "bob", b)
	assert.ErrorIs(t, err, x3dh.ErrBadSignature)
}

func TestAssociatedDataIsInjective(t *testing.T) {
	assert.NotEqual(t, associatedData("ab", "c"), associatedData("a", "bc"))
	assert.NotEqual(t, associatedData("alice", "bob"), associatedData("bob", "alice"))
	assert.Equal(t, associatedData("alice", "bob"), associatedData("alice", "bob"))
}

func TestNewUserKeysSignsPrekey(t *testing.T) {
	u, err := NewUserKeys("bob")
	require.NoError(t, err)
	spk := dh.PublicKey([32]byte(u.SPKPriv))
	assert.True(t, signature.ED25519Verify(u.SigPub, spk[:], u.SPKSig))

	// The signature is bound to this prekey only.
	ik := dh.PublicKey([32]byte(u.IKPriv))
	assert.False(t, signature.ED25519Verify(u.SigPub, ik[:], u.SPKSig))
}

func TestConversationLostStateNeedsExplicitReset(t *testing.T) {
	ctx := context.Background()
	c := newChat(t)

	m, err := c.alice.Seal(ctx, "one")
	require.NoError(t, err)
	_, err = c.bob.Open(ctx, m)
	require.NoError(t, err)
	m, err = c.bob.Seal(ctx, "two")
	require.NoError(t, err)
	_, err = c.alice.Open(ctx, m)
	require.NoError(t, err)

	// Alice loses her state and starts over with a new handshake.
	require.NoError(t, c.store.Delete(ctx, "alice", "bob"))
	alice := c.conversation(t, c.aliceUser, c.bobUser)
	bobBefore := c.store.m["bob/alice"]

	fresh, err := alice.Seal(ctx, "three")
	require.NoError(t, err)
	require.NotNil(t, fresh.X3DHHandShake)

	_, err = c.bob.Open(ctx, fresh)
	assert.ErrorIs(t, err, doubleratchet.ErrAuthenticationFailed)
	assert.Equal(t, bobBefore, c.store.m["bob/alice"], "a handshake never replaces an existing session")

	require.NoError(t, c.bob.Reset(ctx))
	assert.False(t, c.store.has("bob", "alice"))

	pt, err := c.bob.Open(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "three", string(pt))

	reply, err := c.bob.Seal(ctx, "four")
	require.NoError(t, err)
	pt, err = alice.Open(ctx, reply)
	require.NoError(t, err)
	assert.Equal(t, "four", string(pt))
}

func TestConversationFailedSkippedAttemptSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	c := newChat(t)

	first, err := c.alice.Seal(ctx, "first")
	require.NoError(t, err)
	second, err := c.alice.Seal(ctx, "second")
	require.NoError(t, err)

	_, err = c.bob.Open(ctx, second)
	require.NoError(t, err)

	forged := *first
	forged.Ciphertext = append([]byte(nil), first.Ciphertext...)
	forged.Ciphertext[len(forged.Ciphertext)-1] ^= 1
	_, err = c.bob.Open(ctx, &forged)
	assert.ErrorIs(t, err, doubleratchet.ErrAuthenticationFailed)

	st, err := c.store.Load(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, st.Skipped)

	bob := c.conversation(t, c.bobUser, c.aliceUser)
	_, err = bob.Open(ctx, first)
	assert.ErrorIs(t, err, doubleratchet.ErrDuplicateMessage)
}
