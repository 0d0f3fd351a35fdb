package doubleratchet

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakePrimitives is a deterministic stand-in for the real suite. Public keys
// are hashes of private keys and DH hashes the sorted pair of public keys, so
// both parties agree on the output without any group arithmetic.
type fakePrimitives struct {
	mu      sync.Mutex
	seed    string
	counter uint64
	used    map[string]int // message keys handed to Encrypt
}

func newFake(seed string) *fakePrimitives {
	return &fakePrimitives{seed: seed, used: make(map[string]int)}
}

func sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(p)))
		h.Write(l[:])
		h.Write(p)
	}
	return h.Sum(nil)
}

func (f *fakePrimitives) GenerateKeyPair() (KeyPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	var c [8]byte
	binary.BigEndian.PutUint64(c[:], f.counter)
	priv := sum([]byte("priv"), []byte(f.seed), c[:])
	return KeyPair{Private: priv, Public: sum([]byte("pub"), priv)}, nil
}

func (f *fakePrimitives) DH(kp KeyPair, peer []byte) ([]byte, error) {
	if len(peer) != 32 || bytes.Equal(peer, make([]byte, 32)) {
		return nil, fmt.Errorf("%w: fake rejects %x", ErrInvalidPublicKey, peer)
	}
	a, b := kp.Public, peer
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	return sum([]byte("dh"), a, b), nil
}

func (f *fakePrimitives) KDFRootKey(rootKey, dhOut []byte) ([]byte, []byte, error) {
	return sum([]byte("rk"), rootKey, dhOut), sum([]byte("ck"), rootKey, dhOut), nil
}

func (f *fakePrimitives) KDFChainKey(chainKey []byte) ([]byte, []byte, error) {
	return sum([]byte("next"), chainKey), sum([]byte("mk"), chainKey), nil
}

func (f *fakePrimitives) Encrypt(mk, plaintext, ad []byte) ([]byte, error) {
	f.mu.Lock()
	f.used[string(mk)]++
	f.mu.Unlock()

	ct := make([]byte, len(plaintext))
	stream := sum([]byte("stream"), mk)
	for i := range plaintext {
		if i > 0 && i%len(stream) == 0 {
			stream = sum(stream)
		}
		ct[i] = plaintext[i] ^ stream[i%len(stream)]
	}
	return append(ct, fakeTag(mk, ct, ad)...), nil
}

func (f *fakePrimitives) Decrypt(mk, ciphertext, ad []byte) ([]byte, error) {
	if len(ciphertext) < sha256.Size {
		return nil, ErrAuthenticationFailed
	}
	body := ciphertext[:len(ciphertext)-sha256.Size]
	if !hmac.Equal(ciphertext[len(body):], fakeTag(mk, body, ad)) {
		return nil, ErrAuthenticationFailed
	}
	pt := make([]byte, len(body))
	stream := sum([]byte("stream"), mk)
	for i := range body {
		if i > 0 && i%len(stream) == 0 {
			stream = sum(stream)
		}
		pt[i] = body[i] ^ stream[i%len(stream)]
	}
	return pt, nil
}

func fakeTag(mk, ct, ad []byte) []byte {
	m := hmac.New(sha256.New, mk)
	m.Write(sum(ad, ct))
	return m.Sum(nil)
}

func (f *fakePrimitives) reusedKeys() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.used {
		if c > 1 {
			n++
		}
	}
	return n
}

var sharedSecret = bytes.Repeat([]byte{0x42}, 32)

type pair struct {
	alice, bob *Session
}

// newPair builds an initiator (alice) and a responder (bob) that share a
// secret, as a handshake would leave them.
func newPair(t *testing.T, pa, pb Primitives, cfg Config) pair {
	t.Helper()
	bobKP, err := pb.GenerateKeyPair()
	require.NoError(t, err)

	alice, err := InitializeAsInitiator(pa, cfg, sharedSecret, bobKP.Public)
	require.NoError(t, err)
	bob, err := InitializeAsResponder(pb, cfg, sharedSecret, bobKP)
	require.NoError(t, err)
	return pair{alice: alice, bob: bob}
}

func newFakePair(t *testing.T, cfg Config) pair {
	t.Helper()
	return newPair(t, newFake("alice"), newFake("bob"), cfg)
}

func newSuitePair(t *testing.T, cipher string, cfg Config) pair {
	t.Helper()
	sa, err := NewSuite(cipher)
	require.NoError(t, err)
	sb, err := NewSuite(cipher)
	require.NoError(t, err)
	return newPair(t, sa, sb, cfg)
}

type sealed struct {
	hdr  headerCopy
	ct   []byte
	text string
}

type headerCopy struct {
	pub       []byte
	prev, num uint32
}

func seal(t *testing.T, s *Session, text string, ad []byte) sealed {
	t.Helper()
	hdr, ct, err := s.Encrypt([]byte(text), ad)
	require.NoError(t, err)
	return sealed{hdr: headerCopy{pub: hdr.Pub, prev: hdr.Prev, num: hdr.MsgNum}, ct: ct, text: text}
}

func open(s *Session, m sealed, ad []byte) ([]byte, error) {
	return s.Decrypt(BuildHeader(m.hdr.pub, m.hdr.prev, m.hdr.num), m.ct, ad)
}

func mustOpen(t *testing.T, s *Session, m sealed, ad []byte) {
	t.Helper()
	pt, err := open(s, m, ad)
	require.NoError(t, err)
	require.Equal(t, m.text, string(pt))
}
