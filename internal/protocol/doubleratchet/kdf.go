package doubleratchet

import (
	"errors"
	"fmt"

	"drchat/internal/cryptographic/dh"
	"drchat/internal/cryptographic/encryption"
	"drchat/internal/cryptographic/kdf"
)

var (
	rootInfo          = []byte("drchat/root")
	messageKeyInput   = []byte{0x01}
	nextChainKeyInput = []byte{0x02}
)

// KDFRootKey derives a new root key and chain key from the old root key and a
// DH output with HKDF-SHA256, the root key acting as salt.
func KDFRootKey(rootKey, dhOut []byte) (newRootKey, newChainKey []byte, err error) {
	buffer := make([]byte, 64)
	if _, err = kdf.HKDF(dhOut, rootKey, rootInfo, buffer); err != nil {
		return nil, nil, err
	}
	return buffer[:32], buffer[32:], nil
}

// KDFChainKey derives the next chain key and a message key with HMAC-SHA256
// keyed by the chain key.
func KDFChainKey(chainKey []byte) (nextChainKey, msgKey []byte, err error) {
	if len(chainKey) == 0 {
		return nil, nil, errors.New("empty chain key")
	}
	msgKey = kdf.HMAC(chainKey, messageKeyInput)
	nextChainKey = kdf.HMAC(chainKey, nextChainKeyInput)
	return nextChainKey, msgKey, nil
}

// Suite is the X25519 / HKDF / HMAC / AEAD implementation of Primitives.
type Suite struct {
	cipher encryption.Cipher
}

var _ Primitives = (*Suite)(nil)

// NewSuite returns a Suite sealing with the named cipher (see encryption.New).
func NewSuite(cipherName string) (*Suite, error) {
	c, err := encryption.New(cipherName)
	if err != nil {
		return nil, err
	}
	return &Suite{cipher: c}, nil
}

func (s *Suite) CipherName() string { return s.cipher.Name() }

func (s *Suite) GenerateKeyPair() (KeyPair, error) {
	priv, pub, err := dh.NewX25519KeyPair()
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: priv[:], Public: pub[:]}, nil
}

func (s *Suite) DH(kp KeyPair, peer []byte) ([]byte, error) {
	out, err := dh.X25519SharedSecret(kp.Private, peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return out, nil
}

func (s *Suite) KDFRootKey(rootKey, dhOut []byte) ([]byte, []byte, error) {
	return KDFRootKey(rootKey, dhOut)
}

func (s *Suite) KDFChainKey(chainKey []byte) ([]byte, []byte, error) {
	return KDFChainKey(chainKey)
}

func (s *Suite) Encrypt(messageKey, plaintext, associatedData []byte) ([]byte, error) {
	return s.cipher.Seal(messageKey, plaintext, associatedData)
}

func (s *Suite) Decrypt(messageKey, ciphertext, associatedData []byte) ([]byte, error) {
	plain, err := s.cipher.Open(messageKey, ciphertext, associatedData)
	if errors.Is(err, encryption.ErrOpen) || errors.Is(err, encryption.ErrShortMessage) {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plain, err
}
