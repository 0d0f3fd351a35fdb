package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	AESGCM           = "aes-gcm"
	ChaCha20Poly1305 = "chacha20-poly1305"
)

var (
	ErrOpen          = errors.New("aead open failed")
	ErrShortMessage  = errors.New("ciphertext too short")
	ErrUnknownCipher = errors.New("unknown cipher")
)

type (
	// Cipher seals and opens messages under single-use keys. Output is
	// nonce || ciphertext.
	Cipher interface {
		Name() string
		Seal(key, plaintext, aad []byte) ([]byte, error)
		Open(key, nonceAndCiphertext, aad []byte) ([]byte, error)
	}

	aeadCipher struct {
		name string
		new  func(key []byte) (cipher.AEAD, error)
	}
)

func New(name string) (Cipher, error) {
	switch name {
	case AESGCM, "":
		return &aeadCipher{name: AESGCM, new: newGCM}, nil
	case ChaCha20Poly1305:
		return &aeadCipher{name: ChaCha20Poly1305, new: chacha20poly1305.New}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, name)
}

func (c *aeadCipher) Name() string { return c.name }

func (c *aeadCipher) Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := c.new(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand.Read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (c *aeadCipher) Open(key, nonceAndCiphertext, aad []byte) ([]byte, error) {
	aead, err := c.new(key)
	if err != nil {
		return nil, err
	}
	ns := aead.NonceSize()
	if len(nonceAndCiphertext) < ns+aead.Overhead() {
		return nil, ErrShortMessage
	}
	nonce := nonceAndCiphertext[:ns]
	ct := nonceAndCiphertext[ns:]
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}
