package doubleratchet

type (
	// KeyPair is a DH ratchet key pair in the encoding of the Primitives in use.
	KeyPair struct {
		Private []byte `json:"private"`
		Public  []byte `json:"public"`
	}

	// Primitives supplies the cryptography the ratchet is built on. The ratchet
	// never inspects key material beyond comparing public keys for equality.
	Primitives interface {
		GenerateKeyPair() (KeyPair, error)
		// DH fails with ErrInvalidPublicKey when peer is rejected.
		DH(kp KeyPair, peer []byte) ([]byte, error)
		KDFRootKey(rootKey, dhOut []byte) (newRootKey, chainKey []byte, err error)
		KDFChainKey(chainKey []byte) (nextChainKey, messageKey []byte, err error)
		Encrypt(messageKey, plaintext, associatedData []byte) ([]byte, error)
		// Decrypt fails with ErrAuthenticationFailed on tamper or key mismatch.
		Decrypt(messageKey, ciphertext, associatedData []byte) ([]byte, error)
	}
)

func (kp KeyPair) clone() KeyPair {
	return KeyPair{Private: clone(kp.Private), Public: clone(kp.Public)}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
