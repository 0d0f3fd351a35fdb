package doubleratchet

import "errors"

var (
	// ErrInvalidPublicKey is returned when a DH computation rejects a peer key.
	ErrInvalidPublicKey = errors.New("invalid ratchet public key")
	// ErrAuthenticationFailed is returned when AEAD decryption fails. The
	// session is left as it was before the call.
	ErrAuthenticationFailed = errors.New("message authentication failed")
	// ErrTooManySkipped is returned when a header asks for more skipped keys
	// than Config.MaxSkip allows in a single chain.
	ErrTooManySkipped = errors.New("too many skipped messages")
	// ErrResourceExhausted is returned when the skipped-key store is full.
	ErrResourceExhausted = errors.New("skipped message key store is full")

	ErrNoSendingChain      = errors.New("no sending chain yet: a message must be received first")
	ErrNoReceivingChain    = errors.New("no receiving chain for this ratchet key")
	ErrDuplicateMessage    = errors.New("message key already consumed")
	ErrChainExhausted      = errors.New("chain message counter exhausted")
	ErrMalformedHeader     = errors.New("malformed message header")
	ErrInvalidConfig       = errors.New("invalid ratchet config")
	ErrInvalidSharedSecret = errors.New("shared secret must be 32 bytes")
)
