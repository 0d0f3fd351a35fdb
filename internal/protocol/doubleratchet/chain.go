package doubleratchet

import (
	"fmt"

	"drchat/internal/cryptographic/kdf"
)

// advanceChain is the symmetric-key ratchet step. It is used the same way for
// the sending and the receiving chain.
func advanceChain(p Primitives, chainKey []byte) (next, mk []byte, err error) {
	next, mk, err = p.KDFChainKey(chainKey)
	if err != nil {
		return nil, nil, fmt.Errorf("chain kdf: %w", err)
	}
	return next, mk, nil
}

// receiveTxn is a working copy of the session state used by Decrypt. Nothing
// in it is visible to the session until commit.
type receiveTxn struct {
	p     Primitives
	cfg   Config
	store *SkippedKeys

	sending KeyPair
	remote  []byte
	rootKey []byte
	sendCK  []byte
	recvCK  []byte
	ns      uint32
	nr      uint32
	pn      uint32

	// message keys skipped during this call, inserted into store on commit
	pending   []SkippedKey
	ratcheted bool
}

// fillUpTo derives and sets aside the message keys [nr, until) of the current
// receiving chain. Bounds are checked before the chain is touched.
func (t *receiveTxn) fillUpTo(until uint32) error {
	if until <= t.nr {
		return nil
	}
	need := until - t.nr
	if need > t.cfg.MaxSkip {
		return fmt.Errorf("%w: %d keys requested, max %d", ErrTooManySkipped, need, t.cfg.MaxSkip)
	}
	if t.recvCK == nil {
		return nil
	}
	if free := t.store.Free() - len(t.pending); int(need) > free {
		return fmt.Errorf("%w: %d keys requested, %d free", ErrResourceExhausted, need, free)
	}

	ck := t.recvCK
	for n := t.nr; n < until; n++ {
		next, mk, err := advanceChain(t.p, ck)
		if err != nil {
			return err
		}
		t.pending = append(t.pending, SkippedKey{Pub: t.remote, N: n, MessageKey: mk})
		ck = next
	}
	t.recvCK = ck
	t.nr = until
	return nil
}

// dhRatchet replaces both chains after a new remote ratchet key is seen.
func (t *receiveTxn) dhRatchet(remote []byte) error {
	t.pn = t.ns
	t.ns, t.nr = 0, 0
	t.remote = clone(remote)

	dhOut, err := t.p.DH(t.sending, t.remote)
	if err != nil {
		return fmt.Errorf("dh ratchet: %w", err)
	}
	t.rootKey, t.recvCK, err = t.p.KDFRootKey(t.rootKey, dhOut)
	kdf.Wipe(dhOut)
	if err != nil {
		return fmt.Errorf("root kdf: %w", err)
	}

	kp, err := t.p.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate ratchet key: %w", err)
	}
	t.sending = kp
	t.ratcheted = true

	dhOut, err = t.p.DH(kp, t.remote)
	if err != nil {
		return fmt.Errorf("dh ratchet: %w", err)
	}
	t.rootKey, t.sendCK, err = t.p.KDFRootKey(t.rootKey, dhOut)
	kdf.Wipe(dhOut)
	if err != nil {
		return fmt.Errorf("root kdf: %w", err)
	}
	return nil
}

// discard wipes the secrets created by the transaction.
func (t *receiveTxn) discard() {
	for _, e := range t.pending {
		kdf.Wipe(e.MessageKey)
	}
	t.pending = nil
	if t.ratcheted {
		kdf.Wipe(t.sending.Private)
	}
}
