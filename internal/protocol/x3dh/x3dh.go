package x3dh

import (
	"bytes"
	"errors"
	"fmt"

	"drchat/internal/cryptographic/dh"
	"drchat/internal/cryptographic/kdf"
	"drchat/internal/cryptographic/signature"
	"drchat/internal/model"
)

var (
	ErrBadSignature = errors.New("signed prekey signature does not verify")

	info = []byte("drchat/x3dh")
)

type (
	X3DHBase struct {
	}

	X3DHSender struct {
		*X3DHBase
	}

	X3DHReceiver struct {
		*X3DHBase
	}
)

// VerifyBundle checks the Ed25519 signature over the signed prekey.
func VerifyBundle(sk *model.SharedKey) error {
	if !signature.ED25519Verify(sk.SigPub, sk.SPKPub, sk.Signature) {
		return ErrBadSignature
	}
	return nil
}

// GenerateShareKey derives the 32-byte shared secret from the DH outputs.
// The input key material is prefixed with 32 0xFF bytes as in the X3DH paper.
func (s *X3DHBase) GenerateShareKey(dh1, dh2, dh3, dh4 []byte) ([]byte, error) {
	ikm := make([]byte, 0, 32*5)
	ikm = append(ikm, bytes.Repeat([]byte{0xff}, 32)...)
	ikm = append(ikm, dh1...)
	ikm = append(ikm, dh2...)
	ikm = append(ikm, dh3...)
	if dh4 != nil {
		ikm = append(ikm, dh4...)
	}
	defer kdf.Wipe(ikm)

	sk := make([]byte, 32)
	salt := make([]byte, 32)
	if _, err := kdf.HKDF(ikm, salt, info, sk); err != nil {
		return nil, err
	}
	return sk, nil
}

func (s *X3DHSender) GenerateShareKey(skb *model.SenderKeyBundle) ([]byte, error) {
	dh1, err := dh.X25519SharedSecret(skb.IKPrivA, skb.SPKPubB)
	if err != nil {
		return nil, fmt.Errorf("dh(IKa, SPKb): %w", err)
	}

	dh2, err := dh.X25519SharedSecret(skb.EKPrivA, skb.IKPubB)
	if err != nil {
		return nil, fmt.Errorf("dh(EKa, IKb): %w", err)
	}

	dh3, err := dh.X25519SharedSecret(skb.EKPrivA, skb.SPKPubB)
	if err != nil {
		return nil, fmt.Errorf("dh(EKa, SPKb): %w", err)
	}

	var dh4 []byte = nil
	if skb.OTKPubB != nil {
		dh4, err = dh.X25519SharedSecret(skb.EKPrivA, skb.OTKPubB)
		if err != nil {
			return nil, fmt.Errorf("dh(EKa, OPKb): %w", err)
		}
	}

	return s.X3DHBase.GenerateShareKey(dh1, dh2, dh3, dh4)
}

func (s *X3DHReceiver) GenerateShareKey(rkb *model.ReceiverKeyBundle) ([]byte, error) {
	dh1, err := dh.X25519SharedSecret(rkb.SPKPrivB, rkb.IKPubA)
	if err != nil {
		return nil, fmt.Errorf("dh(SPKb, IKa): %w", err)
	}

	dh2, err := dh.X25519SharedSecret(rkb.IKPrivB, rkb.EKPubA)
	if err != nil {
		return nil, fmt.Errorf("dh(IKb, EKa): %w", err)
	}

	dh3, err := dh.X25519SharedSecret(rkb.SPKPrivB, rkb.EKPubA)
	if err != nil {
		return nil, fmt.Errorf("dh(SPKb, EKa): %w", err)
	}

	var dh4 []byte = nil
	if rkb.OTKPrivB != nil {
		dh4, err = dh.X25519SharedSecret(rkb.OTKPrivB, rkb.EKPubA)
		if err != nil {
			return nil, fmt.Errorf("dh(OPKb, EKa): %w", err)
		}
	}

	return s.X3DHBase.GenerateShareKey(dh1, dh2, dh3, dh4)
}
