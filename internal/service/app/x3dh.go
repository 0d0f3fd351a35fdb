package app

import (
	"fmt"

	"drchat/internal/cryptographic/dh"
	"drchat/internal/cryptographic/kdf"
	"drchat/internal/model"
	"drchat/internal/protocol/doubleratchet"
	"drchat/internal/protocol/x3dh"
)

// initiate runs the sender half of X3DH against the peer's bundle. The
// peer's signed prekey becomes the remote ratchet key.
func (c *Conversation) initiate() (*doubleratchet.Session, *model.X3DHHandshake, error) {
	ikPub, err := c.identityPub()
	if err != nil {
		return nil, nil, err
	}

	ekPriv, ekPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, nil, err
	}
	defer kdf.Wipe(ekPriv[:])

	send := &x3dh.X3DHSender{}
	sk, err := send.GenerateShareKey(&model.SenderKeyBundle{
		IKPrivA: c.user.IKPriv,
		EKPrivA: ekPriv[:],
		IKPubB:  c.peerKeys.IKPub,
		SPKPubB: c.peerKeys.SPKPub,
		OTKPubB: nil,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("x3dh: %w", err)
	}
	defer kdf.Wipe(sk)

	session, err := doubleratchet.InitializeAsInitiator(c.suite, c.cfg, sk, c.peerKeys.SPKPub)
	if err != nil {
		return nil, nil, err
	}
	return session, &model.X3DHHandshake{IKPub: ikPub, EKPub: ekPub[:]}, nil
}

// respond runs the receiver half of X3DH. Our signed prekey pair is the
// initial ratchet key pair.
func (c *Conversation) respond(hs *model.X3DHHandshake) (*doubleratchet.Session, error) {
	if hs.IKPub != nil && string(hs.IKPub) != string(c.peerKeys.IKPub) {
		return nil, fmt.Errorf("x3dh: handshake identity of %s does not match its bundle", c.peer)
	}

	recv := &x3dh.X3DHReceiver{}
	sk, err := recv.GenerateShareKey(&model.ReceiverKeyBundle{
		IKPubA:   c.peerKeys.IKPub,
		EKPubA:   hs.EKPub,
		IKPrivB:  c.user.IKPriv,
		SPKPrivB: c.user.SPKPriv,
		OTKPrivB: nil,
	})
	if err != nil {
		return nil, fmt.Errorf("x3dh: %w", err)
	}
	defer kdf.Wipe(sk)

	if len(c.user.SPKPriv) != dh.KeySize {
		return nil, dh.ErrInvalidKeyLength
	}
	spkPub := dh.PublicKey([32]byte(c.user.SPKPriv))
	kp := doubleratchet.KeyPair{
		Private: append([]byte(nil), c.user.SPKPriv...),
		Public:  spkPub[:],
	}
	return doubleratchet.InitializeAsResponder(c.suite, c.cfg, sk, kp)
}
