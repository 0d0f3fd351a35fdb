package app

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"drchat/internal/cryptographic/dh"
	"drchat/internal/cryptographic/kdf"
	"drchat/internal/cryptographic/signature"
	"drchat/internal/model"
)

// UserStore is the user repository as seen by the client.
type UserStore interface {
	GetByName(ctx context.Context, name string) (*model.User, error)
	Create(ctx context.Context, user *model.User) (primitive.ObjectID, error)
}

// NewUserKeys generates the identity key and signed prekey of a new user and
// signs the prekey locally. Only the signature and the public signing key are
// kept, so whoever stores the user cannot sign a substitute prekey.
func NewUserKeys(name string) (*model.User, error) {
	ikPriv, _, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, err
	}

	spkPriv, spkPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, err
	}

	sigPub, sigPriv, err := signature.NewEd25519Keypair()
	if err != nil {
		return nil, err
	}
	defer kdf.Wipe(sigPriv)

	return &model.User{
		Name:    name,
		IKPriv:  ikPriv[:],
		SPKPriv: spkPriv[:],
		SigPub:  sigPub,
		SPKSig:  signature.ED25519Sign(sigPriv, spkPub[:]),
	}, nil
}

func (c *App) getUserAndCreateIfNotExist(ctx context.Context, username string) (*model.User, error) {
	user, err := c.userRepo.GetByName(ctx, username)
	if err != nil {
		return nil, err
	}

	if user != nil {
		return user, nil
	}

	user, err = NewUserKeys(username)
	if err != nil {
		return nil, err
	}

	_, err = c.userRepo.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	return user, nil
}
