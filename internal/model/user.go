package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type (
	User struct {
		ID      primitive.ObjectID `bson:"_id,omitempty"`
		Name    string             `bson:"name"`
		IKPriv  []byte             `bson:"ik_priv"`
		SPKPriv []byte             `bson:"spk_priv"`

		// Ed25519 public key and its signature over the signed prekey. The
		// signing key never leaves the client that created the user.
		SigPub []byte `bson:"sig_pub"`
		SPKSig []byte `bson:"spk_sig"`
	}
)
