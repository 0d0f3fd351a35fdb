package model

type (
	// SharedKey is the public bundle the relay hands out for a user.
	SharedKey struct {
		IKPub     []byte `json:"ik_pub"`
		SPKPub    []byte `json:"spk_pub"`
		SigPub    []byte `json:"sig_pub"`
		Signature []byte `json:"signature"`
	}
)
