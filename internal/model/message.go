package model

type (
	// Header is the message header carried along with each ciphertext.
	Header struct {
		Pub    []byte `json:"pub"`     // sender's current ratchet public key
		Prev   uint32 `json:"prev"`    // previous sending chain length (PN)
		MsgNum uint32 `json:"msg_num"` // message number in the sending chain
	}

	Message struct {
		From          string         `json:"from" validate:"required"`
		To            string         `json:"to" validate:"required"`
		Header        []byte         `json:"header" validate:"required"` // binary header, see doubleratchet.MarshalHeader
		Ciphertext    []byte         `json:"ciphertext" validate:"required"`
		X3DHHandShake *X3DHHandshake `json:"x3dh_handshake,omitempty"`
	}
)
