package doubleratchet

import (
	"encoding/binary"
	"fmt"

	"drchat/internal/model"
)

// BuildHeader returns the header for message n of the chain keyed by pub.
func BuildHeader(pub []byte, prev, n uint32) model.Header {
	return model.Header{
		Pub:    clone(pub),
		Prev:   prev,
		MsgNum: n,
	}
}

// MarshalHeader encodes h as uvarint(len(pub)) || pub || prev || n, with the
// counters big-endian.
func MarshalHeader(h model.Header) []byte {
	b := make([]byte, 0, binary.MaxVarintLen64+len(h.Pub)+8)
	b = binary.AppendUvarint(b, uint64(len(h.Pub)))
	b = append(b, h.Pub...)
	b = binary.BigEndian.AppendUint32(b, h.Prev)
	b = binary.BigEndian.AppendUint32(b, h.MsgNum)
	return b
}

// ParseHeader decodes the output of MarshalHeader. Trailing bytes are rejected.
func ParseHeader(b []byte) (model.Header, error) {
	var h model.Header
	l, n := binary.Uvarint(b)
	if n <= 0 {
		return h, fmt.Errorf("%w: bad key length prefix", ErrMalformedHeader)
	}
	b = b[n:]
	if l == 0 || l > uint64(len(b)) || uint64(len(b))-l != 8 {
		return h, fmt.Errorf("%w: want %d key bytes and 8 counter bytes, have %d", ErrMalformedHeader, l, len(b))
	}
	h.Pub = clone(b[:l])
	h.Prev = binary.BigEndian.Uint32(b[l:])
	h.MsgNum = binary.BigEndian.Uint32(b[l+4:])
	return h, nil
}

// EncodeAssociatedData binds the application associated data to the header.
// ad is length-prefixed so the pair cannot be split two ways.
func EncodeAssociatedData(ad []byte, h model.Header) []byte {
	hb := MarshalHeader(h)
	b := make([]byte, 0, binary.MaxVarintLen64+len(ad)+len(hb))
	b = binary.AppendUvarint(b, uint64(len(ad)))
	b = append(b, ad...)
	return append(b, hb...)
}
