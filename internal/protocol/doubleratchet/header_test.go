package doubleratchet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalParseHeader(t *testing.T) {
	pub := bytes.Repeat([]byte{0xab}, 32)
	h := BuildHeader(pub, 7, 1<<20)

	got, err := ParseHeader(MarshalHeader(h))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	pub[0] = 0
	assert.Equal(t, byte(0xab), h.Pub[0], "BuildHeader must copy the key")
}

func TestParseHeaderRejectsMalformed(t *testing.T) {
	good := MarshalHeader(BuildHeader([]byte{1, 2, 3}, 1, 2))

	cases := map[string][]byte{
		"empty":     nil,
		"truncated": good[:len(good)-1],
		"trailing":  append(bytes.Clone(good), 0),
		"zero key":  MarshalHeader(BuildHeader(nil, 1, 2)),
		"huge len":  {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHeader(b)
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestEncodeAssociatedDataIsInjective(t *testing.T) {
	h1 := BuildHeader([]byte{0x02, 0x03}, 0, 0)
	h2 := BuildHeader([]byte{0x03}, 0, 0)

	// same concatenated bytes if ad were not length-prefixed
	a := EncodeAssociatedData([]byte{0x01}, h1)
	b := EncodeAssociatedData([]byte{0x01, 0x01}, h2)
	assert.NotEqual(t, a, b)

	assert.NotEqual(t,
		EncodeAssociatedData(nil, BuildHeader([]byte{1}, 0, 1)),
		EncodeAssociatedData(nil, BuildHeader([]byte{1}, 1, 0)))

	assert.Equal(t,
		EncodeAssociatedData([]byte("ad"), h1),
		EncodeAssociatedData([]byte("ad"), BuildHeader([]byte{0x02, 0x03}, 0, 0)))
}
