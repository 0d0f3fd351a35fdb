package doubleratchet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkippedKeysTakeOnce(t *testing.T) {
	s := NewSkippedKeys(4)
	require.NoError(t, s.Record([]byte("k"), 1, []byte("mk1")))

	_, ok := s.Take([]byte("k"), 2)
	assert.False(t, ok)
	_, ok = s.Take([]byte("other"), 1)
	assert.False(t, ok)

	mk, ok := s.Take([]byte("k"), 1)
	require.True(t, ok)
	assert.Equal(t, []byte("mk1"), mk)

	_, ok = s.Take([]byte("k"), 1)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestSkippedKeysLimit(t *testing.T) {
	s := NewSkippedKeys(2)
	require.NoError(t, s.Record([]byte("k"), 0, []byte{0}))
	require.NoError(t, s.Record([]byte("k"), 1, []byte{1}))

	err := s.Record([]byte("k"), 2, []byte{2})
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, 2, s.Len())

	// replacing does not grow the store
	require.NoError(t, s.Record([]byte("k"), 1, []byte{9}))
	mk, ok := s.Take([]byte("k"), 1)
	require.True(t, ok)
	assert.Equal(t, []byte{9}, mk)
	assert.Equal(t, 1, s.Free())
}

func TestSkippedKeysRecordAllIsAtomic(t *testing.T) {
	s := NewSkippedKeys(3)
	require.NoError(t, s.Record([]byte("a"), 0, []byte{0}))

	err := s.recordAll([]SkippedKey{
		{Pub: []byte("b"), N: 0, MessageKey: []byte{1}},
		{Pub: []byte("b"), N: 1, MessageKey: []byte{2}},
		{Pub: []byte("b"), N: 2, MessageKey: []byte{3}},
	})
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.recordAll([]SkippedKey{
		{Pub: []byte("a"), N: 0, MessageKey: []byte{4}},
		{Pub: []byte("b"), N: 0, MessageKey: []byte{5}},
		{Pub: []byte("b"), N: 1, MessageKey: []byte{6}},
	}))
	assert.Equal(t, 3, s.Len())
}

func TestSkippedKeysEntriesSorted(t *testing.T) {
	s := NewSkippedKeys(8)
	assert.Nil(t, s.Entries())

	require.NoError(t, s.Record([]byte("b"), 1, []byte{1}))
	require.NoError(t, s.Record([]byte("a"), 5, []byte{2}))
	require.NoError(t, s.Record([]byte("b"), 0, []byte{3}))

	assert.Equal(t, []SkippedKey{
		{Pub: []byte("a"), N: 5, MessageKey: []byte{2}},
		{Pub: []byte("b"), N: 0, MessageKey: []byte{3}},
		{Pub: []byte("b"), N: 1, MessageKey: []byte{1}},
	}, s.Entries())

	s.Wipe()
	assert.Zero(t, s.Len())
}
