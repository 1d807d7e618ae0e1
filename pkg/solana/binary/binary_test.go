package binary

import (
	"crypto/ed25519"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	key[0], key[31] = 1, 2

	b := NewWriter(0).
		Uint8(7).
		Uint32(0x01020304).
		Uint64(0x0102030405060708).
		Key(key).
		Raw([]byte("hi")).
		Bytes()

	expected := []byte{7, 4, 3, 2, 1, 8, 7, 6, 5, 4, 3, 2, 1}
	expected = append(expected, key...)
	expected = append(expected, 'h', 'i')
	assert.Equal(t, expected, b)

	// Short keys are padded so the layout keeps its size.
	assert.Len(t, NewWriter(0).Key(key[:4]).Bytes(), ed25519.PublicKeySize)
}

func TestReader(t *testing.T) {
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	key[5] = 9

	b := NewWriter(0).Uint8(1).Uint32(2).Uint64(3).Key(key).Bytes()

	r := NewReader(b)
	assert.EqualValues(t, 1, r.Uint8())
	assert.EqualValues(t, 2, r.Uint32())
	assert.EqualValues(t, 3, r.Uint64())
	read := r.Key()
	assert.Equal(t, key, read)
	assert.Zero(t, r.Remaining())
	require.NoError(t, r.Err())

	// Keys are copied out of the input.
	b[len(b)-ed25519.PublicKeySize+5] = 0
	assert.EqualValues(t, 9, read[5])
}

func TestUint16AndRaw(t *testing.T) {
	b := NewWriter(4).Uint16(0xfffe).Raw([]byte{1, 2}).Bytes()
	assert.Equal(t, []byte{0xfe, 0xff, 1, 2}, b)

	r := NewReader(b)
	assert.EqualValues(t, 0xfffe, r.Uint16())

	raw := r.Raw(2)
	assert.Equal(t, []byte{1, 2}, raw)
	b[2] = 9
	assert.EqualValues(t, 1, raw[0])

	assert.Nil(t, r.Raw(1))
	assert.True(t, errors.Is(r.Err(), ErrShortBuffer))
}

func TestReader_Short(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	assert.EqualValues(t, 0x04030201, r.Uint32())
	assert.Zero(t, r.Uint64())
	assert.True(t, errors.Is(r.Err(), ErrShortBuffer))

	// The failure is sticky, even for reads that would fit.
	assert.Zero(t, r.Uint8())
	assert.Nil(t, r.Key())
	assert.Equal(t, 1, r.Remaining())
}
