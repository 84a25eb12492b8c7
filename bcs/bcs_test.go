package bcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULEB128(t *testing.T) {
	tests := []struct {
		value   uint64
		encoded []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		e := NewEncoder()
		e.WriteULEB128(tt.value)
		assert.Equal(t, tt.encoded, e.Bytes(), "encoding %d", tt.value)

		d := NewDecoder(tt.encoded)
		assert.Equal(t, tt.value, d.ReadULEB128())
		require.NoError(t, d.Err())
		assert.Equal(t, 0, d.Remaining())
	}
}

func TestIntegersAreLittleEndian(t *testing.T) {
	assert.Equal(t, []byte{0xe8, 0x03, 0, 0, 0, 0, 0, 0}, EncodeU64(1000))

	e := NewEncoder()
	e.WriteU16(0x0102)
	e.WriteU32(0x01020304)
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03, 0x02, 0x01}, e.Bytes())
}

func TestVectorsAndStrings(t *testing.T) {
	assert.Equal(t, []byte{3, 'a', 'b', 'c'}, EncodeString("abc"))
	assert.Equal(t, []byte{0}, EncodeBytes(nil))

	e := NewEncoder()
	e.WriteString("escrow")
	e.WriteBool(true)
	e.WriteOption(false)
	e.WriteU8(7)

	d := NewDecoder(e.Bytes())
	assert.Equal(t, "escrow", d.ReadString())
	assert.True(t, d.ReadBool())
	assert.False(t, d.ReadOption())
	assert.Equal(t, uint8(7), d.ReadU8())
	require.NoError(t, d.Err())
}

func TestDecoderErrorsAreSticky(t *testing.T) {
	d := NewDecoder([]byte{0x05, 'a'})
	assert.Nil(t, d.ReadBytes())
	assert.ErrorIs(t, d.Err(), ErrUnexpectedEOF)
	assert.Equal(t, uint64(0), d.ReadU64())
	assert.ErrorIs(t, d.Err(), ErrUnexpectedEOF)

	d = NewDecoder([]byte{2})
	d.ReadBool()
	assert.ErrorIs(t, d.Err(), ErrInvalidBool)
}
