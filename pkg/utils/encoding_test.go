package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{"base64", "AQID", []byte{1, 2, 3}, false},
		{"padded base64", "AQI=", []byte{1, 2}, false},
		{"hex", "0a0b0c", []byte{0x0a, 0x0b, 0x0c}, false},
		{"hex with prefix", "0x0a0b", []byte{0x0a, 0x0b}, false},
		{"unpadded base64", "AQI", []byte{1, 2}, false},
		{"surrounding space", "  AQID\n", []byte{1, 2, 3}, false},
		{"empty", "", nil, true},
		{"garbage", "!!!?", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDataString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteReader(t *testing.T) {
	data := append([]byte{7}, EncodeU16LE(513)...)
	data = append(data, EncodeU64LE(1<<40)...)
	data = append(data, make([]byte, 32)...)
	data = append(data, 9, 9)

	r := NewByteReader(data)
	u8, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), u8)

	u16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(513), u16)

	u64, err := r.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u64)

	_, err = r.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Remaining())

	_, err = r.U64()
	assert.ErrorContains(t, err, "not enough data")
	assert.Equal(t, 43, r.Offset())

	b, err := r.Bytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, b)
}

func TestIsValidSolanaAddress(t *testing.T) {
	assert.True(t, IsValidSolanaAddress("So11111111111111111111111111111111111111112"))
	assert.False(t, IsValidSolanaAddress("abc"))
	assert.False(t, IsValidSolanaAddress("0OIl"))
}
