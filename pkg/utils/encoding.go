package utils

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// IsValidSolanaAddress checks if string is a 32-byte base58 address
func IsValidSolanaAddress(address string) bool {
	decoded, err := base58.Decode(address)
	return err == nil && len(decoded) == solana.PublicKeyLength
}

// DecodeDataString decodes program log payloads. Raydium and most Anchor
// programs emit base64; some indexers re-emit hex.
func DecodeDataString(dataStr string) ([]byte, error) {
	dataStr = strings.TrimSpace(dataStr)
	if dataStr == "" {
		return nil, fmt.Errorf("empty data string")
	}

	data, err := base64.StdEncoding.DecodeString(dataStr)
	if err == nil {
		return data, nil
	}

	data, err = hex.DecodeString(strings.TrimPrefix(dataStr, "0x"))
	if err == nil {
		return data, nil
	}

	// Unpadded base64 shows up when a log line was cut mid-record.
	data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(dataStr, "="))
	if err == nil {
		return data, nil
	}
	return nil, fmt.Errorf("unknown encoding (not base64 or hex)")
}

// EncodeU16LE encodes uint16 as little-endian bytes
func EncodeU16LE(value uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	return buf
}

// EncodeU64LE encodes uint64 as little-endian bytes
func EncodeU64LE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}

// ByteReader walks a fixed-layout buffer front to back.
type ByteReader struct {
	data   []byte
	offset int
}

// NewByteReader creates a reader over data.
func NewByteReader(data []byte) *ByteReader {
	return &ByteReader{data: data}
}

// Offset returns the number of bytes consumed.
func (r *ByteReader) Offset() int {
	return r.offset
}

// Remaining returns the number of unread bytes.
func (r *ByteReader) Remaining() int {
	return len(r.data) - r.offset
}

func (r *ByteReader) need(n int, what string) error {
	if r.offset+n > len(r.data) {
		return fmt.Errorf("not enough data for %s: need %d bytes at offset %d, have %d", what, n, r.offset, len(r.data))
	}
	return nil
}

// U8 reads one byte.
func (r *ByteReader) U8() (uint8, error) {
	if err := r.need(1, "u8"); err != nil {
		return 0, err
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

// U16 reads a little-endian uint16.
func (r *ByteReader) U16() (uint16, error) {
	if err := r.need(2, "u16"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

// U64 reads a little-endian uint64.
func (r *ByteReader) U64() (uint64, error) {
	if err := r.need(8, "u64"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v, nil
}

// PublicKey reads a 32-byte address.
func (r *ByteReader) PublicKey() (solana.PublicKey, error) {
	if err := r.need(solana.PublicKeyLength, "pubkey"); err != nil {
		return solana.PublicKey{}, err
	}
	v := solana.PublicKeyFromBytes(r.data[r.offset : r.offset+solana.PublicKeyLength])
	r.offset += solana.PublicKeyLength
	return v, nil
}

// Bytes reads n raw bytes.
func (r *ByteReader) Bytes(n int) ([]byte, error) {
	if err := r.need(n, "bytes"); err != nil {
		return nil, err
	}
	v := r.data[r.offset : r.offset+n]
	r.offset += n
	return v, nil
}
