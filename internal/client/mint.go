package client

import (
	"encoding/binary"
	"fmt"

	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
)

// SPL token mint account layout.
const (
	MintAccountSize = 82

	mintAuthorityOffset   = 0
	supplyOffset          = 36
	decimalsOffset        = 44
	isInitializedOffset   = 45
	freezeAuthorityOffset = 46
)

// ParseMint decodes an SPL token (or Token-2022 base) mint account.
// Extension data past the base layout is ignored.
func ParseMint(data []byte) (*safety.TokenMetadata, error) {
	if len(data) < MintAccountSize {
		return nil, fmt.Errorf("mint account too short: %d bytes", len(data))
	}
	if data[isInitializedOffset] == 0 {
		return nil, fmt.Errorf("mint account not initialized")
	}

	mintAuthority, err := readCOptionKey(data, mintAuthorityOffset)
	if err != nil {
		return nil, fmt.Errorf("mint authority: %w", err)
	}
	freezeAuthority, err := readCOptionKey(data, freezeAuthorityOffset)
	if err != nil {
		return nil, fmt.Errorf("freeze authority: %w", err)
	}

	return &safety.TokenMetadata{
		MintAuthority:   mintAuthority,
		FreezeAuthority: freezeAuthority,
		Supply:          binary.LittleEndian.Uint64(data[supplyOffset:]),
		Decimals:        data[decimalsOffset],
	}, nil
}

// readCOptionKey reads a u32 tag followed by a 32-byte key; tag 0 is None.
func readCOptionKey(data []byte, offset int) (*solana.PublicKey, error) {
	switch tag := binary.LittleEndian.Uint32(data[offset:]); tag {
	case 0:
		return nil, nil
	case 1:
		key := solana.PublicKeyFromBytes(data[offset+4 : offset+36])
		return &key, nil
	default:
		return nil, fmt.Errorf("bad option tag %d", tag)
	}
}

// EncodeMint builds a mint account image.
func EncodeMint(meta safety.TokenMetadata) []byte {
	data := make([]byte, MintAccountSize)
	if meta.MintAuthority != nil {
		binary.LittleEndian.PutUint32(data[mintAuthorityOffset:], 1)
		copy(data[mintAuthorityOffset+4:], meta.MintAuthority[:])
	}
	binary.LittleEndian.PutUint64(data[supplyOffset:], meta.Supply)
	data[decimalsOffset] = meta.Decimals
	data[isInitializedOffset] = 1
	if meta.FreezeAuthority != nil {
		binary.LittleEndian.PutUint32(data[freezeAuthorityOffset:], 1)
		copy(data[freezeAuthorityOffset+4:], meta.FreezeAuthority[:])
	}
	return data
}
