package utils

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// FindAssociatedTokenAddress derives the SPL associated token account of
// owner for mint. No RPC call is made.
func FindAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	seeds := [][]byte{
		owner.Bytes(),
		solana.TokenProgramID.Bytes(),
		mint.Bytes(),
	}

	addr, bump, err := solana.FindProgramAddress(seeds, solana.SPLAssociatedTokenAccountProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive ata for %s: %w", mint, err)
	}
	return addr, bump, nil
}

