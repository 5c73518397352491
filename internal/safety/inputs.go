package safety

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// TokenMetadata is the parsed SPL mint account.
type TokenMetadata struct {
	MintAuthority   *solana.PublicKey
	FreezeAuthority *solana.PublicKey
	Supply          uint64
	Decimals        uint8
}

// HolderStats describes token distribution. TopHolderPct is nil when no
// per-holder balances were available.
type HolderStats struct {
	Count        int
	TopHolderPct *decimal.Decimal
}

// VolumeSample is one source's 24h volume with its confidence in [0,1].
type VolumeSample struct {
	Source     string
	Value      decimal.Decimal
	Confidence decimal.Decimal
}

// Reserves are pool balances in UI units.
type Reserves struct {
	SOL   decimal.Decimal
	Token decimal.Decimal
}

// HolderShare is one entry of a risk report's top holders.
type HolderShare struct {
	Address string
	Pct     decimal.Decimal
}

// RiskReport is the external risk provider's view of a token. Score is a
// safety score in [0,100], higher is safer.
type RiskReport struct {
	Score       decimal.Decimal
	Rugged      bool
	LPLockedPct decimal.Decimal
	TopHolders  []HolderShare
}

// Inputs carries every externally fetched fact. A nil value with a non-nil
// error means the collaborator failed; a nil value with a nil error means
// the fact was not collected.
type Inputs struct {
	Metadata    *TokenMetadata
	MetadataErr error

	LiquiditySOL *decimal.Decimal
	LiquidityErr error

	Holders    *HolderStats
	HoldersErr error

	Volumes      []VolumeSample
	Reserves     *Reserves
	PriceHistory []decimal.Decimal

	Risk    *RiskReport
	RiskErr error

	TokenAge    *time.Duration
	TokenAgeErr error
}

func (in Inputs) riskRequested() bool {
	return in.Risk != nil || in.RiskErr != nil
}
