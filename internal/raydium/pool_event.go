package raydium

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Variant identifies the wire format a PoolEvent was decoded from.
type Variant int

const (
	VariantV4 Variant = iota + 1
	VariantCPMM
)

func (v Variant) String() string {
	switch v {
	case VariantV4:
		return "v4"
	case VariantCPMM:
		return "cpmm"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Instruction is a decoded transaction instruction with resolved account keys.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte
}

// Transaction is the unit the transport hands to the classifier.
// Instructions holds top-level instructions followed by inner instructions.
type Transaction struct {
	Signature    string
	Slot         uint64
	Instructions []Instruction
	Logs         []string
}

// RawFields keeps the decoded fields that are not part of the pool identity.
type RawFields struct {
	Signature       string `json:"signature,omitempty"`
	Slot            uint64 `json:"slot,omitempty"`
	OpenTime        uint64 `json:"open_time"`
	InitBaseAmount  uint64 `json:"init_base_amount"`
	InitQuoteAmount uint64 `json:"init_quote_amount"`
	Nonce           uint8  `json:"nonce,omitempty"`

	LPMint     solana.PublicKey `json:"lp_mint"`
	OpenOrders solana.PublicKey `json:"open_orders,omitempty"`
	Market     solana.PublicKey `json:"market,omitempty"`
	AmmConfig  solana.PublicKey `json:"amm_config,omitempty"`
}

// PoolEvent is a fully decoded pool creation. All address fields are
// non-zero and pairwise distinct.
type PoolEvent struct {
	PoolAddress solana.PublicKey
	BaseMint    solana.PublicKey
	QuoteMint   solana.PublicKey
	BaseVault   solana.PublicKey
	QuoteVault  solana.PublicKey
	Variant     Variant
	Raw         RawFields
}

// IsSOLPair reports whether one side of the pool is wrapped SOL.
func (e PoolEvent) IsSOLPair() bool {
	return e.BaseMint.Equals(WSOLMint) || e.QuoteMint.Equals(WSOLMint)
}

// TokenMint returns the non-SOL mint. For pools without SOL it is the base mint.
func (e PoolEvent) TokenMint() solana.PublicKey {
	if e.BaseMint.Equals(WSOLMint) {
		return e.QuoteMint
	}
	return e.BaseMint
}

// SOLVault returns the vault holding wrapped SOL, or false for non-SOL pools.
func (e PoolEvent) SOLVault() (solana.PublicKey, bool) {
	switch {
	case e.QuoteMint.Equals(WSOLMint):
		return e.QuoteVault, true
	case e.BaseMint.Equals(WSOLMint):
		return e.BaseVault, true
	}
	return solana.PublicKey{}, false
}

// TokenVault returns the vault holding TokenMint.
func (e PoolEvent) TokenVault() solana.PublicKey {
	if e.BaseMint.Equals(WSOLMint) {
		return e.QuoteVault
	}
	return e.BaseVault
}

// LogFields returns fields for structured logging.
func (e PoolEvent) LogFields() map[string]interface{} {
	return map[string]interface{}{
		"pool":        e.PoolAddress.String(),
		"base_mint":   e.BaseMint.String(),
		"quote_mint":  e.QuoteMint.String(),
		"base_vault":  e.BaseVault.String(),
		"quote_vault": e.QuoteVault.String(),
		"variant":     e.Variant.String(),
		"signature":   e.Raw.Signature,
		"slot":        e.Raw.Slot,
		"open_time":   e.Raw.OpenTime,
		"sol_pair":    e.IsSOLPair(),
	}
}

// validate enforces the non-zero and distinct address invariant.
func (e PoolEvent) validate() error {
	named := []struct {
		name string
		key  solana.PublicKey
	}{
		{"pool_address", e.PoolAddress},
		{"base_mint", e.BaseMint},
		{"quote_mint", e.QuoteMint},
		{"base_vault", e.BaseVault},
		{"quote_vault", e.QuoteVault},
	}

	for i, a := range named {
		if a.key == (solana.PublicKey{}) {
			return newDecodeError(KindAddressZero, e.Variant, "%s is all-zero", a.name)
		}
		for _, b := range named[:i] {
			if a.key.Equals(b.key) {
				return newDecodeError(KindAddressZero, e.Variant, "duplicate address: %s equals %s", a.name, b.name)
			}
		}
	}
	return nil
}
