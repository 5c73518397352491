package market

import (
	"context"
	"fmt"

	"raydium-sniper-bot/internal/position"
	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"
	"raydium-sniper-bot/pkg/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// TokenBalanceReader reads an SPL token account balance.
type TokenBalanceReader interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (amount uint64, decimals uint8, err error)
}

// PoolPriceSource prices tokens from the pool's own vault balances, so the
// monitor needs no third-party price feed for a brand-new pool.
type PoolPriceSource struct {
	balances TokenBalanceReader
}

func NewPoolPriceSource(balances TokenBalanceReader) *PoolPriceSource {
	return &PoolPriceSource{balances: balances}
}

// Reserves reads both vaults in UI units.
func (p *PoolPriceSource) Reserves(ctx context.Context, solVault, tokenVault solana.PublicKey) (safety.Reserves, error) {
	solRaw, solDecimals, err := p.balances.GetTokenAccountBalance(ctx, solVault)
	if err != nil {
		return safety.Reserves{}, fmt.Errorf("sol vault %s: %w", solVault, err)
	}
	tokenRaw, tokenDecimals, err := p.balances.GetTokenAccountBalance(ctx, tokenVault)
	if err != nil {
		return safety.Reserves{}, fmt.Errorf("token vault %s: %w", tokenVault, err)
	}
	return safety.Reserves{
		SOL:   utils.ToUIAmount(solRaw, solDecimals),
		Token: utils.ToUIAmount(tokenRaw, tokenDecimals),
	}, nil
}

// GetPoolReserves reads the reserves of a SOL-paired pool.
func (p *PoolPriceSource) GetPoolReserves(ctx context.Context, ev raydium.PoolEvent) (safety.Reserves, error) {
	solVault, ok := ev.SOLVault()
	if !ok {
		return safety.Reserves{}, fmt.Errorf("pool %s has no SOL side", ev.PoolAddress)
	}
	return p.Reserves(ctx, solVault, ev.TokenVault())
}

// GetPrice returns SOL per token unit for a live position.
func (p *PoolPriceSource) GetPrice(ctx context.Context, s position.Snapshot) (decimal.Decimal, error) {
	r, err := p.Reserves(ctx, s.SOLVault, s.TokenVault)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", position.ErrPriceUnavailable, err)
	}
	return SpotPrice(r)
}

// SpotPrice is SOL reserve / token reserve.
func SpotPrice(r safety.Reserves) (decimal.Decimal, error) {
	if !r.Token.IsPositive() || !r.SOL.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: empty pool reserves", position.ErrPriceUnavailable)
	}
	return r.SOL.Div(r.Token), nil
}
