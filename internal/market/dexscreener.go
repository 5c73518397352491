package market

import (
	"context"
	"fmt"

	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	DexScreenerConfidence = "0.7"
)

// DexScreenerClient reads pair data from DexScreener. No API key needed.
type DexScreenerClient struct {
	api        *apiClient
	confidence decimal.Decimal
}

type dexScreenerPairs struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	PriceNative string `json:"priceNative"`
	PriceUSD    string `json:"priceUsd"`
	Volume      struct {
		H24 decimal.Decimal `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD  decimal.Decimal `json:"usd"`
		Base decimal.Decimal `json:"base"`
	} `json:"liquidity"`
}

func NewDexScreenerClient(cfg ClientConfig, logger logrus.FieldLogger) *DexScreenerClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDexScreenerURL
	}
	return &DexScreenerClient{
		api:        newAPIClient("dexscreener", cfg, nil, logger),
		confidence: decimal.RequireFromString(DexScreenerConfidence),
	}
}

func (d *DexScreenerClient) Name() string { return "dexscreener" }

func (d *DexScreenerClient) pairs(ctx context.Context, mint solana.PublicKey) ([]dexScreenerPair, error) {
	var resp dexScreenerPairs
	if err := d.api.getJSON(ctx, "/latest/dex/tokens/"+mint.String(), nil, &resp); err != nil {
		return nil, err
	}

	out := resp.Pairs[:0]
	for _, p := range resp.Pairs {
		if p.ChainID == "" || p.ChainID == "solana" {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetVolume24h sums 24h volume over every Solana pair of the token.
func (d *DexScreenerClient) GetVolume24h(ctx context.Context, mint solana.PublicKey) (safety.VolumeSample, error) {
	pairs, err := d.pairs(ctx, mint)
	if err != nil {
		return safety.VolumeSample{}, err
	}

	total := decimal.Zero
	for _, p := range pairs {
		if p.Volume.H24.IsPositive() {
			total = total.Add(p.Volume.H24)
		}
	}
	if !total.IsPositive() {
		return safety.VolumeSample{}, fmt.Errorf("dexscreener: volume for %s: %w", mint, ErrNoData)
	}
	return safety.VolumeSample{Source: d.Name(), Value: total, Confidence: d.confidence}, nil
}

// GetPriceNative returns the SOL price from the most liquid pair.
func (d *DexScreenerClient) GetPriceNative(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, error) {
	pairs, err := d.pairs(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}

	var best *dexScreenerPair
	for i := range pairs {
		if best == nil || pairs[i].Liquidity.USD.GreaterThan(best.Liquidity.USD) {
			best = &pairs[i]
		}
	}
	if best == nil || best.PriceNative == "" {
		return decimal.Zero, fmt.Errorf("dexscreener: price for %s: %w", mint, ErrNoData)
	}

	price, err := decimal.NewFromString(best.PriceNative)
	if err != nil {
		return decimal.Zero, fmt.Errorf("dexscreener: bad price %q: %w", best.PriceNative, err)
	}
	return price, nil
}
