package market

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBirdeyeURL = "https://public-api.birdeye.so"

	// Birdeye aggregates many venues, so its volume is trusted more than
	// DexScreener's.
	BirdeyeConfidence = "0.8"
)

// BirdeyeClient reads token overview and price history from Birdeye.
type BirdeyeClient struct {
	api        *apiClient
	confidence decimal.Decimal
	now        func() time.Time
}

type birdeyeEnvelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type birdeyeOverview struct {
	Address       string           `json:"address"`
	Price         *decimal.Decimal `json:"price"`
	Liquidity     *decimal.Decimal `json:"liquidity"`
	Volume24hUSD  *decimal.Decimal `json:"v24hUSD"`
	Holder        int              `json:"holder"`
	LastTradeUnix int64            `json:"lastTradeUnixTime"`
}

type birdeyeHistory struct {
	Items []struct {
		UnixTime int64           `json:"unixTime"`
		Value    decimal.Decimal `json:"value"`
	} `json:"items"`
}

type birdeyeCreation struct {
	TxHash        string `json:"txHash"`
	Slot          uint64 `json:"slot"`
	BlockUnixTime int64  `json:"blockUnixTime"`
}

// NewBirdeyeClient creates a Birdeye client. The API key is mandatory for
// the public API.
func NewBirdeyeClient(cfg ClientConfig, logger logrus.FieldLogger) *BirdeyeClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBirdeyeURL
	}
	headers := map[string]string{"x-chain": "solana"}
	if cfg.APIKey != "" {
		headers["X-API-KEY"] = cfg.APIKey
	}
	return &BirdeyeClient{
		api:        newAPIClient("birdeye", cfg, headers, logger),
		confidence: decimal.RequireFromString(BirdeyeConfidence),
		now:        time.Now,
	}
}

// Name identifies the source in volume samples.
func (b *BirdeyeClient) Name() string { return "birdeye" }

func (b *BirdeyeClient) overview(ctx context.Context, mint solana.PublicKey) (birdeyeOverview, error) {
	var resp birdeyeEnvelope[birdeyeOverview]
	q := url.Values{"address": {mint.String()}}
	if err := b.api.getJSON(ctx, "/defi/token_overview", q, &resp); err != nil {
		return birdeyeOverview{}, err
	}
	if !resp.Success {
		return birdeyeOverview{}, fmt.Errorf("birdeye: token_overview failed: %s", resp.Message)
	}
	return resp.Data, nil
}

// GetVolume24h returns the 24h USD volume with Birdeye's source confidence.
func (b *BirdeyeClient) GetVolume24h(ctx context.Context, mint solana.PublicKey) (safety.VolumeSample, error) {
	ov, err := b.overview(ctx, mint)
	if err != nil {
		return safety.VolumeSample{}, err
	}
	if ov.Volume24hUSD == nil || !ov.Volume24hUSD.IsPositive() {
		return safety.VolumeSample{}, fmt.Errorf("birdeye: volume for %s: %w", mint, ErrNoData)
	}
	return safety.VolumeSample{Source: b.Name(), Value: *ov.Volume24hUSD, Confidence: b.confidence}, nil
}

// GetHolderCount returns Birdeye's holder count.
func (b *BirdeyeClient) GetHolderCount(ctx context.Context, mint solana.PublicKey) (int, error) {
	ov, err := b.overview(ctx, mint)
	if err != nil {
		return 0, err
	}
	if ov.Holder <= 0 {
		return 0, fmt.Errorf("birdeye: holders for %s: %w", mint, ErrNoData)
	}
	return ov.Holder, nil
}

// GetPriceHistory returns up to points prices at the given interval
// ("1m", "5m", "1H", ...), oldest first.
func (b *BirdeyeClient) GetPriceHistory(ctx context.Context, mint solana.PublicKey, interval string, lookback time.Duration) ([]decimal.Decimal, error) {
	to := b.now()
	from := to.Add(-lookback)
	q := url.Values{
		"address":      {mint.String()},
		"address_type": {"token"},
		"type":         {interval},
		"time_from":    {strconv.FormatInt(from.Unix(), 10)},
		"time_to":      {strconv.FormatInt(to.Unix(), 10)},
	}

	var resp birdeyeEnvelope[birdeyeHistory]
	if err := b.api.getJSON(ctx, "/defi/history_price", q, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("birdeye: history_price failed: %s", resp.Message)
	}

	prices := make([]decimal.Decimal, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		prices = append(prices, item.Value)
	}
	return prices, nil
}

// GetTokenCreationTime returns the block time of the mint's creation.
func (b *BirdeyeClient) GetTokenCreationTime(ctx context.Context, mint solana.PublicKey) (time.Time, error) {
	var resp birdeyeEnvelope[*birdeyeCreation]
	q := url.Values{"address": {mint.String()}}
	if err := b.api.getJSON(ctx, "/defi/token_creation_info", q, &resp); err != nil {
		return time.Time{}, err
	}
	if !resp.Success {
		return time.Time{}, fmt.Errorf("birdeye: token_creation_info failed: %s", resp.Message)
	}
	if resp.Data == nil || resp.Data.BlockUnixTime <= 0 {
		return time.Time{}, fmt.Errorf("birdeye: creation time for %s: %w", mint, ErrNoData)
	}
	return time.Unix(resp.Data.BlockUnixTime, 0), nil
}
