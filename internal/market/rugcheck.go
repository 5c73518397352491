package market

import (
	"context"
	"sort"

	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultRugcheckURL = "https://api.rugcheck.xyz"

var hundred = decimal.NewFromInt(100)

// RugcheckClient fetches token risk reports from rugcheck.xyz.
type RugcheckClient struct {
	api *apiClient
}

type rugcheckReport struct {
	Mint            string          `json:"mint"`
	Score           decimal.Decimal `json:"score"`
	ScoreNormalised decimal.Decimal `json:"score_normalised"`
	Rugged          bool            `json:"rugged"`
	LPLockedPct     decimal.Decimal `json:"lpLockedPct"`
	TotalHolders    int             `json:"totalHolders"`
	TopHolders      []struct {
		Address string          `json:"address"`
		Owner   string          `json:"owner"`
		Pct     decimal.Decimal `json:"pct"`
	} `json:"topHolders"`
	Markets []struct {
		LP struct {
			LPLockedPct decimal.Decimal `json:"lpLockedPct"`
		} `json:"lp"`
	} `json:"markets"`
}

func NewRugcheckClient(cfg ClientConfig, logger logrus.FieldLogger) *RugcheckClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRugcheckURL
	}
	var headers map[string]string
	if cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	return &RugcheckClient{api: newAPIClient("rugcheck", cfg, headers, logger)}
}

// RiskReport holds the converted report plus the holder count Rugcheck knows.
type RiskReport struct {
	safety.RiskReport
	TotalHolders int
}

// GetRiskReport fetches /v1/tokens/{mint}/report. Rugcheck scores risk
// (0 best, 100 worst after normalisation); the safety score is 100 minus it.
func (r *RugcheckClient) GetRiskReport(ctx context.Context, mint solana.PublicKey) (RiskReport, error) {
	var resp rugcheckReport
	if err := r.api.getJSON(ctx, "/v1/tokens/"+mint.String()+"/report", nil, &resp); err != nil {
		return RiskReport{}, err
	}

	risk := resp.ScoreNormalised
	if risk.IsZero() && resp.Score.IsPositive() {
		risk = decimal.Min(resp.Score, hundred)
	}
	score := hundred.Sub(decimal.Min(risk, hundred))
	if score.IsNegative() {
		score = decimal.Zero
	}

	lpLocked := resp.LPLockedPct
	for _, m := range resp.Markets {
		lpLocked = decimal.Max(lpLocked, m.LP.LPLockedPct)
	}

	out := RiskReport{
		RiskReport: safety.RiskReport{
			Score:       score,
			Rugged:      resp.Rugged,
			LPLockedPct: lpLocked,
		},
		TotalHolders: resp.TotalHolders,
	}
	for _, h := range resp.TopHolders {
		addr := h.Owner
		if addr == "" {
			addr = h.Address
		}
		out.TopHolders = append(out.TopHolders, safety.HolderShare{Address: addr, Pct: h.Pct})
	}
	sort.SliceStable(out.TopHolders, func(i, j int) bool {
		return out.TopHolders[i].Pct.GreaterThan(out.TopHolders[j].Pct)
	})
	return out, nil
}
