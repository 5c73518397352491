package trader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const DefaultJupiterURL = "https://quote-api.jup.ag/v6"

// JupiterConfig configures the Jupiter swap API client.
type JupiterConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// JupiterClient requests quotes and unsigned swap transactions from Jupiter.
type JupiterClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
}

// Quote is a Jupiter route quote. Raw is passed back verbatim to /swap.
type Quote struct {
	InputMint      solana.PublicKey
	OutputMint     solana.PublicKey
	InAmount       uint64
	OutAmount      uint64
	MinOutAmount   uint64
	PriceImpactPct decimal.Decimal
	SlippageBP     int
	Raw            json.RawMessage
}

type quoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       decimal.Decimal `json:"priceImpactPct"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// NewJupiterClient creates a Jupiter client.
func NewJupiterClient(cfg JupiterConfig, logger logrus.FieldLogger) *JupiterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultJupiterURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &JupiterClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// GetQuote asks for the best route swapping amount of inputMint.
func (j *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBP int) (Quote, error) {
	q := url.Values{
		"inputMint":   {inputMint.String()},
		"outputMint":  {outputMint.String()},
		"amount":      {strconv.FormatUint(amount, 10)},
		"slippageBps": {strconv.Itoa(slippageBP)},
	}

	raw, err := j.do(ctx, http.MethodGet, "/quote?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter quote: %w", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Quote{}, fmt.Errorf("jupiter quote: failed to unmarshal: %w", err)
	}

	quote := Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		PriceImpactPct: resp.PriceImpactPct,
		SlippageBP:     resp.SlippageBps,
		Raw:            raw,
	}
	if quote.InAmount, err = strconv.ParseUint(resp.InAmount, 10, 64); err != nil {
		return Quote{}, fmt.Errorf("jupiter quote: bad inAmount %q: %w", resp.InAmount, err)
	}
	if quote.OutAmount, err = strconv.ParseUint(resp.OutAmount, 10, 64); err != nil {
		return Quote{}, fmt.Errorf("jupiter quote: bad outAmount %q: %w", resp.OutAmount, err)
	}
	quote.MinOutAmount = quote.OutAmount
	if resp.OtherAmountThreshold != "" {
		if quote.MinOutAmount, err = strconv.ParseUint(resp.OtherAmountThreshold, 10, 64); err != nil {
			return Quote{}, fmt.Errorf("jupiter quote: bad otherAmountThreshold %q: %w", resp.OtherAmountThreshold, err)
		}
	}
	if quote.OutAmount == 0 {
		return Quote{}, fmt.Errorf("jupiter quote: no route for %s -> %s", inputMint, outputMint)
	}

	j.logger.WithFields(logrus.Fields{
		"input_mint":   inputMint.String(),
		"output_mint":  outputMint.String(),
		"in_amount":    quote.InAmount,
		"out_amount":   quote.OutAmount,
		"price_impact": quote.PriceImpactPct.String(),
	}).Debug("Jupiter quote received")
	return quote, nil
}

// GetSwapTransaction returns the unsigned serialized swap transaction.
func (j *JupiterClient) GetSwapTransaction(ctx context.Context, quote Quote, user solana.PublicKey, priorityFeeLamports uint64) ([]byte, error) {
	body, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             user.String(),
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: priorityFeeLamports,
	})
	if err != nil {
		return nil, fmt.Errorf("jupiter swap: failed to marshal request: %w", err)
	}

	raw, err := j.do(ctx, http.MethodPost, "/swap", body)
	if err != nil {
		return nil, fmt.Errorf("jupiter swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("jupiter swap: failed to unmarshal: %w", err)
	}
	if resp.SwapTransaction == "" {
		return nil, fmt.Errorf("jupiter swap: empty transaction")
	}

	tx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("jupiter swap: bad transaction encoding: %w", err)
	}
	return tx, nil
}

func (j *JupiterClient) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, j.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if j.apiKey != "" {
		req.Header.Set("x-api-key", j.apiKey)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(responseBody))
	}
	return responseBody, nil
}
