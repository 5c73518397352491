package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/sirupsen/logrus"
)

// tipAccountsTTL bounds how long a fetched tip account list is reused.
const tipAccountsTTL = 10 * time.Minute

// defaultTipAccounts are the published block-engine tip accounts. They are
// used when getTipAccounts cannot be reached so a buy is not delayed.
var defaultTipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// JitoClient talks to a Jito block engine over its JSON-RPC bundle API.
type JitoClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     logrus.FieldLogger

	mu        sync.Mutex
	tips      []solana.PublicKey
	tipsUntil time.Time
	next      atomic.Uint64
}

// JitoClientConfig contains configuration for JITO client
type JitoClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// JitoBundleStatus is one entry of a getBundleStatuses response.
type JitoBundleStatus struct {
	BundleID           string      `json:"bundle_id"`
	Transactions       []string    `json:"transactions"`
	Slot               uint64      `json:"slot"`
	ConfirmationStatus string      `json:"confirmation_status"`
	Err                interface{} `json:"err"`
}

// Landed reports whether the bundle reached confirmed or finalized.
func (s *JitoBundleStatus) Landed() bool {
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// BundleError is returned by ConfirmBundle when the engine reports the bundle failed.
type BundleError struct {
	BundleID string
	Slot     uint64
	Reason   interface{}
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("bundle %s failed at slot %d: %v", e.BundleID, e.Slot, e.Reason)
}

type jitoRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jitoResponse struct {
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *jsonrpc.RPCError `json:"error,omitempty"`
}

// NewJitoClient creates a block-engine client.
func NewJitoClient(config JitoClientConfig, logger logrus.FieldLogger) *JitoClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &JitoClient{
		endpoint:   config.Endpoint,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// call performs one JSON-RPC call and decodes the result into out.
func (jc *JitoClient) call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(jitoRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, jc.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if jc.apiKey != "" {
		req.Header.Set("x-jito-auth", jc.apiKey)
	}

	start := time.Now()
	resp, err := jc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	jc.logger.WithFields(logrus.Fields{
		"method":  method,
		"status":  resp.StatusCode,
		"latency": time.Since(start).String(),
	}).Debug("Block engine call")

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, string(raw))
	}

	var decoded jitoResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s: %w", method, decoded.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// GetTipAccounts fetches the current tip accounts from the block engine.
func (jc *JitoClient) GetTipAccounts(ctx context.Context) ([]solana.PublicKey, error) {
	var addrs []string
	if err := jc.call(ctx, "getTipAccounts", &addrs); err != nil {
		return nil, err
	}

	keys := make([]solana.PublicKey, 0, len(addrs))
	for _, a := range addrs {
		k, err := solana.PublicKeyFromBase58(a)
		if err != nil {
			return nil, fmt.Errorf("bad tip account %q: %w", a, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// tipAccounts returns the cached list, refreshing it once it expired.
// A failed refresh keeps the previous list or falls back to the defaults.
func (jc *JitoClient) tipAccounts(ctx context.Context) []solana.PublicKey {
	jc.mu.Lock()
	defer jc.mu.Unlock()

	if len(jc.tips) > 0 && time.Now().Before(jc.tipsUntil) {
		return jc.tips
	}

	keys, err := jc.GetTipAccounts(ctx)
	switch {
	case err == nil && len(keys) > 0:
		jc.tips = keys
		jc.tipsUntil = time.Now().Add(tipAccountsTTL)
		jc.logger.WithField("count", len(keys)).Debug("Tip accounts refreshed")
	case len(jc.tips) == 0:
		jc.logger.WithError(err).Warn("⚠️ Tip accounts unavailable, using built-in list")
		jc.tips = defaultTipAccounts
		jc.tipsUntil = time.Now().Add(time.Minute)
	default:
		jc.logger.WithError(err).Debug("Tip account refresh failed, keeping cached list")
		jc.tipsUntil = time.Now().Add(time.Minute)
	}
	return jc.tips
}

// GetRandomTipAccount returns the next tip account, rotating through the
// list so tips are spread across accounts.
func (jc *JitoClient) GetRandomTipAccount(ctx context.Context) (solana.PublicKey, error) {
	tips := jc.tipAccounts(ctx)
	if len(tips) == 0 {
		return solana.PublicKey{}, fmt.Errorf("no tip accounts available")
	}
	i := jc.next.Add(1) - 1
	return tips[i%uint64(len(tips))], nil
}

// SendBundle submits serialized transactions as one atomic bundle.
func (jc *JitoClient) SendBundle(ctx context.Context, transactions [][]byte) (string, error) {
	if len(transactions) == 0 || len(transactions) > 5 {
		return "", fmt.Errorf("bundle must hold 1 to 5 transactions, got %d", len(transactions))
	}

	encoded := make([]string, 0, len(transactions))
	for _, tx := range transactions {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(tx))
	}

	var bundleID string
	if err := jc.call(ctx, "sendBundle", &bundleID, encoded, map[string]string{"encoding": "base64"}); err != nil {
		return "", err
	}

	jc.logger.WithFields(logrus.Fields{
		"bundle_id":    bundleID,
		"transactions": len(transactions),
	}).Info("📦 Bundle submitted")
	return bundleID, nil
}

// GetBundleStatus returns the engine's view of a bundle. A nil status
// without error means the bundle is not known yet.
func (jc *JitoClient) GetBundleStatus(ctx context.Context, bundleID string) (*JitoBundleStatus, error) {
	var result struct {
		Value []*JitoBundleStatus `json:"value"`
	}
	if err := jc.call(ctx, "getBundleStatuses", &result, []string{bundleID}); err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// ConfirmBundle polls the bundle status until it lands, fails or ctx ends.
func (jc *JitoClient) ConfirmBundle(ctx context.Context, bundleID string, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	log := jc.logger.WithField("bundle_id", bundleID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("bundle %s not confirmed after %d polls: %w", bundleID, polls, ctx.Err())
		case <-ticker.C:
		}
		polls++

		status, err := jc.GetBundleStatus(ctx, bundleID)
		if err != nil {
			log.WithError(err).Debug("Bundle status poll failed")
			continue
		}
		if status == nil {
			continue
		}
		if status.Err != nil && !bundleOK(status.Err) {
			return &BundleError{BundleID: bundleID, Slot: status.Slot, Reason: status.Err}
		}
		if status.Landed() {
			log.WithFields(logrus.Fields{
				"status": status.ConfirmationStatus,
				"slot":   status.Slot,
				"polls":  polls,
			}).Info("✅ Bundle landed")
			return nil
		}
	}
}

// bundleOK reports whether a status err field is the {"Ok": null} success marker.
func bundleOK(statusErr interface{}) bool {
	m, ok := statusErr.(map[string]interface{})
	if !ok {
		return false
	}
	_, has := m["Ok"]
	return has
}
