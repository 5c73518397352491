package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// ErrAccountNotFound is returned when an account or token account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Client represents a Solana RPC client wrapper
type Client struct {
	client     *rpc.Client
	logger     logrus.FieldLogger
	commitment rpc.CommitmentType
}

// ClientConfig contains configuration for Solana client
type ClientConfig struct {
	RPCEndpoint string
	APIKey      string
	Timeout     time.Duration
	Commitment  string
}

// NewClient creates a new Solana RPC client
func NewClient(config ClientConfig, logger logrus.FieldLogger) *Client {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if config.APIKey != "" {
		headers["Authorization"] = "Bearer " + config.APIKey
	}

	commitment := rpc.CommitmentConfirmed
	if config.Commitment != "" {
		commitment = rpc.CommitmentType(config.Commitment)
	}

	return &Client{
		client:     rpc.NewWithHeaders(config.RPCEndpoint, headers),
		logger:     logger,
		commitment: commitment,
	}
}

// RPC exposes the underlying solana-go client.
func (c *Client) RPC() *rpc.Client {
	return c.client
}

// GetAccountData returns the raw data of an account.
func (c *Client) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	result, err := c.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", account, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("getAccountInfo failed: %w", err)
	}
	if result == nil || result.Value == nil || result.Value.Data == nil {
		return nil, fmt.Errorf("%s: %w", account, ErrAccountNotFound)
	}

	return result.Value.Data.GetBinary(), nil
}

// GetTokenMetadata reads and parses an SPL mint account.
func (c *Client) GetTokenMetadata(ctx context.Context, mint solana.PublicKey) (*safety.TokenMetadata, error) {
	data, err := c.GetAccountData(ctx, mint)
	if err != nil {
		return nil, err
	}

	meta, err := ParseMint(data)
	if err != nil {
		return nil, fmt.Errorf("mint %s: %w", mint, err)
	}
	return meta, nil
}

// GetTokenAccountBalance returns the raw amount and decimals of a token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, uint8, error) {
	result, err := c.client.GetTokenAccountBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get token balance: %w", err)
	}

	if result == nil || result.Value == nil {
		return 0, 0, fmt.Errorf("%s: %w", account, ErrAccountNotFound)
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad token amount %q: %w", result.Value.Amount, err)
	}
	return amount, result.Value.Decimals, nil
}

// TokenHolding is one entry of getTokenLargestAccounts.
type TokenHolding struct {
	Address solana.PublicKey
	Amount  uint64
}

type largestAccountsResult struct {
	Value []struct {
		Address  string `json:"address"`
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"value"`
}

// GetTokenLargestAccounts returns up to 20 of the largest holders of a mint,
// largest first.
func (c *Client) GetTokenLargestAccounts(ctx context.Context, mint solana.PublicKey) ([]TokenHolding, error) {
	var out largestAccountsResult
	params := []interface{}{
		mint.String(),
		map[string]interface{}{"commitment": string(c.commitment)},
	}
	if err := c.client.RPCCallForInto(ctx, &out, "getTokenLargestAccounts", params); err != nil {
		return nil, fmt.Errorf("getTokenLargestAccounts failed: %w", err)
	}

	holdings := make([]TokenHolding, 0, len(out.Value))
	for _, v := range out.Value {
		addr, err := solana.PublicKeyFromBase58(v.Address)
		if err != nil {
			return nil, fmt.Errorf("bad holder address %q: %w", v.Address, err)
		}
		amount, err := strconv.ParseUint(v.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad holder amount %q: %w", v.Amount, err)
		}
		holdings = append(holdings, TokenHolding{Address: addr, Amount: amount})
	}
	return holdings, nil
}

// GetLatestBlockhash returns the latest blockhash.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash failed: %w", err)
	}

	return result.Value.Blockhash, nil
}

// SendRawTransaction submits a signed, serialized transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte, skipPreflight bool) (solana.Signature, error) {
	sig, err := c.client.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       skipPreflight,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sendTransaction failed: %w", err)
	}

	return sig, nil
}

// WaitForConfirmation polls the signature status until it is confirmed,
// failed, or ctx ends.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			c.logger.WithError(err).WithField("signature", sig.String()).Debug("Signature status not available yet")
		case status.Err != nil:
			return fmt.Errorf("transaction failed: %v", status.Err)
		case status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized:
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not confirmed: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetBalance gets account balance in lamports
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	result, err := c.client.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("getBalance failed: %w", err)
	}

	return result.Value, nil
}

// GetSignatureStatus gets single signature status
func (c *Client) GetSignatureStatus(ctx context.Context, signature solana.Signature) (*rpc.SignatureStatusesResult, error) {
	result, err := c.client.GetSignatureStatuses(ctx, true, signature)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses failed: %w", err)
	}

	if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
		return nil, fmt.Errorf("signature not found")
	}

	return result.Value[0], nil
}
