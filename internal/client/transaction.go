package client

import (
	"context"
	"fmt"
	"strconv"

	"raydium-sniper-bot/internal/raydium"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// RawTransaction is the json-encoded getTransaction result.
type RawTransaction struct {
	Slot        uint64     `json:"slot"`
	BlockTime   *int64     `json:"blockTime"`
	Meta        *rawMeta   `json:"meta"`
	Transaction *rawTxBody `json:"transaction"`
}

type rawMeta struct {
	Err               interface{}       `json:"err"`
	Fee               uint64            `json:"fee"`
	PreBalances       []uint64          `json:"preBalances"`
	PostBalances      []uint64          `json:"postBalances"`
	PreTokenBalances  []rawTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []rawTokenBalance `json:"postTokenBalances"`
	LogMessages       []string          `json:"logMessages"`
	InnerInstructions []rawInnerGroup   `json:"innerInstructions"`
	LoadedAddresses   *rawLoadedLookup  `json:"loadedAddresses"`
}

type rawTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type rawInnerGroup struct {
	Index        int              `json:"index"`
	Instructions []rawInstruction `json:"instructions"`
}

type rawLoadedLookup struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type rawTxBody struct {
	Signatures []string `json:"signatures"`
	Message    struct {
		AccountKeys  []string         `json:"accountKeys"`
		Instructions []rawInstruction `json:"instructions"`
	} `json:"message"`
}

type rawInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

// BalanceChange is what one confirmed transaction moved for a wallet.
type BalanceChange struct {
	Token    int64  // raw units of the mint held by the owner, after minus before
	Lamports int64  // native balance change of the owner with the fee added back
	Fee      uint64 // charged to the fee payer
}

func (c *Client) fetchRaw(ctx context.Context, signature string) (*RawTransaction, error) {
	var raw *RawTransaction
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     string(c.commitment),
			"maxSupportedTransactionVersion": 0,
		},
	}
	if err := c.client.RPCCallForInto(ctx, &raw, "getTransaction", params); err != nil {
		return nil, fmt.Errorf("getTransaction failed: %w", err)
	}
	if raw == nil || raw.Transaction == nil {
		return nil, fmt.Errorf("transaction %s: %w", signature, ErrAccountNotFound)
	}
	return raw, nil
}

// GetBalanceChange reads the owner's native and mint balance change from a
// confirmed transaction. A transaction the node does not serve yet yields
// ErrAccountNotFound.
func (c *Client) GetBalanceChange(ctx context.Context, sig solana.Signature, owner, mint solana.PublicKey) (BalanceChange, error) {
	raw, err := c.fetchRaw(ctx, sig.String())
	if err != nil {
		return BalanceChange{}, err
	}
	return raw.BalanceChange(owner, mint)
}

// BalanceChange computes the owner's balance change for mint from the
// transaction meta.
func (r *RawTransaction) BalanceChange(owner, mint solana.PublicKey) (BalanceChange, error) {
	if r.Meta == nil || r.Transaction == nil {
		return BalanceChange{}, fmt.Errorf("transaction has no meta")
	}
	if r.Meta.Err != nil {
		return BalanceChange{}, fmt.Errorf("transaction failed: %v", r.Meta.Err)
	}
	change := BalanceChange{Fee: r.Meta.Fee}

	pre, err := sumTokenBalance(r.Meta.PreTokenBalances, owner, mint)
	if err != nil {
		return BalanceChange{}, err
	}
	post, err := sumTokenBalance(r.Meta.PostTokenBalances, owner, mint)
	if err != nil {
		return BalanceChange{}, err
	}
	change.Token = int64(post) - int64(pre)

	ownerKey := owner.String()
	for i, key := range r.Transaction.Message.AccountKeys {
		if key != ownerKey {
			continue
		}
		if i >= len(r.Meta.PreBalances) || i >= len(r.Meta.PostBalances) {
			return BalanceChange{}, fmt.Errorf("balance index %d out of range", i)
		}
		change.Lamports = int64(r.Meta.PostBalances[i]) - int64(r.Meta.PreBalances[i])
		if i == 0 {
			change.Lamports += int64(r.Meta.Fee)
		}
		break
	}
	return change, nil
}

func sumTokenBalance(balances []rawTokenBalance, owner, mint solana.PublicKey) (uint64, error) {
	var total uint64
	for _, b := range balances {
		if b.Owner != owner.String() || b.Mint != mint.String() {
			continue
		}
		v, err := strconv.ParseUint(b.UITokenAmount.Amount, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad token amount %q: %w", b.UITokenAmount.Amount, err)
		}
		total += v
	}
	return total, nil
}

// GetTransaction fetches a confirmed transaction and converts it for the
// pool classifier. A transaction the node does not know yet yields
// ErrAccountNotFound.
func (c *Client) GetTransaction(ctx context.Context, signature string) (raydium.Transaction, error) {
	raw, err := c.fetchRaw(ctx, signature)
	if err != nil {
		return raydium.Transaction{}, err
	}

	tx, err := raw.Convert()
	if err != nil {
		return raydium.Transaction{}, fmt.Errorf("transaction %s: %w", signature, err)
	}
	if tx.Signature == "" {
		tx.Signature = signature
	}
	return tx, nil
}

// Convert resolves account indexes (including address-table lookups) and
// flattens top-level then inner instructions.
func (r *RawTransaction) Convert() (raydium.Transaction, error) {
	tx := raydium.Transaction{Slot: r.Slot}
	if r.Transaction == nil {
		return tx, fmt.Errorf("missing transaction body")
	}
	if len(r.Transaction.Signatures) > 0 {
		tx.Signature = r.Transaction.Signatures[0]
	}

	keyStrings := append([]string{}, r.Transaction.Message.AccountKeys...)
	if r.Meta != nil && r.Meta.LoadedAddresses != nil {
		keyStrings = append(keyStrings, r.Meta.LoadedAddresses.Writable...)
		keyStrings = append(keyStrings, r.Meta.LoadedAddresses.Readonly...)
	}
	keys := make([]solana.PublicKey, len(keyStrings))
	for i, s := range keyStrings {
		k, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return tx, fmt.Errorf("bad account key %q: %w", s, err)
		}
		keys[i] = k
	}

	for _, ix := range r.Transaction.Message.Instructions {
		out, err := resolveInstruction(ix, keys)
		if err != nil {
			return tx, err
		}
		tx.Instructions = append(tx.Instructions, out)
	}

	if r.Meta != nil {
		tx.Logs = r.Meta.LogMessages
		for _, group := range r.Meta.InnerInstructions {
			for _, ix := range group.Instructions {
				out, err := resolveInstruction(ix, keys)
				if err != nil {
					return tx, fmt.Errorf("inner instruction of %d: %w", group.Index, err)
				}
				tx.Instructions = append(tx.Instructions, out)
			}
		}
	}
	return tx, nil
}

func resolveInstruction(ix rawInstruction, keys []solana.PublicKey) (raydium.Instruction, error) {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(keys) {
		return raydium.Instruction{}, fmt.Errorf("program index %d out of range", ix.ProgramIDIndex)
	}

	accounts := make([]solana.PublicKey, len(ix.Accounts))
	for i, idx := range ix.Accounts {
		if idx < 0 || idx >= len(keys) {
			return raydium.Instruction{}, fmt.Errorf("account index %d out of range", idx)
		}
		accounts[i] = keys[idx]
	}

	var data []byte
	if ix.Data != "" {
		var err error
		if data, err = base58.Decode(ix.Data); err != nil {
			return raydium.Instruction{}, fmt.Errorf("bad instruction data: %w", err)
		}
	}

	return raydium.Instruction{
		ProgramID: keys[ix.ProgramIDIndex],
		Accounts:  accounts,
		Data:      data,
	}, nil
}
