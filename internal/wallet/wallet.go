package wallet

import (
	"context"
	"fmt"
	"strings"

	"raydium-sniper-bot/pkg/utils"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/pkg/hdwallet"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/tyler-smith/go-bip39"
)

// DefaultDerivationPath is the path Phantom and Solflare use for the first account.
const DefaultDerivationPath = "m/44'/501'/0'/0'"

// BalanceReader reads a SOL balance.
type BalanceReader interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Wallet represents a Solana wallet
type Wallet struct {
	account types.Account
	rpc     BalanceReader
	logger  logrus.FieldLogger
}

// WalletConfig contains wallet configuration. Exactly one of PrivateKey
// (base58) or Mnemonic is required.
type WalletConfig struct {
	PrivateKey     string
	Mnemonic       string
	DerivationPath string
}

// NewWallet creates a new wallet instance from a private key or mnemonic
func NewWallet(cfg WalletConfig, rpc BalanceReader, logger logrus.FieldLogger) (*Wallet, error) {
	account, err := accountFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	wallet := &Wallet{
		account: account,
		rpc:     rpc,
		logger:  logger,
	}

	logger.WithField("public_key", wallet.PublicKey().String()).Info("Wallet initialized")
	return wallet, nil
}

func accountFromConfig(cfg WalletConfig) (types.Account, error) {
	switch {
	case cfg.PrivateKey != "" && cfg.Mnemonic != "":
		return types.Account{}, fmt.Errorf("set either a private key or a mnemonic, not both")
	case cfg.PrivateKey != "":
		account, err := types.AccountFromBase58(strings.TrimSpace(cfg.PrivateKey))
		if err != nil {
			return types.Account{}, fmt.Errorf("invalid private key: %w", err)
		}
		return account, nil
	case cfg.Mnemonic != "":
		return AccountFromMnemonic(cfg.Mnemonic, cfg.DerivationPath)
	default:
		return types.Account{}, fmt.Errorf("private key or mnemonic is required")
	}
}

// AccountFromMnemonic derives an ed25519 account from a BIP-39 phrase.
func AccountFromMnemonic(mnemonic, path string) (types.Account, error) {
	if path == "" {
		path = DefaultDerivationPath
	}
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return types.Account{}, fmt.Errorf("invalid mnemonic: %w", err)
	}

	derived, err := hdwallet.Derived(path, seed)
	if err != nil {
		return types.Account{}, fmt.Errorf("failed to derive %s: %w", path, err)
	}

	account, err := types.AccountFromSeed(derived.PrivateKey)
	if err != nil {
		return types.Account{}, fmt.Errorf("failed to build account: %w", err)
	}
	return account, nil
}

// PublicKey returns the wallet's public key
func (w *Wallet) PublicKey() solana.PublicKey {
	return solana.PublicKey(w.account.PublicKey)
}

// GetBalance returns the wallet's SOL balance in lamports
func (w *Wallet) GetBalance(ctx context.Context) (uint64, error) {
	balance, err := w.rpc.GetBalance(ctx, w.PublicKey())
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"balance_lamports": balance,
		"balance_sol":      utils.LamportsToSOL(balance).String(),
	}).Debug("Retrieved wallet balance")

	return balance, nil
}

// GetAssociatedTokenAddress returns the ATA address for given mint (no RPC call)
func (w *Wallet) GetAssociatedTokenAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := utils.FindAssociatedTokenAddress(w.PublicKey(), mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find ATA address: %w", err)
	}
	return ata, nil
}

// SignSerialized signs an unsigned serialized transaction (legacy or v0) in
// the wallet's signer slot and returns it re-serialized.
func (w *Wallet) SignSerialized(raw []byte) ([]byte, error) {
	tx, err := types.TransactionDeserialize(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}

	message, err := tx.Message.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	slot := -1
	for i := 0; i < int(tx.Message.Header.NumRequireSignatures) && i < len(tx.Message.Accounts); i++ {
		if tx.Message.Accounts[i] == w.account.PublicKey {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("wallet %s is not a signer of this transaction", w.PublicKey())
	}
	for len(tx.Signatures) <= slot {
		tx.Signatures = append(tx.Signatures, make([]byte, 64))
	}
	tx.Signatures[slot] = w.account.Sign(message)

	out, err := tx.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return out, nil
}

// BuildTipTransaction builds a signed SOL transfer to a Jito tip account.
func (w *Wallet) BuildTipTransaction(tipAccount solana.PublicKey, lamports uint64, blockhash solana.Hash) ([]byte, error) {
	tx, err := types.NewTransaction(types.NewTransactionParam{
		Signers: []types.Account{w.account},
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        w.account.PublicKey,
			RecentBlockhash: blockhash.String(),
			Instructions: []types.Instruction{
				system.Transfer(system.TransferParam{
					From:   w.account.PublicKey,
					To:     common.PublicKey(tipAccount),
					Amount: lamports,
				}),
			},
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tip transaction: %w", err)
	}

	raw, err := tx.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize tip transaction: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"tip_account":  tipAccount.String(),
		"tip_lamports": lamports,
	}).Debug("Created JITO tip transaction")
	return raw, nil
}
