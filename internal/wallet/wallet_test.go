package wallet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

type fakeBalance struct {
	lamports uint64
	err      error
}

func (f fakeBalance) GetBalance(context.Context, solana.PublicKey) (uint64, error) {
	return f.lamports, f.err
}

func TestNewWalletFromPrivateKey(t *testing.T) {
	account := types.NewAccount()
	logger, _ := test.NewNullLogger()

	w, err := NewWallet(WalletConfig{PrivateKey: base58.Encode(account.PrivateKey)}, fakeBalance{}, logger)
	require.NoError(t, err)
	assert.Equal(t, solana.PublicKey(account.PublicKey), w.PublicKey())
}

func TestNewWalletFromMnemonicIsDeterministic(t *testing.T) {
	entropy, err := bip39.NewEntropy(128)
	require.NoError(t, err)
	mnemonic, err := bip39.NewMnemonic(entropy)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	a, err := NewWallet(WalletConfig{Mnemonic: mnemonic}, fakeBalance{}, logger)
	require.NoError(t, err)
	b, err := NewWallet(WalletConfig{Mnemonic: "  " + mnemonic + "\n"}, fakeBalance{}, logger)
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	other, err := NewWallet(WalletConfig{Mnemonic: mnemonic, DerivationPath: "m/44'/501'/1'/0'"}, fakeBalance{}, logger)
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), other.PublicKey())
}

func TestNewWalletRejectsBadConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewWallet(WalletConfig{}, fakeBalance{}, logger)
	assert.ErrorContains(t, err, "required")

	_, err = NewWallet(WalletConfig{PrivateKey: "x", Mnemonic: "y"}, fakeBalance{}, logger)
	assert.ErrorContains(t, err, "not both")

	_, err = NewWallet(WalletConfig{Mnemonic: "not a valid phrase at all"}, fakeBalance{}, logger)
	assert.ErrorContains(t, err, "invalid mnemonic")
}

func TestGetBalance(t *testing.T) {
	logger, _ := test.NewNullLogger()
	account := types.NewAccount()

	w, err := NewWallet(WalletConfig{PrivateKey: base58.Encode(account.PrivateKey)}, fakeBalance{lamports: 1_500_000_000}, logger)
	require.NoError(t, err)
	bal, err := w.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), bal)

	w.rpc = fakeBalance{err: errors.New("rpc down")}
	_, err = w.GetBalance(context.Background())
	assert.ErrorContains(t, err, "rpc down")
}

func TestSignSerialized(t *testing.T) {
	logger, _ := test.NewNullLogger()
	account := types.NewAccount()
	w, err := NewWallet(WalletConfig{PrivateKey: base58.Encode(account.PrivateKey)}, fakeBalance{}, logger)
	require.NoError(t, err)

	msg := types.NewMessage(types.NewMessageParam{
		FeePayer:        account.PublicKey,
		RecentBlockhash: solana.Hash{1, 2, 3}.String(),
		Instructions: []types.Instruction{
			system.Transfer(system.TransferParam{
				From:   account.PublicKey,
				To:     common.PublicKey(solana.NewWallet().PublicKey()),
				Amount: 1,
			}),
		},
	})
	unsigned := types.Transaction{Signatures: []types.Signature{make([]byte, 64)}, Message: msg}
	raw, err := unsigned.Serialize()
	require.NoError(t, err)

	signed, err := w.SignSerialized(raw)
	require.NoError(t, err)

	tx, err := types.TransactionDeserialize(signed)
	require.NoError(t, err)
	data, err := tx.Message.Serialize()
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(account.PublicKey.Bytes(), data, tx.Signatures[0]))
}

func TestSignSerializedRejectsForeignTransaction(t *testing.T) {
	logger, _ := test.NewNullLogger()
	account := types.NewAccount()
	w, err := NewWallet(WalletConfig{PrivateKey: base58.Encode(account.PrivateKey)}, fakeBalance{}, logger)
	require.NoError(t, err)

	stranger := types.NewAccount()
	msg := types.NewMessage(types.NewMessageParam{
		FeePayer:        stranger.PublicKey,
		RecentBlockhash: solana.Hash{9}.String(),
		Instructions: []types.Instruction{
			system.Transfer(system.TransferParam{From: stranger.PublicKey, To: account.PublicKey, Amount: 1}),
		},
	})
	unsigned := types.Transaction{Signatures: []types.Signature{make([]byte, 64)}, Message: msg}
	raw, err := unsigned.Serialize()
	require.NoError(t, err)

	_, err = w.SignSerialized(raw)
	assert.ErrorContains(t, err, "not a signer")
}

func TestBuildTipTransaction(t *testing.T) {
	logger, _ := test.NewNullLogger()
	account := types.NewAccount()
	w, err := NewWallet(WalletConfig{PrivateKey: base58.Encode(account.PrivateKey)}, fakeBalance{}, logger)
	require.NoError(t, err)

	tip := solana.NewWallet().PublicKey()
	raw, err := w.BuildTipTransaction(tip, 10_000, solana.Hash{7})
	require.NoError(t, err)

	tx, err := types.TransactionDeserialize(raw)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)
	assert.Contains(t, tx.Message.Accounts, common.PublicKey(tip))
	assert.Equal(t, account.PublicKey, tx.Message.Accounts[0])
}

func TestAssociatedTokenAddressMatchesSolanaGo(t *testing.T) {
	logger, _ := test.NewNullLogger()
	account := types.NewAccount()
	w, err := NewWallet(WalletConfig{PrivateKey: base58.Encode(account.PrivateKey)}, fakeBalance{}, logger)
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	got, err := w.GetAssociatedTokenAddress(mint)
	require.NoError(t, err)
	want, _, err := solana.FindAssociatedTokenAddress(w.PublicKey(), mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
