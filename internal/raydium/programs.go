package raydium

import "github.com/gagliardetto/solana-go"

var (
	// AmmV4ProgramID is the Raydium liquidity pool V4 program.
	AmmV4ProgramID = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")

	// CPMMProgramID is the Raydium constant product (CP-Swap) program.
	CPMMProgramID = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")

	// WSOLMint is the wrapped SOL mint.
	WSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// V4 instruction opcodes. The program dispatches on the first data byte.
const (
	v4OpInitialize  = 0
	v4OpInitialize2 = 1
	v4OpMaxKnown    = 15
)

// initialize2 layout: tag u8 | nonce u8 | open_time u64 | init_pc u64 | init_coin u64.
const (
	v4Initialize2DataLen     = 26
	v4Initialize2MinAccounts = 18
)

// Account indices inside initialize2.
const (
	v4IdxAmm           = 4
	v4IdxAuthority     = 5
	v4IdxOpenOrders    = 6
	v4IdxLPMint        = 7
	v4IdxCoinMint      = 8
	v4IdxPcMint        = 9
	v4IdxCoinVault     = 10
	v4IdxPcVault       = 11
	v4IdxTargetOrders  = 12
	v4IdxAmmConfig     = 13
	v4IdxFeeDest       = 14
	v4IdxMarketProgram = 15
	v4IdxMarket        = 16
	v4IdxUserWallet    = 17
)

// CPMM ray_log record tags.
const (
	cpmmTagInit         = 0
	cpmmTagDeposit      = 1
	cpmmTagWithdraw     = 2
	cpmmTagSwapBaseIn   = 3
	cpmmTagSwapBaseOut  = 4
	cpmmHeaderLen       = 3 // tag u8 + length u16
	cpmmInitBodyLen     = 8 + 6*32 + 8 + 8
	rayLogPrefix        = "Program log: ray_log: "
	programInvokeSuffix = " invoke ["
)
