package raydium

import (
	"strings"

	"raydium-sniper-bot/pkg/utils"

	"github.com/gagliardetto/solana-go"
)

// DecodeV4 decodes an AMM V4 initialize2 instruction.
func DecodeV4(ix Instruction) (PoolEvent, error) {
	if !ix.ProgramID.Equals(AmmV4ProgramID) {
		return PoolEvent{}, newDecodeError(KindNotApplicable, VariantV4, "program %s is not amm v4", ix.ProgramID)
	}
	if len(ix.Data) == 0 {
		return PoolEvent{}, newDecodeError(KindTruncated, VariantV4, "empty instruction data")
	}

	op := ix.Data[0]
	if op != v4OpInitialize2 {
		if op <= v4OpMaxKnown {
			return PoolEvent{}, newDecodeError(KindNotApplicable, VariantV4, "opcode %d is not initialize2", op)
		}
		return PoolEvent{}, newDecodeError(KindBadDiscriminator, VariantV4, "unknown opcode %d", op)
	}

	if len(ix.Data) < v4Initialize2DataLen {
		return PoolEvent{}, newDecodeError(KindTruncated, VariantV4,
			"initialize2 data is %d bytes, need %d", len(ix.Data), v4Initialize2DataLen)
	}
	if len(ix.Accounts) < v4Initialize2MinAccounts {
		return PoolEvent{}, newDecodeError(KindTruncated, VariantV4,
			"initialize2 has %d accounts, need %d", len(ix.Accounts), v4Initialize2MinAccounts)
	}

	r := utils.NewByteReader(ix.Data[1:])
	// Lengths were checked above; the reader cannot fail here.
	nonce, _ := r.U8()
	openTime, _ := r.U64()
	initPc, _ := r.U64()
	initCoin, _ := r.U64()

	acc := ix.Accounts
	ev := PoolEvent{
		PoolAddress: acc[v4IdxAmm],
		BaseMint:    acc[v4IdxCoinMint],
		QuoteMint:   acc[v4IdxPcMint],
		BaseVault:   acc[v4IdxCoinVault],
		QuoteVault:  acc[v4IdxPcVault],
		Variant:     VariantV4,
		Raw: RawFields{
			OpenTime:        openTime,
			InitBaseAmount:  initCoin,
			InitQuoteAmount: initPc,
			Nonce:           nonce,
			LPMint:          acc[v4IdxLPMint],
			OpenOrders:      acc[v4IdxOpenOrders],
			Market:          acc[v4IdxMarket],
			AmmConfig:       acc[v4IdxAmmConfig],
		},
	}
	if err := ev.validate(); err != nil {
		return PoolEvent{}, err
	}
	return ev, nil
}

// DecodeCPMM scans ray_log records emitted by the CPMM program and decodes
// the first pool-init record. Records from other programs are ignored even
// when they carry the same prefix.
func DecodeCPMM(logs []string) (PoolEvent, error) {
	var firstErr error

	for _, line := range programLogs(logs, CPMMProgramID) {
		if !strings.HasPrefix(line, rayLogPrefix) {
			continue
		}
		ev, err := DecodeRayLog(strings.TrimPrefix(line, rayLogPrefix))
		if err == nil {
			return ev, nil
		}
		if !IsNotApplicable(err) && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return PoolEvent{}, firstErr
	}
	return PoolEvent{}, newDecodeError(KindNotApplicable, VariantCPMM, "no pool-init ray_log from cpmm program")
}

// DecodeRayLog decodes one CPMM ray_log payload (base64 or hex).
func DecodeRayLog(payload string) (PoolEvent, error) {
	data, err := utils.DecodeDataString(payload)
	if err != nil {
		// The runtime cuts long log lines; an undecodable payload is a cut record.
		return PoolEvent{}, newDecodeError(KindTruncated, VariantCPMM, "ray_log payload: %v", err)
	}
	return decodeRayLogRecord(data)
}

func decodeRayLogRecord(data []byte) (PoolEvent, error) {
	r := utils.NewByteReader(data)

	tag, err := r.U8()
	if err != nil {
		return PoolEvent{}, newDecodeError(KindTruncated, VariantCPMM, "empty ray_log record")
	}
	switch tag {
	case cpmmTagInit:
	case cpmmTagDeposit, cpmmTagWithdraw, cpmmTagSwapBaseIn, cpmmTagSwapBaseOut:
		return PoolEvent{}, newDecodeError(KindNotApplicable, VariantCPMM, "ray_log tag %d is not pool-init", tag)
	default:
		return PoolEvent{}, newDecodeError(KindBadDiscriminator, VariantCPMM, "unknown ray_log tag %d", tag)
	}

	length, err := r.U16()
	if err != nil {
		return PoolEvent{}, newDecodeError(KindTruncated, VariantCPMM, "ray_log header: %v", err)
	}
	if int(length) < cpmmInitBodyLen {
		return PoolEvent{}, newDecodeError(KindTruncated, VariantCPMM,
			"init record declares %d bytes, need %d", length, cpmmInitBodyLen)
	}
	body, err := r.Bytes(int(length))
	if err != nil {
		return PoolEvent{}, newDecodeError(KindTruncated, VariantCPMM, "init record body: %v", err)
	}

	b := utils.NewByteReader(body)
	var (
		openTime, initBase, initQuote uint64
		keys                          [6]solana.PublicKey
	)
	// body length >= cpmmInitBodyLen, so these reads cannot fail.
	openTime, _ = b.U64()
	for i := range keys {
		keys[i], _ = b.PublicKey()
	}
	initBase, _ = b.U64()
	initQuote, _ = b.U64()

	ev := PoolEvent{
		PoolAddress: keys[0],
		BaseMint:    keys[1],
		QuoteMint:   keys[2],
		BaseVault:   keys[3],
		QuoteVault:  keys[4],
		Variant:     VariantCPMM,
		Raw: RawFields{
			OpenTime:        openTime,
			InitBaseAmount:  initBase,
			InitQuoteAmount: initQuote,
			LPMint:          keys[5],
		},
	}
	if err := ev.validate(); err != nil {
		return PoolEvent{}, err
	}
	return ev, nil
}

// EncodeRayLogInit builds a pool-init ray_log record. It is the inverse of
// DecodeRayLog and is used by tooling and tests.
func EncodeRayLogInit(ev PoolEvent) []byte {
	body := make([]byte, 0, cpmmInitBodyLen)
	body = append(body, utils.EncodeU64LE(ev.Raw.OpenTime)...)
	for _, k := range []solana.PublicKey{ev.PoolAddress, ev.BaseMint, ev.QuoteMint, ev.BaseVault, ev.QuoteVault, ev.Raw.LPMint} {
		body = append(body, k.Bytes()...)
	}
	body = append(body, utils.EncodeU64LE(ev.Raw.InitBaseAmount)...)
	body = append(body, utils.EncodeU64LE(ev.Raw.InitQuoteAmount)...)

	out := make([]byte, 0, cpmmHeaderLen+len(body))
	out = append(out, cpmmTagInit)
	out = append(out, utils.EncodeU16LE(uint16(len(body)))...)
	return append(out, body...)
}
