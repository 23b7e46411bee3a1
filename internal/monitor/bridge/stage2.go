package bridge

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ag_solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	solanachain "github.com/rajweb3/railclaw/internal/chain/solana"
	"github.com/rajweb3/railclaw/internal/chainerr"
	"github.com/rajweb3/railclaw/internal/record"
	"github.com/rajweb3/railclaw/internal/walletseal"
)

// seedIndexLE encodes the SpokePool state account's seed index (always 0
// for the single deployed state account) as little-endian u64 bytes.
func seedIndexLE(i uint64) []byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], i)
	return out[:]
}

// hexAddressToBytes20 parses a 0x-prefixed 20-byte EVM address.
func hexAddressToBytes20(hexAddr string) ([20]byte, error) {
	var out [20]byte
	s := strings.TrimPrefix(hexAddr, "0x")
	if len(s) != 40 {
		return out, fmt.Errorf("bridge monitor: invalid EVM address %q", hexAddr)
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("bridge monitor: decode EVM address %q: %w", hexAddr, err)
	}
	copy(out[:], decoded)
	return out, nil
}

// stage2BridgeDeposit unseals the temp Solana key, optionally funds it from
// the dispenser wallet, derives the SpokePool's static PDAs and the
// deposit's delegate PDA, then submits approveChecked followed by the raw
// Anchor deposit instruction (spec §4.D.2). Any failure here is fatal.
func (m *Monitor) stage2BridgeDeposit(ctx context.Context, rec *record.BridgeRecord, actualInput uint64) (string, error) {
	tempPriv, err := m.unsealTempKey(rec)
	if err != nil {
		return "", err
	}
	tempPub := tempPriv.PublicKey()

	inputMint, err := ag_solana.PublicKeyFromBase58(rec.InputTokenMint)
	if err != nil {
		return "", fmt.Errorf("bridge monitor: invalid input_token_mint %q: %w", rec.InputTokenMint, err)
	}
	depositAddr, err := ag_solana.PublicKeyFromBase58(rec.DepositAddress)
	if err != nil {
		return "", fmt.Errorf("bridge monitor: invalid deposit_address %q: %w", rec.DepositAddress, err)
	}
	program := m.deps.SpokePoolProgramSolana

	if m.deps.DispenserKey != nil && m.deps.FundAmountLamports > 0 {
		if err := m.fundTempWallet(ctx, tempPub); err != nil {
			return "", fmt.Errorf("bridge monitor: fund temp wallet: %w", err)
		}
	}

	statePDA, err := solanachain.DerivePDA(program, [][]byte{[]byte("state"), seedIndexLE(0)})
	if err != nil {
		return "", fmt.Errorf("bridge monitor: derive state pda: %w", err)
	}
	eventAuthority, err := solanachain.DerivePDA(program, [][]byte{[]byte("__event_authority")})
	if err != nil {
		return "", fmt.Errorf("bridge monitor: derive event_authority pda: %w", err)
	}
	vault, err := solanachain.DeriveATA(statePDA, inputMint)
	if err != nil {
		return "", fmt.Errorf("bridge monitor: derive vault ata: %w", err)
	}

	params, err := buildDepositParams(rec, actualInput)
	if err != nil {
		return "", err
	}

	delegatePDA, err := solanachain.DeriveDelegatePDA(program, params)
	if err != nil {
		return "", fmt.Errorf("bridge monitor: derive delegate pda: %w", err)
	}

	approveIx := solanachain.BuildApprove(depositAddr, inputMint, delegatePDA, tempPub, actualInput, 6)
	if err := m.submitSigned(ctx, []ag_solana.Instruction{approveIx}, tempPriv); err != nil {
		return "", fmt.Errorf("bridge monitor: submit approveChecked: %w", err)
	}

	data, err := solanachain.BuildDepositInstructionData(params)
	if err != nil {
		return "", fmt.Errorf("bridge monitor: build deposit instruction data: %w", err)
	}

	accounts := ag_solana.AccountMetaSlice{
		ag_solana.NewAccountMeta(tempPub, true, true),
		ag_solana.NewAccountMeta(statePDA, true, false),
		ag_solana.NewAccountMeta(delegatePDA, false, false),
		ag_solana.NewAccountMeta(depositAddr, true, false),
		ag_solana.NewAccountMeta(vault, true, false),
		ag_solana.NewAccountMeta(inputMint, false, false),
		ag_solana.NewAccountMeta(token.ProgramID, false, false),
		ag_solana.NewAccountMeta(ag_solana.SPLAssociatedTokenAccountProgramID, false, false),
		ag_solana.NewAccountMeta(ag_solana.SystemProgramID, false, false),
		ag_solana.NewAccountMeta(eventAuthority, false, false),
		ag_solana.NewAccountMeta(program, false, false),
	}
	depositIx := solanachain.BuildRawInstruction(program, accounts, data)

	sig, err := m.submitSignedSig(ctx, []ag_solana.Instruction{depositIx}, tempPriv)
	if err != nil {
		return "", fmt.Errorf("bridge monitor: submit deposit instruction: %w", err)
	}

	return sig.String(), nil
}

func (m *Monitor) unsealTempKey(rec *record.BridgeRecord) (ag_solana.PrivateKey, error) {
	sealed, err := base64.StdEncoding.DecodeString(rec.TempPrivateKeySealed)
	if err != nil {
		return nil, fmt.Errorf("bridge monitor: decode sealed temp key: %w", err)
	}
	plaintext, err := walletseal.Open(sealed, m.deps.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("bridge monitor: open sealed temp key: %w", err)
	}
	return ag_solana.PrivateKey(plaintext), nil
}

func (m *Monitor) fundTempWallet(ctx context.Context, dest ag_solana.PublicKey) error {
	dispenser := *m.deps.DispenserKey
	ix := system.NewTransferInstruction(m.deps.FundAmountLamports, dispenser.PublicKey(), dest).Build()
	return m.submitSigned(ctx, []ag_solana.Instruction{ix}, dispenser)
}

func (m *Monitor) submitSigned(ctx context.Context, instructions []ag_solana.Instruction, signer ag_solana.PrivateKey) error {
	_, err := m.submitSignedSig(ctx, instructions, signer)
	return err
}

func (m *Monitor) submitSignedSig(ctx context.Context, instructions []ag_solana.Instruction, signer ag_solana.PrivateKey) (ag_solana.Signature, error) {
	blockhash, err := m.deps.Solana.LatestBlockhash(ctx)
	if err != nil {
		return ag_solana.Signature{}, err
	}

	tx, err := ag_solana.NewTransaction(instructions, blockhash, ag_solana.TransactionPayer(signer.PublicKey()))
	if err != nil {
		return ag_solana.Signature{}, &chainerr.TxError{Reason: "build transaction", Err: err}
	}

	if _, err := tx.Sign(func(key ag_solana.PublicKey) *ag_solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	}); err != nil {
		return ag_solana.Signature{}, &chainerr.TxError{Reason: "sign transaction", Err: err}
	}

	return m.deps.Solana.SendAndConfirm(ctx, tx, m.deps.Deadline)
}

func buildDepositParams(rec *record.BridgeRecord, actualInput uint64) (solanachain.DepositParams, error) {
	depositor, err := ag_solana.PublicKeyFromBase58(rec.TempWalletPubkey)
	if err != nil {
		return solanachain.DepositParams{}, fmt.Errorf("bridge monitor: invalid temp_wallet_pubkey %q: %w", rec.TempWalletPubkey, err)
	}
	inputMint, err := ag_solana.PublicKeyFromBase58(rec.InputTokenMint)
	if err != nil {
		return solanachain.DepositParams{}, fmt.Errorf("bridge monitor: invalid input_token_mint %q: %w", rec.InputTokenMint, err)
	}

	outputAmount, ok := new(big.Int).SetString(rec.RawOutputAmount, 10)
	if !ok {
		return solanachain.DepositParams{}, fmt.Errorf("bridge monitor: invalid raw_output_amount %q", rec.RawOutputAmount)
	}
	var outputAmountBytes [32]byte
	outputAmount.FillBytes(outputAmountBytes[:])

	outputTokenAddr, err := hexAddressToBytes20(rec.OutputTokenAddress)
	if err != nil {
		return solanachain.DepositParams{}, err
	}
	recipientAddr, err := hexAddressToBytes20(rec.SettlementWallet)
	if err != nil {
		return solanachain.DepositParams{}, err
	}

	return solanachain.DepositParams{
		Depositor:           depositor,
		Recipient:           solanachain.Pad32(recipientAddr),
		InputToken:          inputMint,
		OutputToken:         solanachain.Pad32(outputTokenAddr),
		InputAmount:         actualInput,
		OutputAmount:        outputAmountBytes,
		DestinationChainID:  rec.DestinationChainID,
		ExclusiveRelayer:    [32]byte{},
		QuoteTimestamp:      uint32(rec.QuoteTimestamp),
		FillDeadline:        uint32(rec.FillDeadline),
		ExclusivityDeadline: 0,
		Message:             nil,
	}, nil
}
