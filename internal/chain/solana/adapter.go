// Package solana provides the uniform Solana chain-adapter operations spec
// §4.C requires: token-account balance reads, ATA/PDA derivation, an
// approveChecked builder, a raw Anchor-discriminator instruction builder,
// and poll-confirm transaction submission. Built on
// github.com/gagliardetto/solana-go exactly as the teacher's
// clients/solana.go does, generalized past its single SOL-transfer
// verification path into a general-purpose adapter.
package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ag_solana "github.com/gagliardetto/solana-go"
	associated_token_account "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rajweb3/railclaw/internal/chainerr"
	"github.com/rajweb3/railclaw/internal/logger"
)

// ErrAccountNotFound mirrors spec §4.C's get_token_account_balance
// AccountNotFound outcome — expected and benign before a user's first
// deposit creates the ATA.
var ErrAccountNotFound = errors.New("solana: token account not found")

type Adapter struct {
	client *rpc.Client
	log    logger.Logger
}

func Dial(rpcURL string, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Adapter{client: rpc.New(rpcURL), log: log}
}

// GetTokenAccountBalance returns the raw (smallest-unit) token balance of
// an associated token account. A not-yet-created ATA surfaces as
// ErrAccountNotFound rather than an RPCError, since stage 1 of the bridge
// monitor treats it as a normal pre-deposit state, not a failure.
func (a *Adapter) GetTokenAccountBalance(ctx context.Context, ata ag_solana.PublicKey) (uint64, error) {
	out, err := a.client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		if isAccountNotFound(err) {
			return 0, ErrAccountNotFound
		}
		return 0, &chainerr.RPCError{Transient: true, Err: err}
	}
	if out == nil || out.Value == nil {
		return 0, ErrAccountNotFound
	}
	var amount uint64
	if _, err := fmt.Sscanf(out.Value.Amount, "%d", &amount); err != nil {
		return 0, fmt.Errorf("solana: parse token balance %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}

func isAccountNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find account")
}

// DeriveATA computes the deterministic associated token account for
// (owner, mint). It works for PDA owners as well as wallet owners — the
// derivation never requires the owner to be on-curve.
func DeriveATA(owner, mint ag_solana.PublicKey) (ag_solana.PublicKey, error) {
	ata, _, err := ag_solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return ag_solana.PublicKey{}, fmt.Errorf("solana: derive ata: %w", err)
	}
	return ata, nil
}

// DerivePDA wraps ag_solana.FindProgramAddress for callers that only need the
// address, discarding the bump seed.
func DerivePDA(programID ag_solana.PublicKey, seeds [][]byte) (ag_solana.PublicKey, error) {
	addr, _, err := ag_solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return ag_solana.PublicKey{}, fmt.Errorf("solana: derive pda: %w", err)
	}
	return addr, nil
}

// BuildApprove builds an SPL Token approveChecked instruction granting
// delegate spending authority for amount of the given mint, held in the
// source token account and owned by owner.
func BuildApprove(source, mint, delegate, owner ag_solana.PublicKey, amount uint64, decimals uint8) ag_solana.Instruction {
	return token.NewApproveCheckedInstruction(
		amount,
		decimals,
		source,
		mint,
		delegate,
		owner,
		nil,
	).Build()
}

// BuildRawInstruction constructs an instruction from an explicit account
// list and opaque data payload — used for the bridge's non-standard
// Anchor-discriminator deposit instruction, which has no generated
// binding in the retrieved pack.
func BuildRawInstruction(programID ag_solana.PublicKey, accounts ag_solana.AccountMetaSlice, data []byte) ag_solana.Instruction {
	return ag_solana.NewInstruction(programID, accounts, data)
}

// BuildCreateATA wraps the associated-token-account program's Create
// instruction, used when the bridge's temp wallet needs its own token
// account seeded before a deposit can land in it.
func BuildCreateATA(payer, owner, mint ag_solana.PublicKey) ag_solana.Instruction {
	return associated_token_account.NewCreateInstruction(payer, owner, mint).Build()
}

// SendAndConfirm submits tx and polls signature statuses until it reaches
// confirmed (or finalized) status or the deadline expires, never opening a persistent websocket
// (spec §4.C). Failure is always a TxError — fatal for the payment that
// triggered it.
func (a *Adapter) SendAndConfirm(ctx context.Context, tx *ag_solana.Transaction, deadline time.Duration) (ag_solana.Signature, error) {
	sig, err := a.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return ag_solana.Signature{}, &chainerr.TxError{Reason: "broadcast", Err: err}
	}

	deadlineAt := time.Now().Add(deadline)
	for time.Now().Before(deadlineAt) {
		select {
		case <-ctx.Done():
			return sig, &chainerr.TxError{Reason: "context cancelled", Err: ctx.Err()}
		case <-time.After(2 * time.Second):
		}

		statuses, err := a.client.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			a.log.Warn("solana: get_signature_statuses failed, retrying", map[string]any{"sig": sig.String(), "error": err})
			continue
		}
		if len(statuses.Value) == 0 || statuses.Value[0] == nil {
			continue
		}
		st := statuses.Value[0]
		if st.Err != nil {
			return sig, &chainerr.TxError{Reason: "transaction reverted", Err: fmt.Errorf("%v", st.Err)}
		}
		if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return sig, nil
		}
	}

	return sig, &chainerr.TxError{Reason: "not confirmed before deadline", Err: fmt.Errorf("signature %s", sig.String())}
}

// LatestBlockhash fetches a recent blockhash for transaction construction.
func (a *Adapter) LatestBlockhash(ctx context.Context) (ag_solana.Hash, error) {
	out, err := a.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return ag_solana.Hash{}, &chainerr.RPCError{Transient: true, Err: err}
	}
	return out.Value.Blockhash, nil
}
