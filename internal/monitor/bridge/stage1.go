package bridge

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ag_solana "github.com/gagliardetto/solana-go"

	solanachain "github.com/rajweb3/railclaw/internal/chain/solana"
	"github.com/rajweb3/railclaw/internal/record"
)

// stage1DepositWatch polls get_token_account_balance(deposit_address)
// until it is at least raw_input_amount * 0.99 (spec §4.D.2's stage 1). An
// AccountNotFound response is expected and benign before the user's first
// transfer creates the ATA. Returns the observed balance as actual_input,
// carried into stage 2's approveChecked amount.
func (m *Monitor) stage1DepositWatch(ctx context.Context, rec *record.BridgeRecord) (uint64, error) {
	rawInput, ok := new(big.Int).SetString(rec.RawInputAmount, 10)
	if !ok {
		return 0, fmt.Errorf("bridge monitor: invalid raw_input_amount %q", rec.RawInputAmount)
	}
	threshold := new(big.Int).Mul(rawInput, big.NewInt(99))
	threshold.Div(threshold, big.NewInt(100))

	ata, err := ag_solana.PublicKeyFromBase58(rec.DepositAddress)
	if err != nil {
		return 0, fmt.Errorf("bridge monitor: invalid deposit_address %q: %w", rec.DepositAddress, err)
	}

	ticker := time.NewTicker(m.deps.PollInterval)
	defer ticker.Stop()

	for {
		balance, err := m.deps.Solana.GetTokenAccountBalance(ctx, ata)
		switch {
		case err == nil:
			if new(big.Int).SetUint64(balance).Cmp(threshold) >= 0 {
				return balance, nil
			}
		case err == solanachain.ErrAccountNotFound:
			// Benign: the ATA doesn't exist until the first transfer.
		case isTransient(err):
			m.log.Warn("bridge monitor: transient error polling deposit balance, retrying", map[string]any{"error": err})
		default:
			return 0, err
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
