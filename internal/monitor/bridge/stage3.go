package bridge

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rajweb3/railclaw/internal/chain/evm"
	"github.com/rajweb3/railclaw/internal/record"
)

type fillMatch struct {
	txHash        string
	confirmations int
}

// stage3FillWatch watches the destination SpokePool for the FilledRelay
// event matching this deposit (spec §4.D.2's stage 3), subscribing first
// and sweeping the historical window second so a fill landing between the
// two never slips through. lookbackBlocks widens on a resumed monitor per
// spec §4.D.2's resumability note.
func (m *Monitor) stage3FillWatch(ctx context.Context, rec *record.BridgeRecord, lookbackBlocks uint64) (*fillMatch, error) {
	adapter, ok := m.deps.EVM[rec.SettlementChain]
	if !ok {
		return nil, fmt.Errorf("bridge monitor: no EVM adapter configured for chain %q", rec.SettlementChain)
	}

	rawOutput, ok := new(big.Int).SetString(rec.RawOutputAmount, 10)
	if !ok {
		return nil, fmt.Errorf("bridge monitor: invalid raw_output_amount %q", rec.RawOutputAmount)
	}
	outputToken := common.HexToAddress(rec.OutputTokenAddress)
	spokePool := common.HexToAddress(rec.SpokePoolDestination)
	recipient := common.HexToAddress(rec.SettlementWallet)
	originChainTopic := common.BigToHash(new(big.Int).SetUint64(m.deps.SolanaAcrossChainID))

	topics := [][]common.Hash{
		{evm.FilledRelayTopic},
		{originChainTopic},
	}

	current, err := adapter.GetBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	fromBlock := uint64(0)
	if current > lookbackBlocks {
		fromBlock = current - lookbackBlocks
	}

	var liveCh <-chan types.Log
	if wsURL, ok := m.deps.WSEndpoints[adapter.Chain()]; ok && wsURL != "" {
		if ch, err := adapter.Subscribe(ctx, wsURL, spokePool, topics); err != nil {
			m.log.Warn("bridge monitor: subscribe failed, falling back to polling only", map[string]any{"error": err})
		} else {
			liveCh = ch
		}
	}

	fillBlock, txHash, err := m.sweepFills(ctx, adapter, topics, fromBlock, current, spokePool, outputToken, recipient, rawOutput)
	if err != nil && !isTransient(err) {
		return nil, err
	}
	if fillBlock != 0 {
		return m.waitFillConfirmations(ctx, adapter, fillBlock, txHash)
	}
	fromBlock = current + 1

	ticker := time.NewTicker(m.deps.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case lg, ok := <-liveCh:
			if !ok {
				liveCh = nil
				continue
			}
			if fr := candidateFill(lg, recipient, outputToken, rawOutput); fr != nil {
				return m.waitFillConfirmations(ctx, adapter, fr.Block, fr.TxHash.Hex())
			}
		case <-ticker.C:
			latest, err := adapter.GetBlockNumber(ctx)
			if err != nil {
				if !isTransient(err) {
					return nil, err
				}
				continue
			}
			if latest < fromBlock {
				continue
			}
			block, hash, err := m.sweepFills(ctx, adapter, topics, fromBlock, latest, spokePool, outputToken, recipient, rawOutput)
			if err != nil {
				if !isTransient(err) {
					return nil, err
				}
				continue
			}
			fromBlock = latest + 1
			if block != 0 {
				return m.waitFillConfirmations(ctx, adapter, block, hash)
			}
		}
	}
}

func (m *Monitor) sweepFills(ctx context.Context, adapter *evm.Adapter, topics [][]common.Hash, from, to uint64, spokePool, outputToken, recipient common.Address, rawOutput *big.Int) (uint64, string, error) {
	logs, err := adapter.GetLogs(ctx, spokePool, topics, from, to)
	if err != nil {
		return 0, "", err
	}
	for _, lg := range logs {
		fr := candidateFill(lg, recipient, outputToken, rawOutput)
		if fr != nil {
			return fr.Block, fr.TxHash.Hex(), nil
		}
	}
	return 0, "", nil
}

// candidateFill decodes a FilledRelay log and checks spec §4.D.2 / §8's
// matching predicate: recipient = settlement_wallet, outputToken =
// configured output token, outputAmount within [0.99, 1.01] of raw_output.
func candidateFill(lg types.Log, recipient, outputToken common.Address, rawOutput *big.Int) *evm.FilledRelay {
	fr, err := evm.ParseFilledRelay(lg)
	if err != nil {
		return nil
	}
	if !strings.EqualFold(fr.Recipient.Hex(), recipient.Hex()) {
		return nil
	}
	if !strings.EqualFold(fr.OutputToken.Hex(), outputToken.Hex()) {
		return nil
	}
	lower := new(big.Int).Mul(rawOutput, big.NewInt(99))
	lower.Div(lower, big.NewInt(100))
	upper := new(big.Int).Mul(rawOutput, big.NewInt(101))
	upper.Div(upper, big.NewInt(100))
	if fr.OutputAmount.Cmp(lower) < 0 || fr.OutputAmount.Cmp(upper) > 0 {
		return nil
	}
	return fr
}

// waitFillConfirmations snapshots confirmations = current - fill_block + 1
// at match time (spec §4.D.2 stage 3 transitions to confirmed on the fill
// event itself, unlike the direct monitor's explicit wait loop).
func (m *Monitor) waitFillConfirmations(ctx context.Context, adapter *evm.Adapter, fillBlock uint64, txHash string) (*fillMatch, error) {
	current, err := adapter.GetBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return &fillMatch{txHash: txHash, confirmations: int(current-fillBlock) + 1}, nil
}
