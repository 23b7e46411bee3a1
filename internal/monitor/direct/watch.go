package direct

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/rajweb3/railclaw/internal/chain/evm"
)

// watchNative polls successive blocks starting at the historical window's
// floor, inspecting each transaction's `to` and `value` (spec §4.D.1's
// native-symbol dispatch). Contract-creation transactions (nil `To`) are
// skipped — they cannot pay a wallet directly.
func (m *Monitor) watchNative(ctx context.Context, adapter *evm.Adapter, wallet common.Address, expectedAmount decimal.Decimal, createdAt time.Time) (*match, error) {
	expectedWei := ParseUnits(expectedAmount, 18)
	lowerBound := new(big.Int).Mul(expectedWei, big.NewInt(99))
	lowerBound.Div(lowerBound, big.NewInt(100))

	current, err := adapter.GetBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	lookback := EstimateLookbackBlocks(adapter.Chain(), time.Since(createdAt).Seconds())
	next := uint64(0)
	if current > lookback {
		next = current - lookback
	}

	ticker := time.NewTicker(m.deps.PollInterval)
	defer ticker.Stop()

	for {
		latest, err := adapter.GetBlockNumber(ctx)
		if err != nil {
			if !isTransient(err) {
				return nil, err
			}
			m.log.Warn("direct monitor: transient error fetching block number", map[string]any{"error": err})
		} else {
			for ; next <= latest; next++ {
				block, err := adapter.BlockByNumber(ctx, next)
				if err != nil {
					if !isTransient(err) {
						return nil, err
					}
					m.log.Warn("direct monitor: transient error fetching block", map[string]any{"block": next, "error": err})
					break
				}
				for _, tx := range block.Transactions() {
					to := tx.To()
					if to == nil || *to != wallet {
						continue
					}
					if tx.Value().Cmp(lowerBound) >= 0 {
						return &match{txHash: tx.Hash(), block: next}, nil
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// watchERC20 registers a live subscription first (when a WS endpoint is
// configured for the chain), then sweeps the historical window, mirroring
// the bridge monitor's subscribe-then-sweep ordering so a transfer
// landing between the two calls is never missed. When no WS endpoint is
// configured, or the subscription's transport fails, the periodic sweep
// alone still converges on a match. Bridge-fill exclusion (spec §4.D.1)
// discards logs whose sender topic is a known SpokePool address.
func (m *Monitor) watchERC20(ctx context.Context, adapter *evm.Adapter, token, wallet common.Address, expectedRaw *big.Int, createdAt time.Time) (*match, error) {
	topics := [][]common.Hash{
		{evm.ERC20TransferTopic},
		nil,
		{padAddress(wallet)},
	}

	current, err := adapter.GetBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	lookback := EstimateLookbackBlocks(adapter.Chain(), time.Since(createdAt).Seconds())
	fromBlock := uint64(0)
	if current > lookback {
		fromBlock = current - lookback
	}

	var liveCh <-chan types.Log
	if wsURL, ok := m.deps.WSEndpoints[adapter.Chain()]; ok && wsURL != "" {
		if ch, err := adapter.Subscribe(ctx, wsURL, token, topics); err != nil {
			m.log.Warn("direct monitor: subscribe failed, falling back to polling only", map[string]any{"error": err})
		} else {
			liveCh = ch
		}
	}

	historical, err := adapter.GetLogs(ctx, token, topics, fromBlock, current)
	if err != nil && !isTransient(err) {
		return nil, err
	}
	if found := m.candidateFromLogs(historical, expectedRaw); found != nil {
		return found, nil
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
			if found := m.candidateFromLogs([]types.Log{lg}, expectedRaw); found != nil {
				return found, nil
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
			sweep, err := adapter.GetLogs(ctx, token, topics, fromBlock, latest)
			if err != nil {
				if !isTransient(err) {
					return nil, err
				}
				continue
			}
			fromBlock = latest + 1
			if found := m.candidateFromLogs(sweep, expectedRaw); found != nil {
				return found, nil
			}
		}
	}
}

func (m *Monitor) candidateFromLogs(logs []types.Log, expectedRaw *big.Int) *match {
	for _, lg := range logs {
		transfer, err := evm.ParseERC20Transfer(lg)
		if err != nil {
			continue
		}
		if m.deps.SpokePools[transfer.From] {
			continue
		}
		if InBand(expectedRaw, transfer.Value) {
			return &match{txHash: transfer.TxHash, block: transfer.Block}
		}
	}
	return nil
}

func padAddress(a common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], a.Bytes())
	return h
}
