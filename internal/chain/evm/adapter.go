// Package evm provides the uniform EVM chain-adapter operations spec §4.C
// requires: block number, chunked log scans, receipts, a best-effort
// subscription with polling fallback, and ERC-20/Across event decoders.
// Built on github.com/ethereum/go-ethereum exactly as the teacher's
// clients/ethereum.go and clients/evm_erc20.go do.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rajweb3/railclaw/internal/chainerr"
	"github.com/rajweb3/railclaw/internal/logger"
)

// erc20ABI covers just the surface Railclaw calls: balanceOf and
// decimals. The teacher's evm_erc20.go calls through a generated Erc20
// binding that isn't checked into the retrieved pack; Railclaw instead
// binds these two methods directly with abi.JSON + bind.BoundContract,
// go-ethereum's standard no-abigen calling convention.
const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("evm: parse erc20 abi: %v", err))
	}
	erc20ABI = parsed
}

// ERC20TransferTopic is keccak256("Transfer(address,address,uint256)").
var ERC20TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// FilledRelayTopic is the Across v3 bytes32-variant FilledRelay event
// signature hash — kept as a canary per spec §9 ("Across-protocol event
// schema drift"): only this schema is normative here.
var FilledRelayTopic = common.HexToHash("0x44b559f1523dead22a7dc7c6d9d12e04de9fdb71c3e3b5d75049b1ef77c1c0ad")

type Adapter struct {
	chain  string
	client *ethclient.Client
	log    logger.Logger
}

func Dial(ctx context.Context, chain, rpcURL string, log logger.Logger) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, &chainerr.RPCError{Transient: false, Err: fmt.Errorf("evm: dial %s: %w", chain, err)}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Adapter{chain: chain, client: client, log: log}, nil
}

func (a *Adapter) Close() { a.client.Close() }

func (a *Adapter) Chain() string { return a.chain }

func (a *Adapter) GetBlockNumber(ctx context.Context) (uint64, error) {
	n, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, &chainerr.RPCError{Transient: true, Err: err}
	}
	return n, nil
}

func (a *Adapter) GetReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, err := a.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, &chainerr.RPCError{Transient: true, Err: err}
	}
	return r, nil
}

// Decimals reads the token's on-chain decimals(), defaulting to 6 on any
// failure (spec §4.D.1: "Decimals come from the token's on-chain
// decimals(), defaulting to 6 on failure.").
func (a *Adapter) Decimals(ctx context.Context, token common.Address) uint8 {
	bound := bind.NewBoundContract(token, erc20ABI, a.client, nil, nil)
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil || len(out) == 0 {
		a.log.Warn("evm: decimals() failed, defaulting to 6", map[string]any{"token": token.Hex(), "chain": a.chain, "error": err})
		return 6
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 6
	}
	return d
}

func (a *Adapter) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	bound := bind.NewBoundContract(token, erc20ABI, a.client, nil, nil)
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, &chainerr.RPCError{Transient: true, Err: err}
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("evm: unexpected balanceOf return type")
	}
	return bal, nil
}

// BlockByNumber reads a full block (used by the direct monitor's native
// value-transfer scan, which has no log topics to filter by).
func (a *Adapter) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	b, err := a.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, &chainerr.RPCError{Transient: true, Err: err}
	}
	return b, nil
}

const maxLogChunkBlocks = 10

// GetLogs scans [fromBlock, toBlock] in chunks of at most 10 blocks (spec
// §5's RPC rate discipline), sleeping ~100ms between chunks, retrying
// transient errors on a single chunk without dropping the remaining
// chunks (spec §8 boundary case).
func (a *Adapter) GetLogs(ctx context.Context, address common.Address, topics [][]common.Hash, fromBlock, toBlock uint64) ([]types.Log, error) {
	var all []types.Log

	for start := fromBlock; start <= toBlock; start += maxLogChunkBlocks {
		end := start + maxLogChunkBlocks - 1
		if end > toBlock {
			end = toBlock
		}

		logs, err := a.getLogsChunkWithRetry(ctx, address, topics, start, end)
		if err != nil {
			return nil, err
		}
		all = append(all, logs...)

		if end < toBlock {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	return all, nil
}

func (a *Adapter) getLogsChunkWithRetry(ctx context.Context, address common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error) {
	const maxAttempts = 5
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		logs, err := a.client.FilterLogs(ctx, ethereum.FilterQuery{
			Addresses: []common.Address{address},
			Topics:    topics,
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
		})
		if err == nil {
			return logs, nil
		}

		lastErr = err
		a.log.Warn("evm: get_logs chunk failed, retrying", map[string]any{
			"chain": a.chain, "from": from, "to": to, "attempt": attempt, "error": err,
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond * time.Duration(attempt+1)):
		}
	}

	return nil, &chainerr.RPCError{Transient: true, Err: fmt.Errorf("evm: get_logs %d-%d after retries: %w", from, to, lastErr)}
}

// Subscribe registers a live log subscription over a WebSocket upgrade of
// the same RPC URL. On any transport failure the returned channel is
// closed and the caller must fall back to polling (spec §4.C).
func (a *Adapter) Subscribe(ctx context.Context, wsURL string, address common.Address, topics [][]common.Hash) (<-chan types.Log, error) {
	wsClient, err := ethclient.DialContext(ctx, wsURL)
	if err != nil {
		return nil, &chainerr.RPCError{Transient: true, Err: fmt.Errorf("evm: ws dial: %w", err)}
	}

	out := make(chan types.Log, 64)
	sub, err := wsClient.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{address},
		Topics:    topics,
	}, out)
	if err != nil {
		wsClient.Close()
		close(out)
		return nil, &chainerr.RPCError{Transient: true, Err: fmt.Errorf("evm: subscribe: %w", err)}
	}

	go func() {
		defer wsClient.Close()
		defer close(out)
		for {
			select {
			case err := <-sub.Err():
				a.log.Warn("evm: subscription terminated, caller must fall back to polling", map[string]any{"chain": a.chain, "error": err})
				return
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			}
		}
	}()

	return out, nil
}
