// Package direct implements the Direct EVM Monitor state machine (spec
// §4.D.1): watch a single settlement wallet on one EVM chain for a
// transfer matching an expected amount, then wait out required
// confirmations. No teacher repo runs a long-lived watcher loop like this
// one — the polling/deadline shape is built from Go's context.Context
// idiom plus the chain adapter's own retry discipline.
package direct

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/rajweb3/railclaw/internal/chain/evm"
	"github.com/rajweb3/railclaw/internal/chainerr"
	"github.com/rajweb3/railclaw/internal/logger"
	"github.com/rajweb3/railclaw/internal/metrics"
	"github.com/rajweb3/railclaw/internal/record"
)

// Deps is everything the monitor needs beyond the record it watches,
// injected so tests can substitute fakes for the chain adapters and
// store.
type Deps struct {
	EVM            map[string]*evm.Adapter      // chain tag -> adapter
	WSEndpoints    map[string]string            // chain tag -> WebSocket RPC URL, optional
	TokenAddresses map[string]map[string]string // chain -> symbol -> address
	SpokePools     map[common.Address]bool      // known SpokePool addresses, excluded as senders
	Store          *record.Store
	Log            logger.Logger
	Metrics        metrics.Recorder

	RequiredConfirmations int
	PollInterval          time.Duration
	Deadline              time.Duration
}

type Monitor struct {
	paymentID string
	deps      Deps
	log       logger.Logger
}

func NewMonitor(paymentID string, deps Deps) *Monitor {
	log := deps.Log
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Monitor{
		paymentID: paymentID,
		deps:      deps,
		log:       log.With(map[string]any{"payment_id": paymentID, "monitor": "direct"}),
	}
}

// match is the located candidate transfer, pending confirmation.
type match struct {
	txHash common.Hash
	block  uint64
}

// Run executes the full pending -> confirming -> (confirmed|expired|error)
// lifecycle, mutating the record in the store as it progresses.
func (m *Monitor) Run(ctx context.Context) (record.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, m.deps.Deadline)
	defer cancel()

	rec, err := m.loadDirect()
	if err != nil {
		return record.StatusError, m.fail(err)
	}

	adapter, ok := m.deps.EVM[rec.SettlementChain]
	if !ok {
		return record.StatusError, m.fail(fmt.Errorf("direct monitor: no EVM adapter configured for chain %q", rec.SettlementChain))
	}

	expectedAmount, err := decimal.NewFromString(rec.ExpectedAmount)
	if err != nil {
		return record.StatusError, m.fail(fmt.Errorf("direct monitor: invalid expected_amount %q: %w", rec.ExpectedAmount, err))
	}

	wallet := common.HexToAddress(rec.SettlementWallet)

	var found *match
	if IsNativeSymbol(rec.Token) {
		found, err = m.watchNative(ctx, adapter, wallet, expectedAmount, rec.CreatedAt)
	} else {
		tokenAddr, ok := m.deps.TokenAddresses[rec.SettlementChain][rec.Token]
		if !ok {
			return record.StatusError, m.fail(fmt.Errorf("direct monitor: unknown token %q on chain %q", rec.Token, rec.SettlementChain))
		}
		decimals := adapter.Decimals(ctx, common.HexToAddress(tokenAddr))
		expectedRaw := ParseUnits(expectedAmount, decimals)
		found, err = m.watchERC20(ctx, adapter, common.HexToAddress(tokenAddr), wallet, expectedRaw, rec.CreatedAt)
	}

	if err != nil {
		if isDeadlineExceeded(err) {
			return record.StatusExpired, m.expire()
		}
		return record.StatusError, m.fail(err)
	}
	if found == nil {
		return record.StatusExpired, m.expire()
	}

	if err := m.toConfirming(found.txHash.Hex()); err != nil {
		return record.StatusError, m.fail(err)
	}

	confirmed, err := m.waitConfirmations(ctx, adapter, found.block)
	if err != nil {
		if isDeadlineExceeded(err) {
			return record.StatusExpired, m.expire()
		}
		return record.StatusError, m.fail(err)
	}

	if err := m.confirm(found.txHash.Hex(), confirmed); err != nil {
		return record.StatusError, m.fail(err)
	}

	if m.deps.Metrics != nil {
		m.deps.Metrics.IncCounter("payment_confirmed", map[string]string{"kind": "direct", "chain": rec.SettlementChain})
	}

	return record.StatusConfirmed, nil
}

func (m *Monitor) loadDirect() (*record.DirectRecord, error) {
	r, err := m.deps.Store.Get(m.paymentID)
	if err != nil {
		return nil, err
	}
	d, ok := r.(*record.DirectRecord)
	if !ok {
		return nil, fmt.Errorf("direct monitor: record %s is not a direct record", m.paymentID)
	}
	return d, nil
}

func (m *Monitor) toConfirming(txHash string) error {
	return m.deps.Store.Update(m.paymentID, func(r record.Record) error {
		if err := record.Transition(r, record.StatusConfirming); err != nil {
			return err
		}
		r.Head().TxHash = txHash
		return nil
	})
}

func (m *Monitor) confirm(txHash string, confirmations int) error {
	err := m.deps.Store.Update(m.paymentID, func(r record.Record) error {
		if err := record.Transition(r, record.StatusConfirmed); err != nil {
			return err
		}
		h := r.Head()
		h.TxHash = txHash
		h.Confirmations = confirmations
		now := time.Now()
		h.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	r, err := m.deps.Store.Get(m.paymentID)
	if err != nil {
		return err
	}
	h := r.Head()
	return m.deps.Store.EnqueueNotification(record.Notification{
		Type:            record.NotificationDirectConfirmed,
		PaymentID:       h.PaymentID,
		BusinessID:      h.BusinessID,
		ChatID:          h.ChatID,
		Token:           h.Token,
		SettlementChain: h.SettlementChain,
		TxHash:          h.TxHash,
		Confirmations:   h.Confirmations,
		ConfirmedAt:     *h.ConfirmedAt,
	})
}

func (m *Monitor) expire() error {
	return m.deps.Store.Update(m.paymentID, func(r record.Record) error {
		if err := record.Transition(r, record.StatusExpired); err != nil {
			return err
		}
		now := time.Now()
		r.Head().ExpiredAt = &now
		return nil
	})
}

func (m *Monitor) fail(cause error) error {
	m.log.Error("direct monitor failed", map[string]any{"error": cause})
	if updateErr := m.deps.Store.Update(m.paymentID, func(r record.Record) error {
		return record.Transition(r, record.StatusError)
	}); updateErr != nil {
		return updateErr
	}
	return cause
}

func (m *Monitor) waitConfirmations(ctx context.Context, adapter *evm.Adapter, txBlock uint64) (int, error) {
	ticker := time.NewTicker(m.deps.PollInterval)
	defer ticker.Stop()

	required := m.deps.RequiredConfirmations
	if required <= 0 {
		required = 20
	}

	for {
		current, err := adapter.GetBlockNumber(ctx)
		if err == nil {
			confirmations := int(current-txBlock) + 1
			if confirmations >= required {
				return confirmations, nil
			}
		} else if !isTransient(err) {
			return 0, err
		} else {
			m.log.Warn("direct monitor: transient error polling block number, retrying", map[string]any{"error": err})
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTransient(err error) bool {
	var rpcErr *chainerr.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Transient
}

func isDeadlineExceeded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
