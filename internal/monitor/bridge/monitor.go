// Package bridge implements the Bridge Pipeline Monitor (spec §4.D.2): a
// three-stage state machine that watches a one-time Solana deposit, submits
// an Across-protocol deposit with a PDA-delegated approval, then watches the
// destination EVM SpokePool for the matching fill. No teacher repo runs a
// cross-chain multi-stage watcher like this one — the stage/deadline-share
// structure is built directly from spec.md §4.D.2 on top of the chain
// adapters' own RPC and retry discipline.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	ag_solana "github.com/gagliardetto/solana-go"

	"github.com/rajweb3/railclaw/internal/chain/evm"
	solanachain "github.com/rajweb3/railclaw/internal/chain/solana"
	"github.com/rajweb3/railclaw/internal/chainerr"
	"github.com/rajweb3/railclaw/internal/logger"
	"github.com/rajweb3/railclaw/internal/metrics"
	"github.com/rajweb3/railclaw/internal/record"
	"github.com/rajweb3/railclaw/internal/walletseal"
)

// Deps is everything the monitor needs beyond the record it watches.
type Deps struct {
	Solana      *solanachain.Adapter
	EVM         map[string]*evm.Adapter      // destination chain tag -> adapter
	WSEndpoints map[string]string            // destination chain tag -> WebSocket RPC URL, optional

	Store   *record.Store
	Log     logger.Logger
	Metrics metrics.Recorder

	WalletKey          *[walletseal.KeySize]byte
	DispenserKey       *ag_solana.PrivateKey // nil disables dispenser funding
	FundAmountLamports uint64

	SpokePoolProgramSolana ag_solana.PublicKey // Across SpokePool program on Solana
	SolanaAcrossChainID    uint64              // Across-internal chain id for Solana (FilledRelay's originChainId)

	PollInterval time.Duration
	Deadline     time.Duration

	Stage1DeadlinePct float64
	Stage2DeadlinePct float64

	// ResumeStage3LookbackBlocks widens stage 3's historical sweep when
	// resumeStage3 is set, per spec §4.D.2's resumability note.
	ResumeStage3LookbackBlocks uint64
}

type Monitor struct {
	paymentID    string
	deps         Deps
	log          logger.Logger
	resumeStage3 bool
}

// NewMonitor constructs a bridge monitor. resumeStage3 skips stages 1 and 2
// entirely (spec §4.D.2's resumability note) — used when the process
// restarts with a record already at status=bridging, never to repeat a
// deposit or deposit instruction submission.
func NewMonitor(paymentID string, deps Deps, resumeStage3 bool) *Monitor {
	log := deps.Log
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Monitor{
		paymentID:    paymentID,
		deps:         deps,
		resumeStage3: resumeStage3,
		log:          log.With(map[string]any{"payment_id": paymentID, "monitor": "bridge"}),
	}
}

// Run executes the full pending -> waiting_deposit -> deposit_received ->
// bridging -> (confirmed|expired|error) lifecycle.
func (m *Monitor) Run(ctx context.Context) (record.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, m.deps.Deadline)
	defer cancel()

	rec, err := m.loadBridge()
	if err != nil {
		return record.StatusError, m.fail(err)
	}

	if m.resumeStage3 {
		if rec.Status != record.StatusBridging {
			return record.StatusError, m.fail(fmt.Errorf("bridge monitor: resume_stage3 requires status=bridging, got %q", rec.Status))
		}
	} else {
		if rec.Status == record.StatusPending {
			if err := m.toWaitingDeposit(); err != nil {
				return record.StatusError, m.fail(err)
			}
		}

		stage1Deadline := scaleDeadline(m.deps.Deadline, m.deps.Stage1DeadlinePct)
		stage1Ctx, cancel1 := context.WithTimeout(ctx, stage1Deadline)
		actualInput, err := m.stage1DepositWatch(stage1Ctx, rec)
		cancel1()
		if err != nil {
			if isDeadlineExceeded(err) {
				return record.StatusExpired, m.expire()
			}
			return record.StatusError, m.fail(err)
		}
		if err := m.toDepositReceived(); err != nil {
			return record.StatusError, m.fail(err)
		}

		stage2Deadline := scaleDeadline(m.deps.Deadline, m.deps.Stage2DeadlinePct)
		stage2Ctx, cancel2 := context.WithTimeout(ctx, stage2Deadline)
		depositSig, err := m.stage2BridgeDeposit(stage2Ctx, rec, actualInput)
		cancel2()
		if err != nil {
			return record.StatusError, m.fail(err)
		}
		if err := m.toBridging(depositSig); err != nil {
			return record.StatusError, m.fail(err)
		}

		rec, err = m.loadBridge()
		if err != nil {
			return record.StatusError, m.fail(err)
		}
	}

	lookback := uint64(300)
	if m.resumeStage3 {
		lookback = m.deps.ResumeStage3LookbackBlocks
		if lookback == 0 {
			lookback = 2000
		}
	}

	match, err := m.stage3FillWatch(ctx, rec, lookback)
	if err != nil {
		if isDeadlineExceeded(err) {
			return record.StatusExpired, m.expire()
		}
		return record.StatusError, m.fail(err)
	}
	if match == nil {
		return record.StatusExpired, m.expire()
	}

	if err := m.confirm(match.txHash, match.confirmations); err != nil {
		return record.StatusError, m.fail(err)
	}

	if m.deps.Metrics != nil {
		m.deps.Metrics.IncCounter("payment_confirmed", map[string]string{"kind": "bridge", "chain": rec.SettlementChain})
	}

	return record.StatusConfirmed, nil
}

func scaleDeadline(total time.Duration, pct float64) time.Duration {
	if pct <= 0 {
		return total
	}
	return time.Duration(float64(total) * pct)
}

func (m *Monitor) loadBridge() (*record.BridgeRecord, error) {
	r, err := m.deps.Store.Get(m.paymentID)
	if err != nil {
		return nil, err
	}
	b, ok := r.(*record.BridgeRecord)
	if !ok {
		return nil, fmt.Errorf("bridge monitor: record %s is not a bridge record", m.paymentID)
	}
	return b, nil
}

func (m *Monitor) toWaitingDeposit() error {
	return m.deps.Store.Update(m.paymentID, func(r record.Record) error {
		return record.Transition(r, record.StatusWaitingDeposit)
	})
}

func (m *Monitor) toDepositReceived() error {
	return m.deps.Store.Update(m.paymentID, func(r record.Record) error {
		return record.Transition(r, record.StatusDepositReceived)
	})
}

func (m *Monitor) toBridging(depositSig string) error {
	return m.deps.Store.Update(m.paymentID, func(r record.Record) error {
		if err := record.Transition(r, record.StatusBridging); err != nil {
			return err
		}
		b := r.(*record.BridgeRecord)
		b.DepositTxSig = depositSig
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
		Type:            record.NotificationBridgeConfirmed,
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
	m.log.Error("bridge monitor failed", map[string]any{"error": cause})
	if updateErr := m.deps.Store.Update(m.paymentID, func(r record.Record) error {
		return record.Transition(r, record.StatusError)
	}); updateErr != nil {
		return updateErr
	}
	return cause
}

func isTransient(err error) bool {
	var rpcErr *chainerr.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Transient
}

func isDeadlineExceeded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
