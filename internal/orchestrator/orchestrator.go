// Package orchestrator implements the policy-gated request router (spec
// §4.E): Handle(ctx, Request) parses a request, consults the Policy
// Store, creates a Payment Record, and launches the matching monitor.
// Grounded on the X402{verificationService, settlementService} facade in
// vitwit-x402-go/x402.go — a single entrypoint type composing the
// narrower stores/adapters behind it — generalized from x402's
// verify/settle pair into Railclaw's routing/create/read triad.
package orchestrator

import (
	"context"
	"fmt"

	ag_solana "github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"

	evmchain "github.com/rajweb3/railclaw/internal/chain/evm"
	solanachain "github.com/rajweb3/railclaw/internal/chain/solana"
	"github.com/rajweb3/railclaw/internal/config"
	"github.com/rajweb3/railclaw/internal/logger"
	"github.com/rajweb3/railclaw/internal/metrics"
	"github.com/rajweb3/railclaw/internal/monitor"
	"github.com/rajweb3/railclaw/internal/monitor/bridge"
	"github.com/rajweb3/railclaw/internal/monitor/direct"
	"github.com/rajweb3/railclaw/internal/policy"
	"github.com/rajweb3/railclaw/internal/record"
	"github.com/rajweb3/railclaw/internal/walletseal"
)

var validate = validator.New()

// Deps is everything Handle needs beyond the request itself.
type Deps struct {
	PolicyPath string
	Store      *record.Store
	Registry   *monitor.Registry
	Config     *config.Config

	// MonitorContext is the base context detached monitors run under. It
	// must outlive any single HTTP request — spec §5 requires a monitor to
	// keep running after the request that spawned it returns, so it is
	// never derived from a request's context.Context. Defaults to
	// context.Background() if nil.
	MonitorContext context.Context

	EVM    map[string]*evmchain.Adapter
	Solana *solanachain.Adapter

	WalletKey    *[walletseal.KeySize]byte
	DispenserKey *ag_solana.PrivateKey // nil disables dispenser funding in the bridge monitor

	Log     logger.Logger
	Metrics metrics.Recorder
}

type Orchestrator struct {
	deps Deps
	log  logger.Logger
}

func New(deps Deps) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = logger.NoopLogger{}
	}
	if deps.MonitorContext == nil {
		deps.MonitorContext = context.Background()
	}
	return &Orchestrator{deps: deps, log: log}
}

// Handle dispatches a request to its action handler. Rejections are
// returned as a Response rather than an error; a Go error is returned only
// for a request that fails struct validation or names an unknown action,
// and for infrastructure-level failures (policy file unreadable or
// invalid, bridge record construction, store I/O failure). ctx
// governs Handle's own work only; create_payment_link's detached monitor
// is deliberately launched under Deps.MonitorContext instead, since it
// must outlive the request ctx belongs to.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Response, error) {
	if err := validate.Struct(req); err != nil {
		return Response{}, fmt.Errorf("orchestrator: invalid request: %w", err)
	}

	switch req.Action {
	case ActionCreatePaymentLink:
		return o.createPaymentLink(req)
	case ActionCheckPayment:
		return o.checkPayment(req)
	case ActionListPayments:
		return o.listPayments(req)
	default:
		return Response{}, fmt.Errorf("orchestrator: unknown action %q", req.Action)
	}
}

// loadPolicy re-reads the policy document fresh — spec §3 invariant (iii)
// forbids any in-process cache surviving a request boundary.
func (o *Orchestrator) loadPolicy() (*policy.Policy, error) {
	return policy.Load(o.deps.PolicyPath)
}

// DrainNotifications is a direct passthrough to the record store's
// notification queue, used by the HTTP surface's GET /notifications
// endpoint (spec SPEC_FULL.md §6 expansion) — it bypasses Handle entirely
// since it is not one of spec §4.E's three actions.
func (o *Orchestrator) DrainNotifications() ([]record.Notification, error) {
	return o.deps.Store.DrainNotifications()
}

// launchMonitor always starts the monitor under Deps.MonitorContext, never
// under a per-request context — the monitor is a detached, long-running
// task that must keep running after the HTTP handler that created it has
// already written its response and returned.
func (o *Orchestrator) launchMonitor(rec record.Record) error {
	return o.launchMonitorResuming(rec, false)
}

// launchMonitorResuming is launchMonitor with control over whether a
// bridge record re-enters at stage 3 (resumeBridgeStage3) instead of
// restarting from stage 1, used by RecoverMonitors on startup.
func (o *Orchestrator) launchMonitorResuming(rec record.Record, resumeBridgeStage3 bool) error {
	ctx := o.deps.MonitorContext
	switch r := rec.(type) {
	case *record.DirectRecord:
		deps := direct.Deps{
			EVM:                   o.deps.EVM,
			WSEndpoints:           o.deps.Config.EVMWSEndpoints,
			TokenAddresses:        o.deps.Config.TokenAddresses,
			SpokePools:            spokePoolSet(o.deps.Config),
			Store:                 o.deps.Store,
			Log:                   o.deps.Log,
			Metrics:               o.deps.Metrics,
			RequiredConfirmations: o.deps.Config.RequiredConfirmations,
			PollInterval:          o.deps.Config.PollInterval,
			Deadline:              o.deps.Config.DirectTimeout,
		}
		mon := direct.NewMonitor(r.PaymentID, deps)
		return o.deps.Registry.Launch(ctx, r.PaymentID, mon.Run)
	case *record.BridgeRecord:
		deps := bridge.Deps{
			Solana:                     o.deps.Solana,
			EVM:                        o.deps.EVM,
			WSEndpoints:                o.deps.Config.EVMWSEndpoints,
			Store:                      o.deps.Store,
			Log:                        o.deps.Log,
			Metrics:                    o.deps.Metrics,
			WalletKey:                  o.deps.WalletKey,
			DispenserKey:               o.deps.DispenserKey,
			FundAmountLamports:         o.deps.Config.FundAmountLamports,
			PollInterval:               o.deps.Config.PollInterval,
			Deadline:                   o.deps.Config.BridgeTimeout,
			Stage1DeadlinePct:          o.deps.Config.BridgeStage1DeadlinePct,
			Stage2DeadlinePct:          o.deps.Config.BridgeStage2DeadlinePct,
			ResumeStage3LookbackBlocks: o.deps.Config.ResumeStage3LookbackDefault,
			SolanaAcrossChainID:        o.deps.Config.SolanaAcrossChainID,
		}
		if pk, err := solanaPublicKey(o.deps.Config.BridgeSpokePoolSolana); err == nil {
			deps.SpokePoolProgramSolana = pk
		}
		mon := bridge.NewMonitor(r.PaymentID, deps, resumeBridgeStage3)
		return o.deps.Registry.Launch(ctx, r.PaymentID, mon.Run)
	default:
		return fmt.Errorf("orchestrator: unknown record kind for payment %s", rec.Head().PaymentID)
	}
}

// RecoverMonitors re-launches a monitor for every non-terminal record left
// behind by a previous process (spec §5's resumability note, §8 invariant
// 7): bridge records at status=bridging resume at stage 3 rather than
// repeating the Solana deposit and bridge submission; everything else
// (direct records still pending/confirming, bridge records still
// waiting_deposit/deposit_received) is relaunched the normal way, since
// those stages have no side effect that repeating would duplicate.
// Intended to be called once at startup, before the HTTP server accepts
// requests.
func (o *Orchestrator) RecoverMonitors() error {
	recs, err := o.deps.Store.List(record.Filter{})
	if err != nil {
		return fmt.Errorf("orchestrator: list records for recovery: %w", err)
	}

	for _, rec := range recs {
		status := rec.Head().Status
		if record.IsTerminal(status) {
			continue
		}
		resume := status == record.StatusBridging
		if err := o.launchMonitorResuming(rec, resume); err != nil {
			o.log.Error("orchestrator: failed to resume monitor", map[string]any{
				"payment_id": rec.Head().PaymentID, "status": status, "error": err,
			})
		}
	}
	return nil
}
