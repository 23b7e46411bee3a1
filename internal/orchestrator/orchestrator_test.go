package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evmchain "github.com/rajweb3/railclaw/internal/chain/evm"
	"github.com/rajweb3/railclaw/internal/config"
	"github.com/rajweb3/railclaw/internal/metrics"
	"github.com/rajweb3/railclaw/internal/monitor"
	"github.com/rajweb3/railclaw/internal/record"
	"github.com/rajweb3/railclaw/internal/walletseal"
)

const activePolicyYAML = `
version: 1
status: active
updated_at: "2026-01-01T00:00:00Z"
business:
  id: biz_1
  name: Test Business
  wallet: "0x1111111111111111111111111111111111111111"
  onboarded: true
specification:
  allowed_chains: ["polygon", "arbitrum"]
  allowed_tokens: ["USDC"]
restrictions:
  max_single_payment: 1000
operational:
  emi_enabled: true
  emi_premium_percent: 5
cross_chain:
  user_payable_chains: ["solana"]
  bridge:
    enabled: true
    provider: across
    settlement_chain: polygon
`

const pendingPolicyYAML = `
version: 1
status: pending_onboarding
updated_at: "2026-01-01T00:00:00Z"
business:
  id: biz_2
  name: Pending Business
  wallet: "0x2222222222222222222222222222222222222222"
  onboarded: false
specification:
  allowed_chains: []
  allowed_tokens: []
`

func newTestOrchestrator(t *testing.T, policyYAML string) *Orchestrator {
	t.Helper()

	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(policyYAML), 0o644))

	store, err := record.NewStore(filepath.Join(dir, "data"))
	require.NoError(t, err)

	var rawKey [walletseal.KeySize]byte
	_, err = rand.Read(rawKey[:])
	require.NoError(t, err)
	walletKey, err := walletseal.Key(hex.EncodeToString(rawKey[:]))
	require.NoError(t, err)

	cfg := &config.Config{
		TokenAddresses: map[string]map[string]string{
			"solana":   {"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
			"polygon":  {"USDC": "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"},
			"arbitrum": {"USDC": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"},
		},
		BridgeSpokePools:     map[string]string{"polygon": "0xSpokePoolPolygon"},
		BridgeAcrossChainIDs: map[string]uint64{"polygon": 137},
		BridgeRelayFeePct:    0.003,
		BridgeMinRelayFeeBuf: "100000",
		BaseURL:              "https://pay.example.com/",
		DefaultExpiryHours:   2,
	}

	return New(Deps{
		PolicyPath: policyPath,
		Store:      store,
		Registry:   monitor.NewRegistry(nil),
		Config:     cfg,
		EVM:        map[string]*evmchain.Adapter{},
		WalletKey:  walletKey,
		Metrics:    metrics.NoopRecorder{},
	})
}

func TestCreatePaymentLink_RejectsWhenPolicyNotReady(t *testing.T) {
	o := newTestOrchestrator(t, pendingPolicyYAML)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "100",
		Token:      "USDC",
		Chain:      "polygon",
		BusinessID: "biz_2",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, "not_ready", resp.Violation)
}

func TestCreatePaymentLink_RejectsUnknownChain(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "100",
		Token:      "USDC",
		Chain:      "avalanche",
		BusinessID: "biz_1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, ViolationChain, resp.Violation)
}

func TestCreatePaymentLink_RejectsUnknownToken(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "100",
		Token:      "DOGE",
		Chain:      "polygon",
		BusinessID: "biz_1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, ViolationToken, resp.Violation)
}

func TestCreatePaymentLink_RejectsAmountOverMax(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "5000",
		Token:      "USDC",
		Chain:      "polygon",
		BusinessID: "biz_1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, ViolationAmount, resp.Violation)
}

func TestCreatePaymentLink_RejectsEMIWhenDisabled(t *testing.T) {
	const noEMIPolicy = `
version: 1
status: active
updated_at: "2026-01-01T00:00:00Z"
business:
  id: biz_1
  name: Test Business
  wallet: "0x1111111111111111111111111111111111111111"
  onboarded: true
specification:
  allowed_chains: ["polygon"]
  allowed_tokens: ["USDC"]
operational:
  emi_enabled: false
`
	o := newTestOrchestrator(t, noEMIPolicy)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "100",
		Token:      "USDC",
		Chain:      "polygon",
		BusinessID: "biz_1",
		EMI:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, ViolationEMI, resp.Violation)
}

func TestCreatePaymentLink_DirectSucceeds(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "100",
		Token:      "USDC",
		Chain:      "polygon",
		BusinessID: "biz_1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, resp.Status)
	assert.NotEmpty(t, resp.PaymentID)
	assert.Contains(t, resp.PaymentLinkURL, resp.PaymentID)
}

func TestCreatePaymentLink_BridgeRoutesOverDirect(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "100",
		Token:      "USDC",
		Chain:      "solana",
		BusinessID: "biz_1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusBridgePayment, resp.Status)
	require.NotNil(t, resp.BridgeInstructions)
	assert.NotEmpty(t, resp.BridgeInstructions.DepositAddress)
	assert.Equal(t, "100.00", resp.BridgeInstructions.BusinessReceives)
	assert.Equal(t, "polygon", resp.BridgeInstructions.SettlementChain)
}

func TestCreatePaymentLink_EMIPremiumAppliedBeforeLimitCheck(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	// max_single_payment is 1000; 960 * 1.05 = 1008, over the limit only
	// once the EMI premium is added.
	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "960",
		Token:      "USDC",
		Chain:      "polygon",
		BusinessID: "biz_1",
		EMI:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, ViolationAmount, resp.Violation)
}

func TestCheckPayment_NotFound(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCheckPayment,
		PaymentID:  "pay_does_not_exist",
		BusinessID: "biz_1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, "not_found", resp.Violation)
}

func TestCheckPayment_FindsCreatedRecord(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	created, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "50",
		Token:      "USDC",
		Chain:      "polygon",
		BusinessID: "biz_1",
	})
	require.NoError(t, err)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionCheckPayment,
		PaymentID:  created.PaymentID,
		BusinessID: "biz_1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Record)
	assert.Equal(t, created.PaymentID, resp.Record.Head().PaymentID)
}

func TestListPayments_FiltersByBusiness(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	_, err := o.Handle(context.Background(), Request{
		Action:     ActionCreatePaymentLink,
		Amount:     "10",
		Token:      "USDC",
		Chain:      "polygon",
		BusinessID: "biz_1",
	})
	require.NoError(t, err)

	resp, err := o.Handle(context.Background(), Request{
		Action:     ActionListPayments,
		BusinessID: "biz_1",
		ListFilter: record.Filter{BusinessID: "biz_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Len(t, resp.Records, 1)
}

func TestRecoverMonitors_ResumesBridgingRecordAtStage3(t *testing.T) {
	o := newTestOrchestrator(t, activePolicyYAML)

	rec := &record.BridgeRecord{
		Header: record.Header{
			PaymentID:       "pay_resume_test",
			BusinessID:      "biz_1",
			Kind:            record.KindBridge,
			Token:           "USDC",
			SettlementChain: "polygon",
			Status:          record.StatusBridging,
			CreatedAt:       time.Now(),
			ExpiresAt:       time.Now().Add(time.Hour),
		},
		RawOutputAmount: "100000000",
	}
	require.NoError(t, o.deps.Store.Create(rec))

	require.NoError(t, o.RecoverMonitors())

	// The test orchestrator has no EVM adapter for "polygon", so the
	// resumed stage-3 watch fails immediately instead of hanging — this
	// only checks that RecoverMonitors actually launched a monitor for
	// the bridging record rather than skipping it.
	require.Eventually(t, func() bool {
		got, err := o.deps.Store.Get("pay_resume_test")
		return err == nil && got.Head().Status == record.StatusError
	}, time.Second, 10*time.Millisecond)
}
