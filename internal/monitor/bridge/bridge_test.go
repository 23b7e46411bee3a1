package bridge

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajweb3/railclaw/internal/chain/evm"
	"github.com/rajweb3/railclaw/internal/record"
)

func TestScaleDeadline(t *testing.T) {
	total := 7200 * time.Second
	assert.Equal(t, 1440*time.Second, scaleDeadline(total, 0.20))
	assert.Equal(t, 720*time.Second, scaleDeadline(total, 0.10))
	assert.Equal(t, total, scaleDeadline(total, 0))
}

func TestSeedIndexLE(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, seedIndexLE(0))
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, seedIndexLE(1))
}

func TestHexAddressToBytes20_RoundTrips(t *testing.T) {
	addr := "0x1111111111111111111111111111111111111111"
	out, err := hexAddressToBytes20(addr)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(addr).Bytes(), out[:])
}

func TestHexAddressToBytes20_RejectsWrongLength(t *testing.T) {
	_, err := hexAddressToBytes20("0x1234")
	assert.Error(t, err)
}

func TestBuildDepositParams_IsDeterministic(t *testing.T) {
	rec := sampleBridgeRecord("pay_bridge_1")

	a, err := buildDepositParams(rec, 100_600_000)
	require.NoError(t, err)
	b, err := buildDepositParams(rec, 100_600_000)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := buildDepositParams(rec, 100_700_000)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func addressToTopic(a common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], a.Bytes())
	return h
}

func packFilledRelayData(t *testing.T, outputAmount *big.Int) []byte {
	t.Helper()
	data := make([]byte, 0, 32*11)
	pad32 := func(b []byte) []byte {
		out := make([]byte, 32)
		copy(out[32-len(b):], b)
		return out
	}
	data = append(data, make([]byte, 32)...) // inputToken
	data = append(data, pad32(common.HexToAddress("0x5555555555555555555555555555555555555555").Bytes())...) // outputToken
	data = append(data, make([]byte, 32)...) // inputAmount
	data = append(data, pad32(outputAmount.Bytes())...)
	data = append(data, make([]byte, 32)...) // repaymentChainId
	data = append(data, make([]byte, 32)...) // fillDeadline
	data = append(data, make([]byte, 32)...) // exclusivityDeadline
	data = append(data, make([]byte, 32)...) // exclusiveRelayer
	data = append(data, make([]byte, 32)...) // depositor
	data = append(data, pad32(common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes())...) // recipient
	data = append(data, make([]byte, 32)...) // messageHash
	return data
}

func TestCandidateFill_MatchesRecipientTokenAndBand(t *testing.T) {
	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	outputToken := common.HexToAddress("0x5555555555555555555555555555555555555555")
	rawOutput := big.NewInt(100_000_000)

	data := packFilledRelayData(t, big.NewInt(100_000_000))
	lg := types.Log{
		Topics: []common.Hash{
			evm.FilledRelayTopic,
			common.BigToHash(big.NewInt(99999)),
			common.BigToHash(big.NewInt(1)),
			addressToTopic(common.HexToAddress("0x3333333333333333333333333333333333333333")),
		},
		Data: data,
	}

	found := candidateFill(lg, recipient, outputToken, rawOutput)
	require.NotNil(t, found)
	assert.Equal(t, recipient, found.Recipient)
}

func TestCandidateFill_RejectsOutOfBandAmount(t *testing.T) {
	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	outputToken := common.HexToAddress("0x5555555555555555555555555555555555555555")
	rawOutput := big.NewInt(100_000_000)

	data := packFilledRelayData(t, big.NewInt(50_000_000))
	lg := types.Log{
		Topics: []common.Hash{
			evm.FilledRelayTopic,
			common.BigToHash(big.NewInt(99999)),
			common.BigToHash(big.NewInt(1)),
			addressToTopic(common.HexToAddress("0x3333333333333333333333333333333333333333")),
		},
		Data: data,
	}

	assert.Nil(t, candidateFill(lg, recipient, outputToken, rawOutput))
}

func sampleBridgeRecord(paymentID string) *record.BridgeRecord {
	return &record.BridgeRecord{
		Header: record.Header{
			PaymentID:        paymentID,
			BusinessID:       "biz_1",
			SettlementWallet: "0x1111111111111111111111111111111111111111",
			Kind:             record.KindBridge,
			Token:            "USDC",
			SettlementChain:  "arbitrum",
			Status:           record.StatusPending,
			CreatedAt:        time.Now(),
			ExpiresAt:        time.Now().Add(2 * time.Hour),
		},
		SourceChain:          "solana",
		InputTokenMint:       "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		OutputTokenAddress:   "0x5555555555555555555555555555555555555555",
		RawInputAmount:       "100600000",
		RawOutputAmount:      "100000000",
		RelayFee:             "600000",
		TempWalletPubkey:     "11111111111111111111111111111111",
		DepositAddress:       "11111111111111111111111111111111",
		TempPrivateKeySealed: "",
		DestinationChainID:   42161,
		QuoteTimestamp:       1700000000,
		FillDeadline:         1700021600,
	}
}

func newBridgeTestMonitor(t *testing.T, rec *record.BridgeRecord) (*Monitor, *record.Store) {
	t.Helper()
	store, err := record.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Create(rec))

	mon := NewMonitor(rec.PaymentID, Deps{Store: store}, false)
	return mon, store
}

func TestMonitor_StageTransitions_EndToEnd(t *testing.T) {
	rec := sampleBridgeRecord("pay_bridge_2")
	mon, store := newBridgeTestMonitor(t, rec)

	require.NoError(t, mon.toWaitingDeposit())
	require.NoError(t, mon.toDepositReceived())
	require.NoError(t, mon.toBridging("sol_sig_abc"))

	got, err := store.Get("pay_bridge_2")
	require.NoError(t, err)
	b := got.(*record.BridgeRecord)
	assert.Equal(t, record.StatusBridging, b.Status)
	assert.Equal(t, "sol_sig_abc", b.DepositTxSig)

	require.NoError(t, mon.confirm("0xdeadbeef", 5))
	got, err = store.Get("pay_bridge_2")
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirmed, got.Head().Status)

	notifications, err := store.DrainNotifications()
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, record.NotificationBridgeConfirmed, notifications[0].Type)
}

func TestMonitor_Expire_FromWaitingDeposit(t *testing.T) {
	rec := sampleBridgeRecord("pay_bridge_3")
	mon, store := newBridgeTestMonitor(t, rec)

	require.NoError(t, mon.toWaitingDeposit())
	require.NoError(t, mon.expire())

	got, err := store.Get("pay_bridge_3")
	require.NoError(t, err)
	assert.Equal(t, record.StatusExpired, got.Head().Status)
}

func TestMonitor_Fail_FromDepositReceived(t *testing.T) {
	rec := sampleBridgeRecord("pay_bridge_4")
	mon, store := newBridgeTestMonitor(t, rec)

	require.NoError(t, mon.toWaitingDeposit())
	require.NoError(t, mon.toDepositReceived())

	cause := mon.fail(assertionError("solana deposit instruction rejected"))
	assert.Error(t, cause)

	got, err := store.Get("pay_bridge_4")
	require.NoError(t, err)
	assert.Equal(t, record.StatusError, got.Head().Status)
}

type assertionError string

func (e assertionError) Error() string { return string(e) }
