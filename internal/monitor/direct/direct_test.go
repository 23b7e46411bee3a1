package direct

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajweb3/railclaw/internal/chain/evm"
	"github.com/rajweb3/railclaw/internal/record"
)

func TestInBand(t *testing.T) {
	expected := big.NewInt(100_000_000)

	assert.True(t, InBand(expected, big.NewInt(99_000_000)))  // exactly 0.99x
	assert.True(t, InBand(expected, big.NewInt(110_000_000))) // exactly 1.10x
	assert.True(t, InBand(expected, big.NewInt(100_000_000))) // exact match
	assert.False(t, InBand(expected, big.NewInt(98_999_999))) // just under band
	assert.False(t, InBand(expected, big.NewInt(110_000_001))) // just over band
	assert.False(t, InBand(expected, big.NewInt(-1)))
}

func TestParseUnits(t *testing.T) {
	amount := decimal.RequireFromString("100.5")
	raw := ParseUnits(amount, 6)
	assert.Equal(t, big.NewInt(100_500_000), raw)
}

func TestIsNativeSymbol(t *testing.T) {
	assert.True(t, IsNativeSymbol("ETH"))
	assert.True(t, IsNativeSymbol("SOL"))
	assert.False(t, IsNativeSymbol("USDC"))
}

func TestEstimateLookbackBlocks_CapsAtChainClass(t *testing.T) {
	assert.Equal(t, uint64(150), EstimateLookbackBlocks("polygon", 100_000))
	assert.Equal(t, uint64(1500), EstimateLookbackBlocks("arbitrum", 100_000))
}

func TestEstimateLookbackBlocks_BelowCapScalesWithElapsed(t *testing.T) {
	// 60 seconds elapsed on a 2s-block chain: ~30 blocks, under the 150 cap.
	assert.Equal(t, uint64(30), EstimateLookbackBlocks("polygon", 60))
}

func newDirectRecordFor(paymentID string) *record.DirectRecord {
	return &record.DirectRecord{
		Header: record.Header{
			PaymentID:        paymentID,
			BusinessID:       "biz_1",
			SettlementWallet: "0x1111111111111111111111111111111111111111",
			Kind:             record.KindDirect,
			Token:            "USDC",
			SettlementChain:  "polygon",
			Status:           record.StatusPending,
			CreatedAt:        time.Now(),
			ExpiresAt:        time.Now().Add(time.Hour),
		},
		ExpectedAmount: "100",
	}
}

func newTestMonitor(t *testing.T, rec *record.DirectRecord) (*Monitor, *record.Store) {
	t.Helper()
	store, err := record.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Create(rec))

	mon := NewMonitor(rec.PaymentID, Deps{Store: store})
	return mon, store
}

func TestMonitor_ToConfirmingThenConfirm_EnqueuesNotification(t *testing.T) {
	rec := newDirectRecordFor("pay_1")
	mon, store := newTestMonitor(t, rec)

	require.NoError(t, mon.toConfirming("0xdeadbeef"))
	got, err := store.Get("pay_1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirming, got.Head().Status)

	require.NoError(t, mon.confirm("0xdeadbeef", 20))

	got, err = store.Get("pay_1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirmed, got.Head().Status)
	assert.Equal(t, 20, got.Head().Confirmations)

	notifications, err := store.DrainNotifications()
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, record.NotificationDirectConfirmed, notifications[0].Type)
	assert.Equal(t, "pay_1", notifications[0].PaymentID)
}

func TestMonitor_Expire_TransitionsFromConfirming(t *testing.T) {
	rec := newDirectRecordFor("pay_2")
	mon, store := newTestMonitor(t, rec)

	require.NoError(t, mon.toConfirming("0xabc"))
	require.NoError(t, mon.expire())

	got, err := store.Get("pay_2")
	require.NoError(t, err)
	assert.Equal(t, record.StatusExpired, got.Head().Status)
	assert.NotNil(t, got.Head().ExpiredAt)
}

func TestMonitor_Fail_TransitionsToError(t *testing.T) {
	rec := newDirectRecordFor("pay_3")
	mon, store := newTestMonitor(t, rec)

	cause := mon.fail(assertionError("rpc config missing"))
	assert.Error(t, cause)

	got, err := store.Get("pay_3")
	require.NoError(t, err)
	assert.Equal(t, record.StatusError, got.Head().Status)
}

type assertionError string

func (e assertionError) Error() string { return string(e) }

func addressToTopic(a common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], a.Bytes())
	return h
}

func TestCandidateFromLogs_ExcludesSpokePool(t *testing.T) {
	wallet := common.HexToAddress("0x2222222222222222222222222222222222222222")
	spoke := common.HexToAddress("0x3333333333333333333333333333333333333333")
	other := common.HexToAddress("0x4444444444444444444444444444444444444444")

	value := big.NewInt(100_000_000)
	data := make([]byte, 32)
	value.FillBytes(data)

	spokeLog := types.Log{
		Topics: []common.Hash{evm.ERC20TransferTopic, addressToTopic(spoke), addressToTopic(wallet)},
		Data:   data,
	}
	okLog := types.Log{
		Topics: []common.Hash{evm.ERC20TransferTopic, addressToTopic(other), addressToTopic(wallet)},
		Data:   data,
	}

	mon := &Monitor{deps: Deps{SpokePools: map[common.Address]bool{spoke: true}}}

	assert.Nil(t, mon.candidateFromLogs([]types.Log{spokeLog}, value))
	found := mon.candidateFromLogs([]types.Log{okLog}, value)
	require.NotNil(t, found)
}
