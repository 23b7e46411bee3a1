package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func newDirectRecord(id string) *DirectRecord {
	return &DirectRecord{Header: Header{
		PaymentID:        id,
		BusinessID:       "biz_1",
		SettlementWallet: "0xabc",
		Kind:             KindDirect,
		Token:            "USDC",
		SettlementChain:  "polygon",
		Status:           StatusPending,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(time.Hour),
	}, ExpectedAmount: "100"}
}

func TestStore_CreateGet(t *testing.T) {
	s := newTestStore(t)
	r := newDirectRecord("pay_1")

	require.NoError(t, s.Create(r))

	got, err := s.Get("pay_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", got.Head().PaymentID)
	assert.Equal(t, StatusPending, got.Head().Status)
}

func TestStore_CreateConflict(t *testing.T) {
	s := newTestStore(t)
	r := newDirectRecord("pay_1")
	require.NoError(t, s.Create(r))

	err := s.Create(newDirectRecord("pay_1"))
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindConflict, serr.Kind)
}

func TestStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing")
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNotFound, serr.Kind)
}

func TestStore_UpdateTransitionsAndArchives(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(newDirectRecord("pay_1")))

	require.NoError(t, s.Update("pay_1", func(r Record) error {
		return Transition(r, StatusConfirming)
	}))

	got, err := s.Get("pay_1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirming, got.Head().Status)

	require.NoError(t, s.Update("pay_1", func(r Record) error {
		return Transition(r, StatusConfirmed)
	}))

	list, err := s.List(Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusConfirmed, list[0].Head().Status)
	assert.Len(t, list[0].Head().AuditTrail, 0, "audit trail is in-memory only, not reloaded from disk")
}

func TestStore_UpdateRejectsIllegalTransition(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(newDirectRecord("pay_1")))

	err := s.Update("pay_1", func(r Record) error {
		return Transition(r, StatusConfirmed)
	})
	require.Error(t, err)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
}

func TestStore_ListFiltersByBusinessAndStatus(t *testing.T) {
	s := newTestStore(t)
	a := newDirectRecord("pay_a")
	a.BusinessID = "biz_a"
	b := newDirectRecord("pay_b")
	b.BusinessID = "biz_b"
	require.NoError(t, s.Create(a))
	require.NoError(t, s.Create(b))

	list, err := s.List(Filter{BusinessID: "biz_a"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pay_a", list[0].Head().PaymentID)
}

func TestNotifications_EnqueueDrain(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnqueueNotification(Notification{
		Type:      NotificationDirectConfirmed,
		PaymentID: "pay_1",
	}))

	drained, err := s.DrainNotifications()
	require.NoError(t, err)
	require.Len(t, drained, 1)
	assert.Equal(t, "pay_1", drained[0].PaymentID)

	// second drain finds nothing: consumed once.
	drained2, err := s.DrainNotifications()
	require.NoError(t, err)
	assert.Empty(t, drained2)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(KindDirect, StatusPending, StatusConfirming))
	assert.False(t, CanTransition(KindDirect, StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(KindBridge, StatusWaitingDeposit, StatusDepositReceived))
	assert.False(t, CanTransition(KindBridge, StatusWaitingDeposit, StatusBridging))
}
