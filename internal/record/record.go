// Package record implements the Payment Record Store: content-addressed
// per-payment JSON files on a shared filesystem, plus a single-producer/
// single-consumer notification queue. Records are a tagged variant
// (Design Note 2): DirectRecord and BridgeRecord share a Header and are
// distinguished by Header.Kind.
package record

import "time"

type Kind string

const (
	KindDirect Kind = "direct"
	KindBridge Kind = "bridge"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusWaitingDeposit  Status = "waiting_deposit"
	StatusDepositReceived Status = "deposit_received"
	StatusBridging        Status = "bridging"
	StatusConfirming      Status = "confirming"
	StatusConfirmed       Status = "confirmed"
	StatusExpired         Status = "expired"
	StatusError           Status = "error"
)

// allowedTransitions enumerates the state machine edges from spec §4.D.
// Update rejects any transition not listed here for the record's Kind,
// which is what makes "record update is a monoid over status transitions"
// (spec §8) a checkable property rather than a convention.
var allowedTransitions = map[Kind]map[Status][]Status{
	KindDirect: {
		StatusPending:    {StatusConfirming, StatusExpired, StatusError},
		StatusConfirming: {StatusConfirmed, StatusExpired, StatusError},
	},
	KindBridge: {
		StatusPending:         {StatusWaitingDeposit, StatusError},
		StatusWaitingDeposit:  {StatusDepositReceived, StatusExpired, StatusError},
		StatusDepositReceived: {StatusBridging, StatusError},
		StatusBridging:        {StatusConfirmed, StatusExpired, StatusError},
	},
}

// CanTransition reports whether moving a record of the given kind from
// `from` to `to` is a legal edge of the state machine.
func CanTransition(kind Kind, from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range allowedTransitions[kind][from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusConfirmed || s == StatusExpired || s == StatusError
}

// Header carries the fields common to every payment record.
type Header struct {
	PaymentID        string     `json:"payment_id"`
	BusinessID       string     `json:"business_id"`
	BusinessName     string     `json:"business_name"`
	SettlementWallet string     `json:"settlement_wallet"`
	ChatID           string     `json:"chat_id,omitempty"`
	Kind             Kind       `json:"kind"`
	Token            string     `json:"token"`
	SettlementChain  string     `json:"settlement_chain"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	TxHash           string     `json:"tx_hash,omitempty"`
	Confirmations    int        `json:"confirmations,omitempty"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	ExpiredAt        *time.Time `json:"expired_at,omitempty"`

	// AuditTrail is a capped, in-memory-only log of status transitions.
	// It is never written to the on-disk JSON interchange format (spec §6
	// names only the fields above) — it exists purely so tests can assert
	// the full transition sequence a record went through.
	AuditTrail []AuditEntry `json:"-"`
}

type AuditEntry struct {
	From Status
	To   Status
	At   time.Time
}

const auditCap = 32

func (h *Header) recordTransition(to Status) {
	entry := AuditEntry{From: h.Status, To: to, At: time.Now()}
	h.AuditTrail = append(h.AuditTrail, entry)
	if len(h.AuditTrail) > auditCap {
		h.AuditTrail = h.AuditTrail[len(h.AuditTrail)-auditCap:]
	}
	h.Status = to
}

// Record is implemented by *DirectRecord and *BridgeRecord.
type Record interface {
	Head() *Header
}

type DirectRecord struct {
	Header

	// ExpectedAmount is the human-decimal amount (spec §3's "amount") the
	// direct monitor must see land at SettlementWallet, expressed in
	// Token's own units before decimals scaling. Spec §3 lists
	// raw_input_amount/raw_output_amount for bridge records but omits the
	// analogous field for direct records; without it the direct monitor
	// has nothing to compute its matching band against, so it is carried
	// here the same way the bridge side carries its raw amounts.
	ExpectedAmount string `json:"expected_amount"`
}

func (d *DirectRecord) Head() *Header { return &d.Header }

type BridgeRecord struct {
	Header

	SourceChain          string `json:"source_chain"`
	InputTokenMint       string `json:"input_token_mint"`
	OutputTokenAddress   string `json:"output_token_address"`
	RawInputAmount       string `json:"raw_input_amount"`
	RawOutputAmount      string `json:"raw_output_amount"`
	RelayFee             string `json:"relay_fee"`
	TempWalletPubkey     string `json:"temp_wallet_pubkey"`
	DepositAddress       string `json:"deposit_address"`
	TempPrivateKeySealed string `json:"temp_private_key_sealed"`
	SpokePoolSource      string `json:"spoke_pool_source"`
	SpokePoolDestination string `json:"spoke_pool_destination"`
	DestinationChainID   uint64 `json:"destination_chain_id"`
	QuoteTimestamp       int64  `json:"quote_timestamp"`
	FillDeadline         int64  `json:"fill_deadline"`
	DepositTxSig         string `json:"deposit_tx_sig,omitempty"`
}

func (b *BridgeRecord) Head() *Header { return &b.Header }

// Transition moves a record to a new status, recording the edge in its
// audit trail, and returns an error if the edge is not legal.
func Transition(r Record, to Status) error {
	h := r.Head()
	if !CanTransition(h.Kind, h.Status, to) {
		return &TransitionError{Kind: h.Kind, From: h.Status, To: to}
	}
	h.recordTransition(to)
	return nil
}

type TransitionError struct {
	Kind     Kind
	From, To Status
}

func (e *TransitionError) Error() string {
	return "record: illegal " + string(e.Kind) + " transition " + string(e.From) + " -> " + string(e.To)
}
