package orchestrator

import "github.com/rajweb3/railclaw/internal/record"

// Request is the single entrypoint contract spec §4.E names: {action,
// amount, token, chain, payment_id?, business}. Validate tags mirror the
// teacher's VerifyRequest.Validate() shape (vitwit-x402-go/types/types.go)
// but are enforced via go-playground/validator rather than hand-rolled
// field checks, since the teacher's module already carries that
// dependency.
type Request struct {
	Action     string `validate:"required,oneof=create_payment_link check_payment list_payments"`
	Amount     string `validate:"omitempty,numeric"`
	Token      string
	Chain      string
	PaymentID  string
	BusinessID string
	EMI        bool

	// ListFilter is consulted only when Action == "list_payments".
	ListFilter record.Filter
}

// Response is a tagged union over the response shapes spec §4.E defines:
// rejected, executed (direct), bridge_payment, plus the plain read-path
// shapes for check_payment/list_payments.
type Response struct {
	Status string `json:"status"`

	// Rejection fields.
	Violation string   `json:"violation,omitempty"`
	Policy    []string `json:"policy,omitempty"`
	Received  string   `json:"received,omitempty"`

	// Success fields.
	PaymentID         string              `json:"payment_id,omitempty"`
	PaymentLinkURL    string              `json:"payment_link_url,omitempty"`
	BridgeInstructions *BridgeInstructions `json:"bridge_instructions,omitempty"`

	// Read-path fields.
	Record  record.Record   `json:"record,omitempty"`
	Records []record.Record `json:"records,omitempty"`
}

// BridgeInstructions carries everything the payer needs to fund a bridge
// payment: where to send funds and what the business nets after the
// relay fee.
type BridgeInstructions struct {
	DepositAddress   string `json:"deposit_address"`
	AmountToSend     string `json:"amount_to_send"`
	RelayFee         string `json:"relay_fee"`
	BusinessReceives string `json:"business_receives"`
	SettlementChain  string `json:"settlement_chain"`
	SettlementWallet string `json:"settlement_wallet"`
}

const (
	ActionCreatePaymentLink = "create_payment_link"
	ActionCheckPayment      = "check_payment"
	ActionListPayments      = "list_payments"
)

const (
	StatusRejected      = "rejected"
	StatusExecuted      = "executed"
	StatusBridgePayment = "bridge_payment"
	StatusOK            = "ok"
)

const (
	ViolationChain  = "chain"
	ViolationToken  = "token"
	ViolationAmount = "amount"
	ViolationEMI    = "emi"
)

func rejected(violation string, policySet []string, received string) Response {
	return Response{Status: StatusRejected, Violation: violation, Policy: policySet, Received: received}
}
