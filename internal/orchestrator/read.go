package orchestrator

import (
	"errors"
	"fmt"

	"github.com/rajweb3/railclaw/internal/record"
)

// checkPayment implements spec §4.E's check_payment action: a plain
// lookup by payment_id, with no policy involvement (a payment record
// already reflects whatever policy was in force at creation time).
func (o *Orchestrator) checkPayment(req Request) (Response, error) {
	rec, err := o.deps.Store.Get(req.PaymentID)
	if err != nil {
		var storeErr *record.Error
		if errors.As(err, &storeErr) && storeErr.Kind == record.KindNotFound {
			return Response{Status: StatusRejected, Violation: "not_found", Received: req.PaymentID}, nil
		}
		return Response{}, fmt.Errorf("orchestrator: get record %s: %w", req.PaymentID, err)
	}
	return Response{Status: StatusOK, Record: rec}, nil
}

// listPayments implements spec §4.E's list_payments action: a bounded
// scan of the record store filtered by the caller-supplied Filter.
func (o *Orchestrator) listPayments(req Request) (Response, error) {
	recs, err := o.deps.Store.List(req.ListFilter)
	if err != nil {
		return Response{}, fmt.Errorf("orchestrator: list records: %w", err)
	}
	return Response{Status: StatusOK, Records: recs}, nil
}
