package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rajweb3/railclaw/internal/orchestrator"
	"github.com/rajweb3/railclaw/internal/record"
)

// createPaymentRequest is the POST /payments wire body — spec.md §4.E's
// {action, amount, token, chain, business, emi} request shape with
// action fixed to create_payment_link by the route itself.
type createPaymentRequest struct {
	Amount     string `json:"amount"`
	Token      string `json:"token"`
	Chain      string `json:"chain"`
	BusinessID string `json:"business_id"`
	EMI        bool   `json:"emi"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var body createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, NewStatusError(err, http.StatusBadRequest))
		return
	}

	resp, err := s.orch.Handle(r.Context(), orchestrator.Request{
		Action:     orchestrator.ActionCreatePaymentLink,
		Amount:     body.Amount,
		Token:      body.Token,
		Chain:      body.Chain,
		BusinessID: body.BusinessID,
		EMI:        body.EMI,
	})
	if err != nil {
		s.log.Error("create payment failed", map[string]any{"error": err})
		writeError(w, NewStatusError(err, http.StatusBadRequest))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, NewStatusError(errors.New("missing payment id"), http.StatusBadRequest))
		return
	}

	resp, err := s.orch.Handle(r.Context(), orchestrator.Request{
		Action:     orchestrator.ActionCheckPayment,
		PaymentID:  id,
		BusinessID: r.URL.Query().Get("business_id"),
	})
	if err != nil {
		s.log.Error("check payment failed", map[string]any{"error": err, "payment_id": id})
		writeError(w, NewStatusError(err, http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	filter := record.Filter{
		BusinessID: r.URL.Query().Get("business_id"),
		Status:     record.Status(r.URL.Query().Get("status")),
	}

	resp, err := s.orch.Handle(r.Context(), orchestrator.Request{
		Action:     orchestrator.ActionListPayments,
		BusinessID: filter.BusinessID,
		ListFilter: filter,
	})
	if err != nil {
		s.log.Error("list payments failed", map[string]any{"error": err})
		writeError(w, NewStatusError(err, http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleNotifications drains the notification queue — an internal
// endpoint for the chat/email delivery collaborator to poll, not part of
// spec.md §4.E's three actions.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.orch.DrainNotifications()
	if err != nil {
		s.log.Error("drain notifications failed", map[string]any{"error": err})
		writeError(w, NewStatusError(err, http.StatusInternalServerError))
		return
	}
	if notifications == nil {
		notifications = []record.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, se StatusError) {
	writeJSON(w, se.Status(), map[string]string{"error": se.Error()})
}
