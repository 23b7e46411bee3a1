// Package api implements the HTTP surface over the orchestrator: plain
// net/http handlers and a request/response envelope, grounded on
// raid-guild-x402-facilitator-go/api/settle.go's handler shape (manual
// JSON decode, a status-carrying error path, a single JSON response
// writer) rather than a router framework.
package api

import (
	"net/http"

	"github.com/rajweb3/railclaw/internal/logger"
	"github.com/rajweb3/railclaw/internal/orchestrator"
)

// Server wires the orchestrator behind a stdlib net/http.ServeMux.
type Server struct {
	orch *orchestrator.Orchestrator
	log  logger.Logger
	mux  *http.ServeMux
}

func NewServer(orch *orchestrator.Orchestrator, log logger.Logger) *Server {
	if log == nil {
		log = logger.NoopLogger{}
	}
	s := &Server{orch: orch, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /payments", s.handleCreatePayment)
	s.mux.HandleFunc("GET /payments/{id}", s.handleCheckPayment)
	s.mux.HandleFunc("GET /payments", s.handleListPayments)
	s.mux.HandleFunc("GET /notifications", s.handleNotifications)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
