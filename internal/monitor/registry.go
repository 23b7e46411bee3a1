// Package monitor holds the in-process supervision shared by the Direct
// EVM and Bridge Pipeline monitors (internal/monitor/direct,
// internal/monitor/bridge): a registry enforcing spec §5's "at most one
// monitor instance exists per payment_id" and a panic-safe launcher, since
// no teacher repo runs a long-lived background worker for this to be
// grounded on directly.
package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rajweb3/railclaw/internal/logger"
	"github.com/rajweb3/railclaw/internal/record"
)

// ErrAlreadyRunning is returned by Launch when a monitor is already
// registered for the given payment_id.
var ErrAlreadyRunning = fmt.Errorf("monitor: already running for this payment_id")

// Registry tracks the in-flight monitor goroutine per payment_id via its
// cancel function, giving callers a way to enforce single-instance
// ownership without OS process isolation.
type Registry struct {
	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
	log      logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Registry{inFlight: make(map[string]context.CancelFunc), log: log}
}

// Launch registers paymentID and starts run in its own goroutine, with a
// top-level recover() so a panic inside a monitor cannot crash the
// orchestrator process. The monitor is unregistered automatically on
// return, whatever the outcome.
func (r *Registry) Launch(ctx context.Context, paymentID string, run func(context.Context) (record.Status, error)) error {
	r.mu.Lock()
	if _, ok := r.inFlight[paymentID]; ok {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.inFlight[paymentID] = cancel
	r.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("monitor panicked", map[string]any{"payment_id": paymentID, "panic": rec})
			}
			r.mu.Lock()
			delete(r.inFlight, paymentID)
			r.mu.Unlock()
			cancel()
		}()

		status, err := run(runCtx)
		if err != nil {
			r.log.Warn("monitor exited with error", map[string]any{"payment_id": paymentID, "status": status, "error": err})
		} else {
			r.log.Info("monitor exited", map[string]any{"payment_id": paymentID, "status": status})
		}
	}()

	return nil
}

// Running reports whether a monitor is currently registered for paymentID.
func (r *Registry) Running(paymentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[paymentID]
	return ok
}

// Cancel requests the monitor for paymentID to stop, if one is running.
func (r *Registry) Cancel(paymentID string) {
	r.mu.Lock()
	cancel, ok := r.inFlight[paymentID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
