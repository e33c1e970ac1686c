package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Checker reports whether a single dependency is usable.
type Checker func(ctx context.Context) error

// Status is the reported state of the process or one dependency.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the JSON body of the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is one dependency's outcome inside a readiness response.
type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type checkEntry struct {
	check    Checker
	critical bool
}

// Handler serves liveness and readiness probes over registered checkers.
// A failing critical checker makes readiness answer 503; a failing
// non-critical one only degrades the reported status.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]checkEntry
	timeout  time.Duration
}

// NewHandler creates an empty health handler.
func NewHandler() *Handler {
	return &Handler{
		checkers: make(map[string]checkEntry),
		timeout:  5 * time.Second,
	}
}

// Register adds or replaces a named critical checker.
func (h *Handler) Register(name string, checker Checker) {
	h.RegisterCritical(name, checker)
}

// RegisterCritical adds a checker whose failure makes the process not ready.
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, checker, true)
}

// RegisterNonCritical adds a checker whose failure only degrades status.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, checker, false)
}

func (h *Handler) register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checkEntry{check: checker, critical: critical}
}

// LivenessHandler answers 200 whenever the process can serve HTTP at all.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
		})
	}
}

// ReadinessHandler runs every registered checker concurrently.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		h.mu.RLock()
		checkers := make(map[string]checkEntry, len(h.checkers))
		for name, e := range h.checkers {
			checkers[name] = e
		}
		h.mu.RUnlock()

		var (
			resMu  sync.Mutex
			wg     sync.WaitGroup
			checks = make(map[string]CheckResult, len(checkers))
			status = StatusUp
		)
		for name, entry := range checkers {
			wg.Add(1)
			go func(name string, entry checkEntry) {
				defer wg.Done()
				res := CheckResult{Status: StatusUp, Critical: entry.critical}
				if err := entry.check(ctx); err != nil {
					res.Status = StatusDown
					res.Error = err.Error()
				}
				resMu.Lock()
				checks[name] = res
				if res.Status == StatusDown {
					if entry.critical {
						status = StatusDown
					} else if status == StatusUp {
						status = StatusDegraded
					}
				}
				resMu.Unlock()
			}(name, entry)
		}
		wg.Wait()

		code := http.StatusOK
		if status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, code, Response{
			Status:    status,
			Timestamp: time.Now().UTC(),
			Checks:    checks,
		})
	}
}

func writeResponse(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
