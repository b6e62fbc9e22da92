package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"warden-hq/warden/pkg/admission"
	"warden-hq/warden/pkg/admission/analytics"
	"warden-hq/warden/pkg/history"
)

// Limiter is the slice of the admission core the admin API needs.
type Limiter interface {
	Check(identity string, cost int64, algo admission.Algorithm) (admission.Result, error)
	Refill(identity string, algo admission.Algorithm) error
	Reset(identity string, algo admission.Algorithm) error
	Configure(identity string, algo admission.Algorithm, cfg admission.Config) error
	Analytics() analytics.Snapshot
}

// checkRequest is the body for POST /v1/check.
type checkRequest struct {
	Identity  string `json:"identity"`
	Algorithm string `json:"algorithm"`
	Cost      int64  `json:"cost"`
}

// identityRequest is the body for POST /v1/refill and POST /v1/reset.
type identityRequest struct {
	Identity  string `json:"identity"`
	Algorithm string `json:"algorithm"`
}

// configureRequest is the body for PUT /v1/config/{identity}. Window is a
// Go duration string (e.g. "1m", "24h").
type configureRequest struct {
	Algorithm   string  `json:"algorithm"`
	Capacity    float64 `json:"capacity,omitempty"`
	RefillRate  float64 `json:"refill_rate,omitempty"`
	Window      string  `json:"window,omitempty"`
	MaxRequests int64   `json:"max_requests,omitempty"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCheck runs an admission check. Admitted requests get 200, blocked
// requests get 429 with a Retry-After header. Both carry the full decision.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Cost == 0 {
		req.Cost = 1
	}

	res, err := s.limiter.Check(req.Identity, req.Cost, admission.Algorithm(req.Algorithm))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	status := http.StatusOK
	if !res.Allowed {
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", strconv.FormatInt(res.RetryAfterSeconds(), 10))
	}
	writeJSON(w, status, res)
}

// handleRefill restores an identity's allowance to its configured maximum.
func (s *Server) handleRefill(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.limiter.Refill(req.Identity, admission.Algorithm(req.Algorithm)); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refilled"})
}

// handleReset discards an identity's tracked state.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.limiter.Reset(req.Identity, admission.Algorithm(req.Algorithm)); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleConfigure installs a per-identity limit override.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("identity is required"))
		return
	}

	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	cfg := admission.Config{
		Capacity:    req.Capacity,
		RefillRate:  req.RefillRate,
		MaxRequests: req.MaxRequests,
	}
	if req.Window != "" {
		window, err := time.ParseDuration(req.Window)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid window: %w", err))
			return
		}
		cfg.Window = window
	}

	if err := s.limiter.Configure(identity, admission.Algorithm(req.Algorithm), cfg); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

// handleAnalytics returns the aggregated traffic snapshot.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.limiter.Analytics())
}

// handleHistory queries archived decision events. Supported query params:
// identity, blocked_only, limit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.histBack == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("decision history is not enabled"))
		return
	}

	f := history.Filter{
		Identity: r.URL.Query().Get("identity"),
		Limit:    100,
	}
	if v := r.URL.Query().Get("blocked_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid blocked_only: %w", err))
			return
		}
		f.BlockedOnly = b
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", v))
			return
		}
		f.Limit = n
	}

	events, err := s.histBack.Query(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []*history.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// statusForError maps admission errors to HTTP statuses. Caller mistakes are
// 400s; anything unexpected is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, admission.ErrUnknownAlgorithm),
		errors.Is(err, admission.ErrInvalidCost),
		errors.Is(err, admission.ErrInvalidConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
