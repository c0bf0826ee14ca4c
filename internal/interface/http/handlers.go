package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hostel-hub/hostel-registry/internal/application/command"
	"github.com/hostel-hub/hostel-registry/internal/application/query"
	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
	"github.com/hostel-hub/hostel-registry/internal/domain/shared"
	"github.com/hostel-hub/hostel-registry/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "Hostel Registry API",
		"version": s.config.Version,
		"format":  identifier.Prefix + "<YYYY><A|B|C|D><NNN>",
		"endpoints": map[string]string{
			"health":      "/health",
			"identifiers": "/api/v1/identifiers",
			"counters":    "/api/v1/counters",
		},
	}

	writeData(w, r, http.StatusOK, info, nil)
}

// handleHealth reports every dependency check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeData(w, r, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"uptime":  s.uptime().Round(time.Second).String(),
			"version": s.config.Version,
		}, nil)
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeData(w, r, code, status, nil)
}

// handleReady answers 503 while any dependency check fails, so a load
// balancer stops sending identifier requests that would fail anyway.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Healthy {
			writeFailure(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeData(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleLive reports that the process is up, without touching dependencies.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// IDENTIFIER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// GenerateIdentifierRequest is the body of POST /api/v1/identifiers.
type GenerateIdentifierRequest struct {
	Block string `json:"block"`

	// Year defaults to the current year in the configured timezone.
	Year int `json:"year,omitempty"`
}

// IdentifierResponse describes an identifier.
type IdentifierResponse struct {
	Identifier string           `json:"identifier"`
	Year       int              `json:"year"`
	Block      identifier.Block `json:"block"`
	Sequence   int              `json:"sequence"`
}

// handleGenerateIdentifier handles POST /api/v1/identifiers
func (s *Server) handleGenerateIdentifier(w http.ResponseWriter, r *http.Request) {
	if s.deps.GenerateIdentifierHandler == nil {
		writeFailure(w, r, http.StatusNotImplemented, "not_implemented", "Identifier issuing not configured")
		return
	}

	var req GenerateIdentifierRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.GenerateIdentifierHandler.Handle(r.Context(), command.GenerateIdentifierCommand{
		Block:         req.Block,
		Year:          req.Year,
		CorrelationID: requestIDFrom(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, IdentifierResponse{
		Identifier: result.Identifier.String(),
		Year:       result.Year,
		Block:      result.Block,
		Sequence:   result.Sequence,
	}, nil)
}

// handleParseIdentifier handles GET /api/v1/identifiers/{id}
func (s *Server) handleParseIdentifier(w http.ResponseWriter, r *http.Request) {
	h := s.deps.ParseIdentifierHandler
	if h == nil {
		h = query.NewParseIdentifierHandler()
	}

	result := h.Handle(r.Context(), query.ParseIdentifierQuery{Identifier: r.PathValue("id")})
	if !result.Matched {
		writeFailure(w, r, http.StatusNotFound, "not_matched", "Not a valid student identifier")
		return
	}

	writeData(w, r, http.StatusOK, IdentifierResponse{
		Identifier: result.Input,
		Year:       result.Parsed.Year,
		Block:      result.Parsed.Block,
		Sequence:   result.Parsed.Sequence,
	}, nil)
}

// handleListIssued handles GET /api/v1/identifiers?block=A&year=2024&limit=50
func (s *Server) handleListIssued(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListIssuedHandler == nil {
		writeFailure(w, r, http.StatusNotImplemented, "not_implemented", "Issue history requires a database")
		return
	}

	year, err := getQueryParamInt(r, "year", 0)
	if err != nil {
		writeFailure(w, r, http.StatusBadRequest, "invalid_year", "year must be a number")
		return
	}
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeFailure(w, r, http.StatusBadRequest, "invalid_request", "limit must be a number")
		return
	}

	views, err := s.deps.ListIssuedHandler.Handle(r.Context(), query.ListIssuedQuery{
		Block: r.URL.Query().Get("block"),
		Year:  year,
		Limit: limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, views, &ResponseMeta{TotalCount: len(views)})
}

// ══════════════════════════════════════════════════════════════════════════════
// COUNTER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCounters handles GET /api/v1/counters
func (s *Server) handleGetCounters(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetCountersHandler == nil {
		writeFailure(w, r, http.StatusNotImplemented, "not_implemented", "Counters not configured")
		return
	}

	result := s.deps.GetCountersHandler.Handle(r.Context())
	writeData(w, r, http.StatusOK, result.Counters, &ResponseMeta{TotalCount: len(result.Counters)})
}

// SetCounterRequest is the body of PUT /api/v1/counters/{block}.
type SetCounterRequest struct {
	Value *int `json:"value"`
}

// SetCounterResponse reports a counter overwrite.
type SetCounterResponse struct {
	Block    identifier.Block `json:"block"`
	Previous int              `json:"previous"`
	Value    int              `json:"value"`
}

// handleSetCounter handles PUT /api/v1/counters/{block}
func (s *Server) handleSetCounter(w http.ResponseWriter, r *http.Request) {
	if s.deps.SetCounterHandler == nil {
		writeFailure(w, r, http.StatusNotImplemented, "not_implemented", "Counter administration not configured")
		return
	}

	var req SetCounterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeFailure(w, r, http.StatusBadRequest, "invalid_request", "value is required")
		return
	}

	result, err := s.deps.SetCounterHandler.Handle(r.Context(), command.SetCounterCommand{
		Block: r.PathValue("block"),
		Value: *req.Value,
		Actor: s.clientIP(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, SetCounterResponse{
		Block:    result.Block,
		Previous: result.Previous,
		Value:    result.Value,
	}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeFailure(w, r, http.StatusBadRequest, "invalid_request", "Request body is required")
			return false
		}
		writeFailure(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// getQueryParamInt reads an integer query parameter.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

// writeDomainError maps domain errors to HTTP responses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrUnknownBlock):
		writeFailure(w, r, http.StatusBadRequest, "unknown_block", err.Error())
	case errors.Is(err, shared.ErrInvalidYear):
		writeFailure(w, r, http.StatusBadRequest, "invalid_year", err.Error())
	case shared.IsValidation(err):
		writeFailure(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsExhausted(err):
		writeFailure(w, r, http.StatusConflict, "sequence_overflow", err.Error())
	case shared.IsUnavailable(err):
		s.logger.Error("counter store unavailable",
			logger.Err(err),
			logger.String("request_id", requestIDFrom(r.Context())),
		)
		writeFailure(w, r, http.StatusServiceUnavailable, "store_unavailable", "Storage is unavailable")
	default:
		s.logger.Error("unexpected error",
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", requestIDFrom(r.Context())),
		)
		writeFailure(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
