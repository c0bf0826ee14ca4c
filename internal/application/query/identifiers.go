// Package query contains read operations (CQRS - Queries).
// Queries never touch counter state except to copy it.
package query

import (
	"context"
	"strings"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
)

// ParseIdentifierQuery asks for the fields of an identifier string.
type ParseIdentifierQuery struct {
	Identifier string
}

// ParseIdentifierResult is the outcome of a parse. Matched is false for
// strings that are not identifiers.
type ParseIdentifierResult struct {
	Input   string
	Matched bool
	Parsed  identifier.Parsed
}

// ParseIdentifierHandler handles ParseIdentifierQuery.
type ParseIdentifierHandler struct{}

// NewParseIdentifierHandler creates a new ParseIdentifierHandler.
func NewParseIdentifierHandler() *ParseIdentifierHandler {
	return &ParseIdentifierHandler{}
}

// Handle parses the identifier. Surrounding whitespace is trimmed because
// identifiers are often pasted from spreadsheets; everything else must match
// exactly.
func (h *ParseIdentifierHandler) Handle(_ context.Context, q ParseIdentifierQuery) ParseIdentifierResult {
	input := strings.TrimSpace(q.Identifier)
	parsed, ok := identifier.Parse(input)
	return ParseIdentifierResult{
		Input:   input,
		Matched: ok,
		Parsed:  parsed,
	}
}

// CounterView is one block counter as shown to API callers.
type CounterView struct {
	Block identifier.Block `json:"block"`
	Value int              `json:"value"`

	// Next is the identifier sequence the next Generate call will use.
	Next int `json:"next"`
}

// GetCountersResult lists every block counter in block order.
type GetCountersResult struct {
	Counters []CounterView
	Snapshot identifier.Snapshot
}

// GetCountersHandler handles counter snapshot queries.
type GetCountersHandler struct {
	service *identifier.Service
}

// NewGetCountersHandler creates a new GetCountersHandler.
func NewGetCountersHandler(service *identifier.Service) *GetCountersHandler {
	return &GetCountersHandler{service: service}
}

// Handle returns a copy of the counters.
func (h *GetCountersHandler) Handle(_ context.Context) GetCountersResult {
	snap := h.service.Counters()

	views := make([]CounterView, 0, len(identifier.Blocks))
	for _, b := range identifier.Blocks {
		views = append(views, CounterView{Block: b, Value: snap[b], Next: snap[b] + 1})
	}

	return GetCountersResult{Counters: views, Snapshot: snap}
}
