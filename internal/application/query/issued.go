package query

import (
	"context"
	"time"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
	"github.com/hostel-hub/hostel-registry/internal/domain/shared"
)

// MaxIssuedLimit caps a single history page.
const MaxIssuedLimit = 500

// IssueHistory reads back the audit trail of issued identifiers.
type IssueHistory interface {
	ListIssued(ctx context.Context, block identifier.Block, year, limit int) ([]identifier.IssueRecord, error)
}

// ListIssuedQuery asks for recently issued identifiers of one block and year.
type ListIssuedQuery struct {
	Block string
	Year  int
	Limit int
}

// IssuedView is one audit entry as shown to API callers.
type IssuedView struct {
	ID         string           `json:"id"`
	Identifier string           `json:"identifier"`
	Block      identifier.Block `json:"block"`
	Year       int              `json:"year"`
	Sequence   int              `json:"sequence"`
	IssuedAt   time.Time        `json:"issued_at"`
}

// ListIssuedHandler handles ListIssuedQuery.
type ListIssuedHandler struct {
	history IssueHistory
}

// NewListIssuedHandler creates a new ListIssuedHandler.
func NewListIssuedHandler(history IssueHistory) *ListIssuedHandler {
	return &ListIssuedHandler{history: history}
}

// Handle validates the query and reads the history, newest first.
func (h *ListIssuedHandler) Handle(ctx context.Context, q ListIssuedQuery) ([]IssuedView, error) {
	block, err := identifier.ParseBlock(q.Block)
	if err != nil {
		return nil, err
	}
	if err := identifier.ValidateYear(q.Year); err != nil {
		return nil, err
	}

	limit := q.Limit
	switch {
	case limit < 0:
		return nil, shared.NewDomainError("identifier", "ListIssued", shared.ErrNegativeValue, "limit cannot be negative")
	case limit == 0:
		limit = 50
	case limit > MaxIssuedLimit:
		limit = MaxIssuedLimit
	}

	records, err := h.history.ListIssued(ctx, block, q.Year, limit)
	if err != nil {
		return nil, shared.WrapError("identifier", "ListIssued", shared.ErrServiceUnavailable,
			"issue history unavailable", err)
	}

	views := make([]IssuedView, 0, len(records))
	for _, rec := range records {
		views = append(views, IssuedView{
			ID:         rec.ID,
			Identifier: rec.Identifier.String(),
			Block:      rec.Block,
			Year:       rec.Year,
			Sequence:   rec.Sequence,
			IssuedAt:   rec.IssuedAt,
		})
	}
	return views, nil
}
