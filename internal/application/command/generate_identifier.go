// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
	"github.com/hostel-hub/hostel-registry/internal/domain/shared"
	"github.com/hostel-hub/hostel-registry/pkg/logger"
	"github.com/hostel-hub/hostel-registry/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE IDENTIFIER COMMAND
// Issues the next identifier for a block and persists the advanced counter.
// ══════════════════════════════════════════════════════════════════════════════

// GenerateIdentifierCommand contains the data to issue an identifier.
type GenerateIdentifierCommand struct {
	// Block is the raw block code from the caller.
	Block string

	// Year overrides the calendar year when non-zero.
	Year int

	// CorrelationID for tracing.
	CorrelationID string
}

// GenerateIdentifierResult contains the issued identifier.
type GenerateIdentifierResult struct {
	Identifier identifier.Identifier
	Block      identifier.Block
	Year       int
	Sequence   int
	IssuedAt   time.Time
}

// GenerateIdentifierHandler handles the GenerateIdentifierCommand.
type GenerateIdentifierHandler struct {
	service  *identifier.Service
	store    identifier.CounterStore
	issueLog identifier.IssueLog // optional
	calendar *timeutil.Calendar
	log      *logger.Logger
}

// NewGenerateIdentifierHandler creates a new GenerateIdentifierHandler.
// issueLog may be nil.
func NewGenerateIdentifierHandler(
	service *identifier.Service,
	store identifier.CounterStore,
	issueLog identifier.IssueLog,
	calendar *timeutil.Calendar,
	log *logger.Logger,
) *GenerateIdentifierHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GenerateIdentifierHandler{
		service:  service,
		store:    store,
		issueLog: issueLog,
		calendar: calendar,
		log:      log.With(logger.Component("generate_identifier")),
	}
}

// Handle executes the generate identifier command.
//
// The in-memory counter is the source of truth for uniqueness. When the store
// write fails the sequence number is burned rather than handed out again, and
// the error is returned so the caller does not use the identifier.
func (h *GenerateIdentifierHandler) Handle(
	ctx context.Context,
	cmd GenerateIdentifierCommand,
) (*GenerateIdentifierResult, error) {
	year := cmd.Year
	if year == 0 {
		year = h.calendar.Year()
	}

	issued, err := h.issue(ctx, cmd.Block, year)
	if err != nil {
		h.log.Warn("identifier not issued",
			logger.Block(cmd.Block),
			logger.Year(year),
			logger.String("correlation_id", cmd.CorrelationID),
			logger.Err(err),
		)
		return nil, err
	}

	issuedAt := h.calendar.Now()

	if h.issueLog != nil {
		rec := identifier.IssueRecord{
			ID:         uuid.NewString(),
			Identifier: issued.ID,
			Block:      issued.Block,
			Year:       issued.Year,
			Sequence:   issued.Sequence,
			IssuedAt:   issuedAt,
		}
		if err := h.issueLog.Record(ctx, rec); err != nil {
			// The counter is already durable; a missing audit row is not fatal.
			h.log.Warn("failed to record issued identifier",
				logger.Identifier(issued.ID.String()),
				logger.Err(err),
			)
		}
	}

	h.log.Info("identifier issued",
		logger.Identifier(issued.ID.String()),
		logger.Block(issued.Block.String()),
		logger.Sequence(issued.Sequence),
		logger.String("correlation_id", cmd.CorrelationID),
	)

	return &GenerateIdentifierResult{
		Identifier: issued.ID,
		Block:      issued.Block,
		Year:       issued.Year,
		Sequence:   issued.Sequence,
		IssuedAt:   issuedAt,
	}, nil
}

// issue increments the block counter and persists it under the block's write
// lock, so an administrative overwrite cannot interleave with it.
func (h *GenerateIdentifierHandler) issue(ctx context.Context, block string, year int) (identifier.Issued, error) {
	b, err := identifier.ParseBlock(block)
	if err != nil {
		return identifier.Issued{}, err
	}

	unlock := h.service.LockBlock(b)
	defer unlock()

	issued, err := h.service.Generate(block, year)
	if err != nil {
		return identifier.Issued{}, err
	}

	if err := h.store.Advance(ctx, issued.Block, issued.Sequence); err != nil {
		return identifier.Issued{}, shared.WrapError("identifier", "Generate", shared.ErrCounterStoreFault,
			fmt.Sprintf("sequence %d of block %s not persisted", issued.Sequence, issued.Block), err)
	}
	return issued, nil
}

// IsStoreFault reports whether err came from the counter store.
func IsStoreFault(err error) bool {
	return errors.Is(err, shared.ErrCounterStoreFault)
}
