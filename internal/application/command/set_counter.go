package command

import (
	"context"
	"fmt"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
	"github.com/hostel-hub/hostel-registry/internal/domain/shared"
	"github.com/hostel-hub/hostel-registry/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET COUNTER COMMAND
// Administrative correction of a block counter.
// ══════════════════════════════════════════════════════════════════════════════

// SetCounterCommand overwrites a block counter.
type SetCounterCommand struct {
	Block string
	Value int

	// Actor names who requested the change, for the log.
	Actor string
}

// SetCounterResult contains the outcome of a counter overwrite.
type SetCounterResult struct {
	Block    identifier.Block
	Previous int
	Value    int
}

// SetCounterHandler handles the SetCounterCommand.
type SetCounterHandler struct {
	service *identifier.Service
	store   identifier.CounterStore
	log     *logger.Logger
}

// NewSetCounterHandler creates a new SetCounterHandler.
func NewSetCounterHandler(
	service *identifier.Service,
	store identifier.CounterStore,
	log *logger.Logger,
) *SetCounterHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SetCounterHandler{
		service: service,
		store:   store,
		log:     log.With(logger.Component("set_counter")),
	}
}

// Handle executes the set counter command. The overwrite, the store write
// and a possible revert all happen under the block's write lock.
func (h *SetCounterHandler) Handle(ctx context.Context, cmd SetCounterCommand) (*SetCounterResult, error) {
	block, err := identifier.ParseBlock(cmd.Block)
	if err != nil {
		return nil, err
	}

	unlock := h.service.LockBlock(block)
	defer unlock()

	prev, err := h.service.SetCounter(cmd.Block, cmd.Value)
	if err != nil {
		return nil, err
	}

	if err := h.store.Save(ctx, block, cmd.Value); err != nil {
		reverted := h.service.RevertCounter(block, cmd.Value, prev)
		h.log.Error("failed to persist counter overwrite",
			logger.Block(cmd.Block),
			logger.Int("value", cmd.Value),
			logger.Int("previous", prev),
			logger.Bool("reverted", reverted),
			logger.Err(err),
		)
		return nil, shared.WrapError("identifier", "SetCounter", shared.ErrCounterStoreFault,
			"counter not persisted", err)
	}

	h.log.Warn("counter overwritten",
		logger.Block(cmd.Block),
		logger.Int("previous", prev),
		logger.Int("value", cmd.Value),
		logger.String("actor", cmd.Actor),
	)

	return &SetCounterResult{Block: block, Previous: prev, Value: cmd.Value}, nil
}

// RestoreCounters loads persisted counters into the service. It is called
// once at startup, before any identifier is issued.
func RestoreCounters(
	ctx context.Context,
	service *identifier.Service,
	store identifier.CounterStore,
	log *logger.Logger,
) error {
	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore counters: %w", err)
	}
	service.Restore(snap)

	if log != nil {
		current := service.Counters()
		fields := make([]logger.Field, 0, len(identifier.Blocks))
		for _, b := range identifier.Blocks {
			fields = append(fields, logger.Int("block_"+b.String(), current[b]))
		}
		log.Info("counters restored", fields...)
	}
	return nil
}
