package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Matching(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("identifier", "Generate", ErrCounterStoreFault, "sequence 7 of block A not persisted", cause)

	assert.ErrorIs(t, err, ErrCounterStoreFault)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "identifier.Generate: sequence 7 of block A not persisted: connection reset", err.Error())
	assert.Equal(t, "identifier.Validate: unknown block", ErrUnknownBlock.Error())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		validation  bool
		exhausted   bool
		unavailable bool
	}{
		{"unknown block", fmt.Errorf("parse: %w", ErrUnknownBlock), true, false, false},
		{"bad year", ErrInvalidYear, true, false, false},
		{"negative counter", ErrNegativeCounter, true, false, false},
		{"overflow", ErrSequenceOverflow, false, true, false},
		{"store fault", ErrCounterStoreFault, false, false, true},
		{"store deadline", fmt.Errorf("load: %w", context.DeadlineExceeded), false, false, true},
		{"other", errors.New("boom"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.exhausted, IsExhausted(tt.err))
			assert.Equal(t, tt.unavailable, IsUnavailable(tt.err))
		})
	}
}
