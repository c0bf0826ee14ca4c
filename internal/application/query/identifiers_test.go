package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
	"github.com/hostel-hub/hostel-registry/internal/domain/shared"
)

func TestParseIdentifierHandler(t *testing.T) {
	h := NewParseIdentifierHandler()

	res := h.Handle(context.Background(), ParseIdentifierQuery{Identifier: " HSTL2024B017\t"})
	assert.True(t, res.Matched)
	assert.Equal(t, "HSTL2024B017", res.Input)
	assert.Equal(t, identifier.Parsed{Year: 2024, Block: identifier.BlockB, Sequence: 17}, res.Parsed)

	res = h.Handle(context.Background(), ParseIdentifierQuery{Identifier: "HSTL2024E001"})
	assert.False(t, res.Matched)
	assert.Equal(t, identifier.Parsed{}, res.Parsed)
}

func TestGetCountersHandler(t *testing.T) {
	svc := identifier.NewService()
	_, err := svc.Generate("B", 2024)
	require.NoError(t, err)

	h := NewGetCountersHandler(svc)
	res := h.Handle(context.Background())

	require.Len(t, res.Counters, 4)
	assert.Equal(t, CounterView{Block: identifier.BlockA, Value: 0, Next: 1}, res.Counters[0])
	assert.Equal(t, CounterView{Block: identifier.BlockB, Value: 1, Next: 2}, res.Counters[1])

	res.Snapshot[identifier.BlockB] = 50
	assert.Equal(t, 1, svc.Counters()[identifier.BlockB])
}

type fakeHistory struct {
	records   []identifier.IssueRecord
	err       error
	lastLimit int
}

func (f *fakeHistory) ListIssued(_ context.Context, block identifier.Block, year, limit int) ([]identifier.IssueRecord, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []identifier.IssueRecord
	for _, r := range f.records {
		if r.Block == block && r.Year == year {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestListIssuedHandler(t *testing.T) {
	issuedAt := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	history := &fakeHistory{records: []identifier.IssueRecord{
		{ID: "1", Identifier: "HSTL2024A001", Block: identifier.BlockA, Year: 2024, Sequence: 1, IssuedAt: issuedAt},
		{ID: "2", Identifier: "HSTL2024B001", Block: identifier.BlockB, Year: 2024, Sequence: 1, IssuedAt: issuedAt},
	}}
	h := NewListIssuedHandler(history)

	views, err := h.Handle(context.Background(), ListIssuedQuery{Block: "A", Year: 2024})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "HSTL2024A001", views[0].Identifier)
	assert.Equal(t, 50, history.lastLimit)

	_, err = h.Handle(context.Background(), ListIssuedQuery{Block: "A", Year: 2024, Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, MaxIssuedLimit, history.lastLimit)
}

func TestListIssuedHandler_Errors(t *testing.T) {
	h := NewListIssuedHandler(&fakeHistory{err: errors.New("pool closed")})

	_, err := h.Handle(context.Background(), ListIssuedQuery{Block: "Q", Year: 2024})
	assert.ErrorIs(t, err, shared.ErrUnknownBlock)

	_, err = h.Handle(context.Background(), ListIssuedQuery{Block: "A", Year: 24})
	assert.ErrorIs(t, err, shared.ErrInvalidYear)

	_, err = h.Handle(context.Background(), ListIssuedQuery{Block: "A", Year: 2024, Limit: -1})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), ListIssuedQuery{Block: "A", Year: 2024})
	assert.True(t, shared.IsUnavailable(err))
}
