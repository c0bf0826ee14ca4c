package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
	"github.com/hostel-hub/hostel-registry/internal/domain/shared"
	"github.com/hostel-hub/hostel-registry/pkg/timeutil"
)

type failingStore struct {
	*identifier.MemoryStore
	err error
}

func (s *failingStore) Save(ctx context.Context, b identifier.Block, v int) error {
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.Save(ctx, b, v)
}

func (s *failingStore) Advance(ctx context.Context, b identifier.Block, v int) error {
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.Advance(ctx, b, v)
}

type recordingLog struct {
	mu      sync.Mutex
	records []identifier.IssueRecord
	err     error
}

func (l *recordingLog) Record(_ context.Context, rec identifier.IssueRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

func newCalendar() *timeutil.Calendar {
	return timeutil.NewCalendar(testclock.NewClock(time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)), time.UTC)
}

func TestGenerateIdentifier_UsesCalendarYear(t *testing.T) {
	ctx := context.Background()
	svc := identifier.NewService()
	store := identifier.NewMemoryStore()
	issueLog := &recordingLog{}
	h := NewGenerateIdentifierHandler(svc, store, issueLog, newCalendar(), nil)

	res, err := h.Handle(ctx, GenerateIdentifierCommand{Block: "A"})
	require.NoError(t, err)
	assert.Equal(t, identifier.Identifier("HSTL2024A001"), res.Identifier)
	assert.Equal(t, 2024, res.Year)

	res, err = h.Handle(ctx, GenerateIdentifierCommand{Block: "A", Year: 2031})
	require.NoError(t, err)
	assert.Equal(t, identifier.Identifier("HSTL2031A002"), res.Identifier)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap[identifier.BlockA])

	require.Len(t, issueLog.records, 2)
	assert.Equal(t, identifier.Identifier("HSTL2024A001"), issueLog.records[0].Identifier)
	assert.NotEmpty(t, issueLog.records[0].ID)
	assert.NotEqual(t, issueLog.records[0].ID, issueLog.records[1].ID)
}

func TestGenerateIdentifier_UnknownBlock(t *testing.T) {
	h := NewGenerateIdentifierHandler(identifier.NewService(), identifier.NewMemoryStore(), nil, newCalendar(), nil)

	_, err := h.Handle(context.Background(), GenerateIdentifierCommand{Block: "E"})
	assert.ErrorIs(t, err, shared.ErrUnknownBlock)
	assert.False(t, IsStoreFault(err))
}

func TestGenerateIdentifier_StoreFailureBurnsSequence(t *testing.T) {
	ctx := context.Background()
	svc := identifier.NewService()
	store := &failingStore{MemoryStore: identifier.NewMemoryStore(), err: errors.New("db down")}
	h := NewGenerateIdentifierHandler(svc, store, nil, newCalendar(), nil)

	_, err := h.Handle(ctx, GenerateIdentifierCommand{Block: "B"})
	require.Error(t, err)
	assert.True(t, IsStoreFault(err))
	assert.True(t, shared.IsUnavailable(err))

	store.err = nil
	res, err := h.Handle(ctx, GenerateIdentifierCommand{Block: "B"})
	require.NoError(t, err)
	assert.Equal(t, identifier.Identifier("HSTL2024B002"), res.Identifier)
}

func TestGenerateIdentifier_AuditFailureIsNotFatal(t *testing.T) {
	h := NewGenerateIdentifierHandler(identifier.NewService(), identifier.NewMemoryStore(),
		&recordingLog{err: errors.New("insert failed")}, newCalendar(), nil)

	res, err := h.Handle(context.Background(), GenerateIdentifierCommand{Block: "C"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sequence)
}

func TestSetCounter(t *testing.T) {
	ctx := context.Background()
	svc := identifier.NewService()
	store := identifier.NewMemoryStore()
	h := NewSetCounterHandler(svc, store, nil)

	res, err := h.Handle(ctx, SetCounterCommand{Block: "D", Value: 120, Actor: "warden"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Previous)
	assert.Equal(t, 120, svc.Counters()[identifier.BlockD])

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, snap[identifier.BlockD])

	// Lowering a counter is allowed for administrative correction.
	res, err = h.Handle(ctx, SetCounterCommand{Block: "D", Value: 5})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Previous)

	snap, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, snap[identifier.BlockD])
}

func TestSetCounter_Validation(t *testing.T) {
	h := NewSetCounterHandler(identifier.NewService(), identifier.NewMemoryStore(), nil)

	_, err := h.Handle(context.Background(), SetCounterCommand{Block: "X", Value: 1})
	assert.ErrorIs(t, err, shared.ErrUnknownBlock)

	_, err = h.Handle(context.Background(), SetCounterCommand{Block: "A", Value: -3})
	assert.ErrorIs(t, err, shared.ErrNegativeCounter)
}

func TestSetCounter_StoreFailureRollsBack(t *testing.T) {
	svc := identifier.NewService()
	_, err := svc.SetCounter("A", 10)
	require.NoError(t, err)

	store := &failingStore{MemoryStore: identifier.NewMemoryStore(), err: errors.New("db down")}
	h := NewSetCounterHandler(svc, store, nil)

	_, err = h.Handle(context.Background(), SetCounterCommand{Block: "A", Value: 99})
	require.Error(t, err)
	assert.True(t, IsStoreFault(err))
	assert.Equal(t, 10, svc.Counters()[identifier.BlockA])
}

func TestRestoreCounters(t *testing.T) {
	ctx := context.Background()
	store := identifier.NewMemoryStore()
	require.NoError(t, store.Save(ctx, identifier.BlockC, 17))

	svc := identifier.NewService()
	require.NoError(t, RestoreCounters(ctx, svc, store, nil))

	issued, err := svc.Generate("C", 2024)
	require.NoError(t, err)
	assert.Equal(t, identifier.Identifier("HSTL2024C018"), issued.ID)
}

// stallingStore parks Save until release is closed, then fails it.
type stallingStore struct {
	*identifier.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) Save(context.Context, identifier.Block, int) error {
	close(s.entered)
	<-s.release
	return errors.New("write timed out")
}

func TestSetCounter_FailedOverwriteDoesNotReissue(t *testing.T) {
	ctx := context.Background()
	svc := identifier.NewService()
	_, err := svc.SetCounter("A", 5)
	require.NoError(t, err)

	store := &stallingStore{
		MemoryStore: identifier.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	require.NoError(t, store.MemoryStore.Save(ctx, identifier.BlockA, 5))

	setter := NewSetCounterHandler(svc, store, nil)
	generator := NewGenerateIdentifierHandler(svc, store, nil, newCalendar(), nil)

	setErr := make(chan error, 1)
	go func() {
		_, err := setter.Handle(ctx, SetCounterCommand{Block: "A", Value: 100})
		setErr <- err
	}()
	<-store.entered

	issued := make(chan *GenerateIdentifierResult, 1)
	go func() {
		res, err := generator.Handle(ctx, GenerateIdentifierCommand{Block: "A"})
		assert.NoError(t, err)
		issued <- res
	}()

	select {
	case <-issued:
		t.Fatal("identifier issued while the overwrite was still being saved")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	require.Error(t, <-setErr)

	res := <-issued
	require.NotNil(t, res)
	assert.Equal(t, identifier.Identifier("HSTL2024A006"), res.Identifier)
	assert.Equal(t, 6, svc.Counters()[identifier.BlockA])

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, snap[identifier.BlockA])
}

// orderedStore records the order of store writes for one block.
type orderedStore struct {
	mu     sync.Mutex
	writes []int
	value  int
}

func (s *orderedStore) Load(context.Context) (identifier.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return identifier.Snapshot{identifier.BlockB: s.value}, nil
}

func (s *orderedStore) Save(_ context.Context, _ identifier.Block, v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, v)
	s.value = v
	return nil
}

func (s *orderedStore) Advance(_ context.Context, _ identifier.Block, v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, v)
	if v > s.value {
		s.value = v
	}
	return nil
}

func TestSetCounter_StoreMatchesMemoryUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	svc := identifier.NewService()
	store := &orderedStore{}
	setter := NewSetCounterHandler(svc, store, nil)
	generator := NewGenerateIdentifierHandler(svc, store, nil, newCalendar(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := generator.Handle(ctx, GenerateIdentifierCommand{Block: "B"})
			assert.NoError(t, err)
		}()
		go func(v int) {
			defer wg.Done()
			_, err := setter.Handle(ctx, SetCounterCommand{Block: "B", Value: v})
			assert.NoError(t, err)
		}(i * 10)
	}
	wg.Wait()

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, svc.Counters()[identifier.BlockB], snap[identifier.BlockB])
	assert.Len(t, store.writes, 40)
}
