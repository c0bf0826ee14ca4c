// Package identifier issues and parses hostel student identifiers of the form
// HSTL<YYYY><B><SSS>, and keeps the per-block counters that feed the
// sequence field.
package identifier

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hostel-hub/hostel-registry/internal/domain/shared"
)

// OverflowPolicy decides what Generate does once a block passes MaxSequence.
type OverflowPolicy string

const (
	// OverflowWiden keeps counting; the sequence field grows past 3 digits
	// and the result no longer satisfies Parse.
	OverflowWiden OverflowPolicy = "widen"

	// OverflowReject fails with ErrSequenceOverflow and leaves the counter alone.
	OverflowReject OverflowPolicy = "reject"
)

// ParseOverflowPolicy parses a policy name, case-insensitively.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case OverflowWiden, OverflowReject:
		return p, nil
	case "":
		return OverflowWiden, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Issued is the result of a successful Generate call.
type Issued struct {
	ID       Identifier
	Year     int
	Block    Block
	Sequence int
}

// Service generates identifiers from the counters it owns.
type Service struct {
	counters *Counters
	policy   OverflowPolicy

	// writers serialize a counter change with the store write that follows it.
	writers map[Block]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithOverflowPolicy sets the overflow policy. The default is OverflowWiden.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithCounters makes the service use existing counters.
func WithCounters(c *Counters) Option {
	return func(s *Service) {
		s.counters = c
	}
}

// NewService creates a service with fresh counters.
func NewService(opts ...Option) *Service {
	s := &Service{
		counters: NewCounters(),
		policy:   OverflowWiden,
		writers:  make(map[Block]*sync.Mutex, len(Blocks)),
	}
	for _, b := range Blocks {
		s.writers[b] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the configured overflow policy.
func (s *Service) Policy() OverflowPolicy {
	return s.policy
}

// Generate increments the counter of block and formats the new identifier.
func (s *Service) Generate(block string, year int) (Issued, error) {
	b, err := ParseBlock(block)
	if err != nil {
		return Issued{}, err
	}
	if err := ValidateYear(year); err != nil {
		return Issued{}, err
	}

	var allow func(int) bool
	if s.policy == OverflowReject {
		allow = func(n int) bool { return n <= MaxSequence }
	}

	seq, ok := s.counters.next(b, allow)
	if !ok {
		return Issued{}, shared.WrapError("identifier", "Generate", shared.ErrSequenceOverflow,
			fmt.Sprintf("block %s is at %d", b, seq), nil)
	}

	return Issued{
		ID:       Format(year, b, seq),
		Year:     year,
		Block:    b,
		Sequence: seq,
	}, nil
}

// Parse is the package-level Parse; it never touches the counters.
func (s *Service) Parse(id string) (Parsed, bool) {
	return Parse(id)
}

// SetCounter overwrites the counter of block and returns the previous value.
func (s *Service) SetCounter(block string, value int) (int, error) {
	b, err := ParseBlock(block)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, shared.WrapError("identifier", "SetCounter", shared.ErrNegativeCounter,
			fmt.Sprintf("value %d for block %s", value, b), nil)
	}
	return s.counters.set(b, value), nil
}

// RevertCounter puts block back to prev, but only while it still holds
// value. It reports whether the counter was reverted.
func (s *Service) RevertCounter(block Block, value, prev int) bool {
	return s.counters.compareAndSet(block, value, prev)
}

// LockBlock holds the write lock of block until the returned func is called.
// Callers that change a counter and then persist it hold the lock across
// both steps, so the store never sees the writes out of order.
func (s *Service) LockBlock(block Block) (unlock func()) {
	mu, ok := s.writers[block]
	if !ok {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// Counters returns a copy of every block counter.
func (s *Service) Counters() Snapshot {
	return s.counters.Snapshot()
}

// Restore loads previously persisted counter values.
func (s *Service) Restore(snap Snapshot) {
	s.counters.Restore(snap)
}

// ValidateYear checks that year renders as exactly four digits.
func ValidateYear(year int) error {
	if year < 1000 || year > 9999 {
		return shared.WrapError("identifier", "ValidateYear", shared.ErrInvalidYear,
			fmt.Sprintf("got %d", year), nil)
	}
	return nil
}
