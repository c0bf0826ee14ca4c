// Package circuitbreaker stops calling a dependency that keeps failing. The
// registry puts one in front of counter store writes so that a dead database
// fails requests at once instead of holding every block lock for a timeout.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ErrOpen is returned without calling the dependency while the breaker is
// open, or while the half-open trial slots are taken.
var ErrOpen = errors.New("circuitbreaker: open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Settings configure a Breaker. Zero fields take the values in
// CounterStoreSettings.
type Settings struct {
	Name string

	// Trip is the run of consecutive failures that opens the breaker.
	Trip int
	// Recover is the run of successful trials that closes it again.
	Recover int
	// Cooldown is how long it stays open before admitting trials.
	Cooldown time.Duration
	// Trials caps concurrent calls while half-open.
	Trials int

	// Counts decides whether an error is held against the dependency.
	// Nil counts every error.
	Counts func(error) bool
	// Notify is called on every transition, with the lock held.
	Notify func(name string, from, to State)

	Clock clock.Clock
}

// CounterStoreSettings is the tuning used in front of the counter store: trip
// fast, and come back after a single good write.
func CounterStoreSettings() Settings {
	return Settings{
		Name:     "counter-store",
		Trip:     3,
		Recover:  1,
		Cooldown: 10 * time.Second,
		Trials:   1,
		Clock:    clock.WallClock,
	}
}

func (s Settings) normalized() Settings {
	d := CounterStoreSettings()
	if s.Name == "" {
		s.Name = d.Name
	}
	if s.Trip <= 0 {
		s.Trip = d.Trip
	}
	if s.Recover <= 0 {
		s.Recover = d.Recover
	}
	if s.Cooldown <= 0 {
		s.Cooldown = d.Cooldown
	}
	if s.Trials <= 0 {
		s.Trials = d.Trials
	}
	if s.Clock == nil {
		s.Clock = d.Clock
	}
	return s
}

// Breaker is safe for concurrent use.
type Breaker struct {
	settings Settings

	mu    sync.Mutex
	state State
	// streak counts failures while closed and successes while half-open.
	streak int
	trials int
	until  time.Time
	// epoch changes on every transition so late results from an earlier
	// state are dropped.
	epoch uint64
}

// New creates a closed breaker.
func New(s Settings) *Breaker {
	return &Breaker{settings: s.normalized()}
}

// Do calls fn unless the breaker is open, and records the outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	epoch, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(epoch, err)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.settings.Clock.Now().Before(b.until) {
			return 0, ErrOpen
		}
		b.moveTo(HalfOpen)
	}
	if b.state == HalfOpen {
		if b.trials >= b.settings.Trials {
			return 0, ErrOpen
		}
		b.trials++
	}
	return b.epoch, nil
}

func (b *Breaker) record(epoch uint64, err error) {
	failed := err != nil && (b.settings.Counts == nil || b.settings.Counts(err))

	b.mu.Lock()
	defer b.mu.Unlock()

	if epoch != b.epoch {
		return
	}

	switch b.state {
	case Closed:
		if !failed {
			b.streak = 0
			return
		}
		if b.streak++; b.streak >= b.settings.Trip {
			b.moveTo(Open)
		}
	case HalfOpen:
		if failed {
			b.moveTo(Open)
			return
		}
		b.trials--
		if b.streak++; b.streak >= b.settings.Recover {
			b.moveTo(Closed)
		}
	}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	from := b.state
	b.state = to
	b.streak = 0
	b.trials = 0
	b.epoch++
	if to == Open {
		b.until = b.settings.Clock.Now().Add(b.settings.Cooldown)
	}
	if b.settings.Notify != nil {
		b.settings.Notify(b.settings.Name, from, to)
	}
}

// State reports the current position. An open breaker whose cooldown has
// elapsed still reads Open until the next call is admitted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
