// Package timeutil provides timezone-aware helpers around an injectable clock.
// Identifier years are taken from the hostel's local calendar, not UTC, so a
// student registered at 00:30 on January 1st gets the new year.
package timeutil

import (
	"fmt"
	"time"

	"github.com/juju/clock"
)

// LoadLocation loads a named timezone. An empty name means UTC; an unknown
// name is an error, since the zone decides which year goes on identifiers.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Calendar reads local dates from a clock.
type Calendar struct {
	clock clock.Clock
	loc   *time.Location
}

// NewCalendar returns a calendar over clk in loc. A nil clock means the wall
// clock and a nil location means UTC.
func NewCalendar(clk clock.Clock, loc *time.Location) *Calendar {
	if clk == nil {
		clk = clock.WallClock
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{clock: clk, loc: loc}
}

// Now returns the current time in the calendar's location.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// Year returns the current local year.
func (c *Calendar) Year() int {
	return c.Now().Year()
}
