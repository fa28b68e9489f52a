// Package clock provides the service's notion of time.
//
// All forecast cycles are identified by the wall-clock hour at which the
// weather fetch was initiated, so every caller that needs "now" goes through
// a Clock rather than time.Now directly. That keeps cycle quantization in one
// place and lets tests substitute a fixed instant.
package clock

import "time"

// Clock yields wall-clock time in the forecast timezone.
type Clock interface {
	// Now returns the current instant in the forecast location.
	Now() time.Time

	// CycleStart returns Now truncated to the top of the current hour.
	// The result identifies the forecast cycle: every forecast and
	// prediction produced by a pipeline run carries it as created_at.
	CycleStart() time.Time
}

// WallClock is the production Clock backed by the system clock.
type WallClock struct {
	loc *time.Location
}

// New creates a WallClock for the given location.
func New(loc *time.Location) *WallClock {
	if loc == nil {
		loc = time.Local
	}
	return &WallClock{loc: loc}
}

func (c *WallClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *WallClock) CycleStart() time.Time {
	return Quantize(c.Now())
}

// Quantize truncates t to the top of its hour, preserving the location.
func Quantize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// Fixed is a Clock pinned to a single instant, for tests and for pipeline
// runs triggered with an explicit start date.
type Fixed struct {
	Instant time.Time
}

func (f Fixed) Now() time.Time        { return f.Instant }
func (f Fixed) CycleStart() time.Time { return Quantize(f.Instant) }
