package clock

import "time"

// Clock is the single source of "now" for the scheduling engine. Components
// never read the wall clock directly so tests can inject a fixed instant.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Real returns a UTC wall-clock backed Clock.
func Real() Clock {
	return realClock{}
}

// Fixed is a Clock pinned to a single instant.
type Fixed struct {
	Instant time.Time
}

func (f Fixed) Now() time.Time {
	return f.Instant.UTC()
}

// Policy centralises the time-based booking decisions: whether an instant has
// passed and whether a slot start falls inside the student cancellation window.
type Policy struct {
	clock  Clock
	window time.Duration
}

// NewPolicy builds a Policy. A nil clock falls back to the real clock.
func NewPolicy(c Clock, cancellationWindow time.Duration) *Policy {
	if c == nil {
		c = Real()
	}
	return &Policy{clock: c, window: cancellationWindow}
}

// Now returns the current UTC instant.
func (p *Policy) Now() time.Time {
	return p.clock.Now()
}

// IsPast reports whether t is at or before the current instant.
func (p *Policy) IsPast(t time.Time) bool {
	return !t.After(p.clock.Now())
}

// WithinCancellationWindow reports whether start is closer than the
// cancellation window. Students may not self-cancel once inside the window.
func (p *Policy) WithinCancellationWindow(start time.Time) bool {
	return start.Sub(p.clock.Now()) < p.window
}

// CancellationWindow exposes the configured window for messages and docs.
func (p *Policy) CancellationWindow() time.Duration {
	return p.window
}
