// Package system provides the clocks used to stamp runs and scrape dates.
package system

import "time"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant. Replays and tests use it to pin the
// scrape date.
type Fixed struct {
	At time.Time
}

// Now returns the pinned instant in UTC.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}
