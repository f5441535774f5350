package expiry

import (
	"sync/atomic"
	"time"
)

// onceSchedule is a cron.Schedule that fires exactly once at at.
//
// The first Next call returns at even when it is already in the past, so a
// job registered a moment after its end still fires (immediately). Every
// later call returns the zero time, which cron treats as "never".
type onceSchedule struct {
	at    time.Time
	armed atomic.Bool
}

func newOnceSchedule(at time.Time) *onceSchedule {
	s := &onceSchedule{at: at}
	s.armed.Store(true)
	return s
}

// rearm makes the next Next call return at again. cron recomputes every
// entry on Start.
func (s *onceSchedule) rearm() { s.armed.Store(true) }

func (s *onceSchedule) Next(t time.Time) time.Time {
	if s.armed.CompareAndSwap(true, false) {
		return s.at
	}
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
