package realtime

import "time"

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The manager owns every Timer it gets back and
// stops it on Disconnect.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// WallScheduler schedules on the real clock.
type WallScheduler struct{}

func (WallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
