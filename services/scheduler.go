package services

import "time"

// Scheduler runs a function after a delay. The token authority uses it for
// grace-delayed session deletion after rotation; tests substitute a
// synchronous implementation so deferred work can be flushed deterministically.
type Scheduler interface {
	Schedule(delay time.Duration, fn func())
}

// TimerScheduler schedules with time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}

var _ Scheduler = TimerScheduler{}
