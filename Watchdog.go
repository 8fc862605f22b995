package main

import "time"

// IdleWatchdog 矿机长时间没有提交 share 时重启矿机
type IdleWatchdog struct {
	Timeout      time.Duration
	lastActivity time.Time
}

func (dog *IdleWatchdog) Enabled() bool {
	return dog.Timeout > 0
}

func (dog *IdleWatchdog) Touch(now time.Time) {
	dog.lastActivity = now
}

// Expired 宽限期内不会触发
func (dog *IdleWatchdog) Expired(now time.Time, graceUntil time.Time) bool {
	if !dog.Enabled() || now.Before(graceUntil) {
		return false
	}
	last := dog.lastActivity
	if last.Before(graceUntil) {
		last = graceUntil
	}
	return now.Sub(last) >= dog.Timeout
}

// HashrateWatchdog 算力低于测量值的一定百分比时重启矿机
type HashrateWatchdog struct {
	Percent   int
	sample    float64
	hasSample bool
}

func (dog *HashrateWatchdog) Enabled() bool {
	return dog.Percent > 0
}

func (dog *HashrateWatchdog) Sample(rate float64) {
	dog.sample = rate
	dog.hasSample = true
}

func (dog *HashrateWatchdog) Reset() {
	dog.sample = 0
	dog.hasSample = false
}

func (dog *HashrateWatchdog) LastSample() float64 {
	return dog.sample
}

// Underperforming 宽限期内或没有测量值时不会触发
func (dog *HashrateWatchdog) Underperforming(now time.Time, graceUntil time.Time, expected float64) bool {
	if !dog.Enabled() || !dog.hasSample || expected <= 0 || now.Before(graceUntil) {
		return false
	}
	return dog.sample*100 < expected*float64(dog.Percent)
}
