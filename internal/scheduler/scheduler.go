// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package scheduler owns every periodic timer the server needs: per-device
// keepalive re-sends (spec §4.6) and the per-session ping deadline (spec §5
// "Ping"). The teacher's own internal/scheduler is built on
// gopkg.in/robfig/cron.v2 for calendar-style schedule events; that library
// cannot express "fire once, 500ms from now, and keep sliding the deadline
// forward on activity" (see DESIGN.md), so this package is rebuilt on plain
// time.Timer while keeping the teacher's named-entry-map shape. There is no
// package-level singleton: each Manager is built explicitly with NewManager.
package scheduler

import (
	"sync"
	"time"

	"github.com/nexhw/buttplug-go/internal/common"
)

// Timer is one named, resettable deadline. Calling Reset slides the
// deadline forward without racing the fire callback; calling Stop cancels
// it permanently.
type Timer struct {
	mu       sync.Mutex
	t        *time.Timer
	interval time.Duration
	fn       func()
	stopped  bool
}

// NewTimer creates and arms a timer that calls fn after interval unless
// reset or stopped first. fn runs on the timer's own goroutine, matching
// the teacher's own job-per-goroutine cron dispatch.
func NewTimer(interval time.Duration, fn func()) *Timer {
	tm := &Timer{interval: interval, fn: fn}
	tm.t = time.AfterFunc(interval, tm.fire)
	return tm
}

func (tm *Timer) fire() {
	tm.mu.Lock()
	stopped := tm.stopped
	tm.mu.Unlock()
	if !stopped {
		tm.fn()
	}
}

// Reset slides the deadline forward by the timer's configured interval,
// matching ACM/keepalive activity (spec §4.6: any successful write resets
// the quiet-bus clock).
func (tm *Timer) Reset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.stopped {
		return
	}
	if !tm.t.Stop() {
		select {
		case <-tm.t.C:
		default:
		}
	}
	tm.t.Reset(tm.interval)
}

// Stop permanently cancels the timer. Safe to call more than once.
func (tm *Timer) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.stopped {
		return
	}
	tm.stopped = true
	tm.t.Stop()
}

// Manager tracks every named timer registered with it, mirroring the teacher's
// own entryMap lookup-by-name shape so keepalive/ping timers can be found
// and torn down by the device index or session id that owns them.
type Manager struct {
	mu     sync.Mutex
	timers map[string]*Timer
	log    common.LoggingClient
}

func NewManager(log common.LoggingClient) *Manager {
	return &Manager{timers: make(map[string]*Timer), log: log}
}

// Schedule arms a new named timer, replacing and stopping any previous
// timer registered under the same name.
func (m *Manager) Schedule(name string, interval time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.timers[name]; ok {
		existing.Stop()
	}
	m.timers[name] = NewTimer(interval, fn)
	m.log.Debug("scheduled timer " + name)
}

// Reset slides the named timer's deadline forward. A no-op if no timer by
// that name is registered.
func (m *Manager) Reset(name string) {
	m.mu.Lock()
	tm, ok := m.timers[name]
	m.mu.Unlock()
	if ok {
		tm.Reset()
	}
}

// Cancel stops and forgets the named timer.
func (m *Manager) Cancel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tm, ok := m.timers[name]; ok {
		tm.Stop()
		delete(m.timers, name)
	}
}

// StopAll cancels every registered timer, used on server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, tm := range m.timers {
		tm.Stop()
		delete(m.timers, name)
	}
}
