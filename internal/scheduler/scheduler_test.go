// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nexhw/buttplug-go/internal/common"
)

func TestScheduleFiresAfterInterval(t *testing.T) {
	m := NewManager(common.NopLoggingClient{})
	var fired int32
	m.Schedule("keepalive:0", 20*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestResetSlidesDeadlineForward(t *testing.T) {
	m := NewManager(common.NopLoggingClient{})
	var fired int32
	m.Schedule("ping", 40*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })

	time.Sleep(20 * time.Millisecond)
	m.Reset("ping") // slides the deadline, so it must not fire at the original 40ms mark

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "reset should have postponed the fire")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestCancelPreventsFire(t *testing.T) {
	m := NewManager(common.NopLoggingClient{})
	var fired int32
	m.Schedule("keepalive:1", 20*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	m.Cancel("keepalive:1")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestStopAllCancelsEveryTimer(t *testing.T) {
	m := NewManager(common.NopLoggingClient{})
	var fired int32
	m.Schedule("a", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	m.Schedule("b", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	m.StopAll()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
