// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package devicemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/internal/scheduler"
)

func newTestManager() *Manager {
	timers := scheduler.NewManager(common.NopLoggingClient{})
	return New(nil, timers, common.NopLoggingClient{}, 0, 8)
}

func blockingSource(stop <-chan struct{}) DiscoverySource {
	return func(ctx context.Context, discovered chan<- protocol.CommSpecifier) {
		select {
		case <-ctx.Done():
		case <-stop:
		}
	}
}

// TestScanningFinishedNotEmittedWithNoRegisteredSources covers spec §4.5's
// three-part condition: StartScanning with zero registered sources never
// actually starts an epoch, so ScanningFinished must never fire (spec §7
// "Start-scanning while already scanning is a no-op, not an error" and the
// epochActive guard cover the symmetric "nothing ever ran" case).
func TestScanningFinishedNotEmittedWithNoRegisteredSources(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.NoError(t, m.StartScanning(context.Background()))

	select {
	case evt := <-m.Events():
		t.Fatalf("unexpected event with no registered sources: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestScanningFinishedEmittedOnceAfterEverySourceStops covers spec §8's
// "ScanningFinished is emitted at most once per StartScanning epoch".
func TestScanningFinishedEmittedOnceAfterEverySourceStops(t *testing.T) {
	m := newTestManager()
	stopA := make(chan struct{})
	stopB := make(chan struct{})
	m.RegisterSource(blockingSource(stopA))
	m.RegisterSource(blockingSource(stopB))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.NoError(t, m.StartScanning(context.Background()))
	close(stopA)
	close(stopB)

	select {
	case evt := <-m.Events():
		assert.True(t, evt.ScanningFinished)
	case <-time.After(time.Second):
		t.Fatal("expected a ScanningFinished event")
	}

	select {
	case evt := <-m.Events():
		t.Fatalf("unexpected second event after ScanningFinished: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestScanningFinishedWaitsForSlowestSource covers the "flapping" avoidance
// spec §4.5 describes: ScanningFinished must not fire while any source is
// still running, even after the others have already stopped.
func TestScanningFinishedWaitsForSlowestSource(t *testing.T) {
	m := newTestManager()
	stopFast := make(chan struct{})
	stopSlow := make(chan struct{})
	m.RegisterSource(blockingSource(stopFast))
	m.RegisterSource(blockingSource(stopSlow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.NoError(t, m.StartScanning(context.Background()))
	close(stopFast)

	select {
	case evt := <-m.Events():
		t.Fatalf("ScanningFinished fired before the slow source stopped: %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}

	close(stopSlow)
	select {
	case evt := <-m.Events():
		assert.True(t, evt.ScanningFinished)
	case <-time.After(time.Second):
		t.Fatal("expected ScanningFinished once the slow source finally stopped")
	}
}

// TestStopScanningIsIdempotentBeforeStart covers spec §7's "Start-scanning
// while already scanning is a no-op, not an error" sibling case: stopping
// when nothing is running must not error or deadlock the loop.
func TestStopScanningIsIdempotentBeforeStart(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	assert.NoError(t, m.StopScanning(context.Background()))
}
