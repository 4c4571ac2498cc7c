// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package acm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/pkg/feature"
)

func twoVibeFeatures() []feature.Feature {
	spec := feature.ActuatorSpec{StepRange: feature.StepRange{Start: 0, End: 20}, StepLimit: feature.StepRange{Start: 0, End: 20}}
	return []feature.Feature{
		{FeatureType: feature.TypeVibrate, Output: map[feature.OutputType]feature.ActuatorSpec{feature.OutputVibrate: spec}},
		{FeatureType: feature.TypeVibrate, Output: map[feature.OutputType]feature.ActuatorSpec{feature.OutputVibrate: spec}},
	}
}

func TestUpdateWritesFirstCommand(t *testing.T) {
	a := New(twoVibeFeatures())

	out := a.Update([]Command{{FeatureIndex: 0, ActuatorType: feature.OutputVibrate, Value: 10}})

	require.Len(t, out, 1)
	assert.Equal(t, int32(10), out[0].Value)
}

func TestUpdateDebouncesRepeatedValue(t *testing.T) {
	a := New(twoVibeFeatures())
	cmd := []Command{{FeatureIndex: 0, ActuatorType: feature.OutputVibrate, Value: 10}}

	require.Len(t, a.Update(cmd), 1)
	assert.Empty(t, a.Update(cmd), "an identical repeat must produce zero writes")
}

func TestUpdateReSendsOnChangedValue(t *testing.T) {
	a := New(twoVibeFeatures())
	require.Len(t, a.Update([]Command{{FeatureIndex: 0, ActuatorType: feature.OutputVibrate, Value: 10}}), 1)

	out := a.Update([]Command{{FeatureIndex: 0, ActuatorType: feature.OutputVibrate, Value: 15}})
	require.Len(t, out, 1)
	assert.Equal(t, int32(15), out[0].Value)
}

// TestUpdateMatchAllReSendsUntouchedSiblingFeature covers spec §4.6's
// match_all rule and spec §8's "match-all re-emits both" testable property:
// vibrate commands require every channel on the wire together, so when one
// feature's value changes the other feature's last value must be included
// even though this Update call targets only one of them.
func TestUpdateMatchAllReSendsUntouchedSiblingFeature(t *testing.T) {
	a := New(twoVibeFeatures())
	require.Len(t, a.Update([]Command{
		{FeatureIndex: 0, ActuatorType: feature.OutputVibrate, Value: 10},
		{FeatureIndex: 1, ActuatorType: feature.OutputVibrate, Value: 5},
	}), 2)

	out := a.Update([]Command{{FeatureIndex: 0, ActuatorType: feature.OutputVibrate, Value: 12}})

	require.Len(t, out, 2, "feature 1's unchanged value must be re-emitted alongside feature 0's new one")
	byIndex := map[uint32]int32{}
	for _, c := range out {
		byIndex[c.FeatureIndex] = c.Value
	}
	assert.Equal(t, int32(12), byIndex[0])
	assert.Equal(t, int32(5), byIndex[1])
}

func TestUpdateIgnoresUnknownFeature(t *testing.T) {
	a := New(twoVibeFeatures())
	out := a.Update([]Command{{FeatureIndex: 99, ActuatorType: feature.OutputVibrate, Value: 1}})
	assert.Empty(t, out)
}

func TestStopCommandsZeroEveryTrackedActuator(t *testing.T) {
	a := New(twoVibeFeatures())
	a.Update([]Command{
		{FeatureIndex: 0, ActuatorType: feature.OutputVibrate, Value: 10},
		{FeatureIndex: 1, ActuatorType: feature.OutputVibrate, Value: 5},
	})

	stops := a.StopCommands()
	require.Len(t, stops, 2)
	for _, c := range stops {
		assert.Equal(t, int32(0), c.Value)
	}
}

func TestSnapshotOmitsNeverSentActuators(t *testing.T) {
	a := New(twoVibeFeatures())
	a.Update([]Command{{FeatureIndex: 0, ActuatorType: feature.OutputVibrate, Value: 10}})

	snap := a.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint32(0), snap[0].FeatureIndex)
}
