// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

func sampleDefinition() *device.Definition {
	return &device.Definition{
		Name:        "Test Vibe",
		DisplayName: "",
		Identifier:  device.Identifier{Address: "aa", ProtocolName: "genericvibe"},
		Features: []feature.Feature{
			{
				ID:          uuid.New(),
				Description: "Vibrator",
				FeatureType: feature.TypeVibrate,
				Output: map[feature.OutputType]feature.ActuatorSpec{
					feature.OutputVibrate: {StepRange: feature.StepRange{Start: 0, End: 20}, StepLimit: feature.StepRange{Start: 0, End: 20}},
				},
			},
		},
	}
}

func TestBuildDeviceAddedProjectsFeatures(t *testing.T) {
	def := sampleDefinition()
	added := BuildDeviceAdded(1, 3, def)

	assert.Equal(t, uint32(3), added.DeviceIndex)
	assert.Equal(t, "Test Vibe", added.DisplayName)
	require.Len(t, added.Features, 1)
	assert.Equal(t, feature.TypeVibrate, added.Features[0].FeatureType)
}

func TestBuildDeviceRemoved(t *testing.T) {
	removed := BuildDeviceRemoved(2, 3)
	assert.Equal(t, uint32(3), removed.DeviceIndex)
}

func TestDeviceListEntriesCoversEveryDevice(t *testing.T) {
	defs := map[uint32]*device.Definition{
		0: sampleDefinition(),
		1: sampleDefinition(),
	}
	entries := DeviceListEntries(defs)
	assert.Len(t, entries, 2)
}
