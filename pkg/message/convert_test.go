// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

func twoVibeDevice() *device.Definition {
	spec := feature.ActuatorSpec{StepRange: feature.StepRange{Start: 0, End: 20}, StepLimit: feature.StepRange{Start: 0, End: 20}}
	return &device.Definition{
		Name:       "Test Vibe",
		Identifier: device.Identifier{Address: "aa", ProtocolName: "genericvibe"},
		Features: []feature.Feature{
			{ID: uuid.New(), FeatureType: feature.TypeVibrate, Output: map[feature.OutputType]feature.ActuatorSpec{feature.OutputVibrate: spec}},
			{ID: uuid.New(), FeatureType: feature.TypeVibrate, Output: map[feature.OutputType]feature.ActuatorSpec{feature.OutputVibrate: spec}},
		},
	}
}

// TestUpgradeVibrateCmdScalesIntoStepLimit covers spec §8's concrete
// scenario 4: a v2 VibrateCmd against a two-feature device with step_limit
// 0..20 must scale 0.5 and 0.75 to 10 and 15.
func TestUpgradeVibrateCmdScalesIntoStepLimit(t *testing.T) {
	def := twoVibeDevice()
	cmd := VibrateCmd{Id: 5, DeviceIndex: 0, Speeds: []VibrateSubcommand{
		{Index: 0, Speed: 0.5},
		{Index: 1, Speed: 0.75},
	}}

	checked, err := UpgradeVibrateCmd(cmd, 0, def)
	require.NoError(t, err)

	outputs := checked.Outputs()
	require.Len(t, outputs, 2)
	v0, _, _ := outputs[0].OutputCommand.Kind()
	assert.Equal(t, feature.OutputVibrate, v0)
	_, val0, _ := outputs[0].OutputCommand.Kind()
	_, val1, _ := outputs[1].OutputCommand.Kind()
	assert.Equal(t, uint32(10), val0)
	assert.Equal(t, uint32(15), val1)
}

func TestUpgradeVibrateCmdRejectsOutOfRangeIndex(t *testing.T) {
	def := twoVibeDevice()
	cmd := VibrateCmd{Id: 1, DeviceIndex: 0, Speeds: []VibrateSubcommand{{Index: 9, Speed: 0.5}}}

	_, err := UpgradeVibrateCmd(cmd, 0, def)
	assert.Error(t, err)
}

// TestCheckOutputCmdEnforcesStepLimit covers spec §8's step-limit clamping
// testable property: a value outside [step_limit.start, step_limit.end]
// must be rejected, never silently clamped.
func TestCheckOutputCmdEnforcesStepLimit(t *testing.T) {
	def := twoVibeDevice()
	tooHigh := uint32(21)
	cmd := OutputCmd{Id: 1, DeviceIndex: 0, FeatureIndex: 0, OutputCommand: OutputCommand{Vibrate: &tooHigh}}

	_, err := CheckOutputCmd(cmd, def)
	require.Error(t, err)
}

func TestCheckOutputCmdAcceptsBoundaryValue(t *testing.T) {
	def := twoVibeDevice()
	boundary := uint32(20)
	cmd := OutputCmd{Id: 1, DeviceIndex: 0, FeatureIndex: 0, OutputCommand: OutputCommand{Vibrate: &boundary}}

	checked, err := CheckOutputCmd(cmd, def)
	require.NoError(t, err)
	require.Len(t, checked.Outputs(), 1)
}

func TestCheckOutputCmdRejectsUnsupportedFeatureKind(t *testing.T) {
	def := twoVibeDevice()
	v := uint32(1)
	cmd := OutputCmd{Id: 1, DeviceIndex: 0, FeatureIndex: 0, OutputCommand: OutputCommand{Rotate: &v}}

	_, err := CheckOutputCmd(cmd, def)
	assert.Error(t, err)
}

func TestCheckOutputCmdRejectsUnknownDeviceFeatureIndex(t *testing.T) {
	def := twoVibeDevice()
	v := uint32(1)
	cmd := OutputCmd{Id: 1, DeviceIndex: 0, FeatureIndex: 99, OutputCommand: OutputCommand{Vibrate: &v}}

	_, err := CheckOutputCmd(cmd, def)
	assert.Error(t, err)
}

// TestUpgradeSingleMotorVibrateCmdExpandsToEveryVibrateFeature covers spec
// §4.1's "legacy single-motor ... commands that target all features of a
// given type expand to one checked sub-command per matching feature".
func TestUpgradeSingleMotorVibrateCmdExpandsToEveryVibrateFeature(t *testing.T) {
	def := twoVibeDevice()
	cmd := SingleMotorVibrateCmd{Id: 1, DeviceIndex: 0, Speed: 1.0}

	checked, err := UpgradeSingleMotorVibrateCmd(cmd, 0, def)
	require.NoError(t, err)
	assert.Len(t, checked.Outputs(), 2)
}

// TestRoundTripVibrateThroughScalarPreservesValue covers spec §8's
// cross-version round-trip property: translating a v1 VibrateCmd up to v4
// and a v3 ScalarCmd carrying the same native value up to v4 must produce
// the same wire action against the same device catalog.
func TestRoundTripVibrateThroughScalarPreservesValue(t *testing.T) {
	def := twoVibeDevice()

	viaV1, err := UpgradeVibrateCmd(VibrateCmd{Id: 1, DeviceIndex: 0, Speeds: []VibrateSubcommand{{Index: 0, Speed: 0.5}}}, 0, def)
	require.NoError(t, err)

	viaV3, err := UpgradeScalarCmd(ScalarCmd{Id: 2, DeviceIndex: 0, Scalars: []ScalarSubcommand{{Index: 0, ActuatorType: feature.OutputVibrate, Scalar: 0.5}}}, 0, def)
	require.NoError(t, err)

	_, v1Val, _ := viaV1.Outputs()[0].OutputCommand.Kind()
	_, v3Val, _ := viaV3.Outputs()[0].OutputCommand.Kind()
	assert.Equal(t, v1Val, v3Val)
}
