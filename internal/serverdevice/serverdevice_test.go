// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package serverdevice

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/internal/protocol/genericvibe"
	"github.com/nexhw/buttplug-go/internal/scheduler"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/feature"
	"github.com/nexhw/buttplug-go/pkg/message"
)

func newTestDevice() (*Device, *hardware.MockHardware, *device.Definition) {
	def := &device.Definition{
		Name:       "Test Vibe",
		Identifier: device.Identifier{Address: "aa", ProtocolName: "genericvibe"},
		Features: []feature.Feature{
			{
				ID:          uuid.New(),
				FeatureType: feature.TypeVibrate,
				Output: map[feature.OutputType]feature.ActuatorSpec{
					feature.OutputVibrate: {StepRange: feature.StepRange{Start: 0, End: 20}, StepLimit: feature.StepRange{Start: 0, End: 20}},
				},
			},
		},
	}
	hw := hardware.NewMockHardware("toy", "aa", []hardware.Endpoint{hardware.EndpointTxVibrate, hardware.EndpointRxBLEBattery})
	h := genericvibe.New()
	timers := scheduler.NewManager(common.NopLoggingClient{})
	d := New(0, def, hw, h, timers, common.NopLoggingClient{})
	return d, hw, def
}

func outputVecCmd(t *testing.T, def *device.Definition, value uint32) message.CheckedOutputVecCmd {
	t.Helper()
	cmd, err := message.CheckOutputVecCmd(message.OutputVecCmd{
		Id:          1,
		DeviceIndex: 0,
		Outputs: []message.OutputVecEntry{
			{FeatureIndex: 0, OutputCommand: message.OutputCommand{Vibrate: &value}},
		},
	}, def)
	require.NoError(t, err)
	return cmd
}

func TestHandleOutputVecWritesThroughHandler(t *testing.T) {
	d, hw, def := newTestDevice()

	err := d.HandleOutputVec(context.Background(), outputVecCmd(t, def, 10))
	require.NoError(t, err)

	writes := hw.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, byte(10), writes[0].Data[0])
}

func TestHandleOutputVecDebouncesRepeatedValue(t *testing.T) {
	d, hw, def := newTestDevice()
	cmd := outputVecCmd(t, def, 10)

	require.NoError(t, d.HandleOutputVec(context.Background(), cmd))
	require.NoError(t, d.HandleOutputVec(context.Background(), cmd))

	assert.Len(t, hw.Writes(), 1, "an identical repeat command must be debounced by the ACM")
}

func TestHandleStopZeroesEveryActuator(t *testing.T) {
	d, hw, def := newTestDevice()
	require.NoError(t, d.HandleOutputVec(context.Background(), outputVecCmd(t, def, 10)))

	require.NoError(t, d.HandleStop(context.Background()))

	writes := hw.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, byte(0), writes[1].Data[0])
}

func TestHandleInputReadDirect(t *testing.T) {
	d, hw, _ := newTestDevice()
	hw.SetReadResponse(hardware.EndpointRxBLEBattery, []byte{55})

	vals, err := d.HandleInputRead(context.Background(), 0, feature.InputBattery)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, int32(55), vals[0])
}

func TestHandleInputReadRejectsUnknownFeature(t *testing.T) {
	d, _, _ := newTestDevice()
	_, err := d.HandleInputRead(context.Background(), 99, feature.InputBattery)
	assert.Error(t, err)
}
