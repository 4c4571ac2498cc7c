// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package genericvibe

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

func TestHandleOutputVibrateWritesSingleByte(t *testing.T) {
	hw := hardware.NewMockHardware("toy", "aa:bb", []hardware.Endpoint{hardware.EndpointTxVibrate})
	h := New()

	cmds, err := h.HandleOutput(context.Background(), hw, 0, uuid.Nil, feature.OutputVibrate, 42)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, []byte{42}, cmds[0].Data)
	assert.Equal(t, hardware.EndpointTxVibrate, cmds[0].Endpoint)

	writes := hw.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, byte(42), writes[0].Data[0])
}

func TestHandleOutputRejectsUnsupportedKind(t *testing.T) {
	hw := hardware.NewMockHardware("toy", "aa:bb", []hardware.Endpoint{hardware.EndpointTxVibrate})
	h := New()

	_, err := h.HandleOutput(context.Background(), hw, 0, uuid.Nil, feature.OutputRotate, 1)
	assert.Error(t, err)
}

func TestHandleInputReadDirect(t *testing.T) {
	hw := hardware.NewMockHardware("toy", "aa:bb", []hardware.Endpoint{hardware.EndpointRxBLEBattery})
	hw.SetReadResponse(hardware.EndpointRxBLEBattery, []byte{77})
	h := New()

	vals, err := h.HandleInputRead(context.Background(), hw, 0, feature.InputBattery)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, int32(77), vals[0])
}

func TestKeepaliveStrategyRepeatsLastPacket(t *testing.T) {
	h := New()
	strat := h.KeepaliveStrategy()
	assert.Equal(t, protocol.KeepaliveRepeatLastPacket, strat.Kind)
	assert.NotZero(t, strat.Interval)
}
