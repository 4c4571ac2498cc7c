// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package fleshlightlaunch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

func TestIdentifySendsCRCFramedHandshake(t *testing.T) {
	hw := hardware.NewMockHardware("launch", "aa:bb", []hardware.Endpoint{hardware.EndpointCommand})
	h := New().(*Handler)

	id, err := h.Identify(context.Background(), hw, protocol.CommSpecifier{Kind: protocol.SpecifierSerial, Address: "aa:bb"})
	require.NoError(t, err)
	assert.Equal(t, "fleshlightlaunch", id.ProtocolName)

	writes := hw.Writes()
	require.Len(t, writes, 1)
	assert.True(t, len(writes[0].Data) > len(enterProgramModeFrame), "frame should carry a 2-byte CRC trailer")
	verifyTrailingCRC(t, writes[0].Data)
}

func TestHandlePositionWithDurationEmitsWorkedFrame(t *testing.T) {
	hw := hardware.NewMockHardware("launch", "aa:bb", []hardware.Endpoint{hardware.EndpointCommand})
	h := New().(*Handler)

	cmds, err := h.HandlePositionWithDuration(context.Background(), hw, 90, 500)
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	frame := cmds[0].Data
	assert.Equal(t, slaveID, frame[0])
	assert.Equal(t, writeMultiple, frame[1])
	assert.Equal(t, byte(0x00), frame[2])
	assert.Equal(t, byte(0x6B), frame[3])
	assert.Equal(t, byteCount, frame[6])
	assert.Equal(t, byte(90), frame[12]) // position low byte, first copy
	verifyTrailingCRC(t, frame)
}

func TestHandlePositionWithDurationClampsOverMaxPosition(t *testing.T) {
	hw := hardware.NewMockHardware("launch", "aa:bb", []hardware.Endpoint{hardware.EndpointCommand})
	h := New().(*Handler)

	cmds, err := h.HandlePositionWithDuration(context.Background(), hw, 999, 500)
	require.NoError(t, err)
	assert.Equal(t, byte(nativePositionMax), cmds[0].Data[12])
}

func TestSpeedForMoveUsesMaxSpeedOnFirstMove(t *testing.T) {
	h := &Handler{}
	assert.Equal(t, uint32(nativeSpeedMax), h.speedForMove(100, 200))
}

func TestSpeedForMovePicksSlowerSpeedForLongDuration(t *testing.T) {
	h := &Handler{lastPosition: 0, havePosition: true}
	fast := h.speedForMove(100, 100)
	slow := h.speedForMove(100, 5000)
	assert.GreaterOrEqual(t, fast, slow, "a tighter duration budget should never resolve to a slower speed")
}

func TestSubscribeThenNotifyBatteryPattern(t *testing.T) {
	hw := hardware.NewMockHardware("launch", "aa:bb", []hardware.Endpoint{hardware.EndpointRxBLEBattery})
	h := New().(*Handler)
	require.NoError(t, h.Initialize(context.Background(), hw, nil))

	require.NoError(t, h.HandleInputSubscribe(context.Background(), hw, 0, feature.InputBattery))

	hw.PushNotification(hardware.Notification{Endpoint: hardware.EndpointRxBLEBattery, Data: []byte{64}})

	select {
	case ev := <-h.EventStream():
		require.Len(t, ev.Data, 1)
		assert.Equal(t, int32(64), ev.Data[0])
	case <-time.After(time.Second):
		t.Fatal("expected a relayed battery notification")
	}
}

func verifyTrailingCRC(t *testing.T, frame []byte) {
	t.Helper()
	require.True(t, len(frame) >= 2)
	payload := frame[:len(frame)-2]
	want := crc16Modbus(payload)
	got := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	assert.Equal(t, want, got)
}
