// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package fleshlightlaunch implements the worked modbus-framed stroker
// protocol handler spec §4.7 requires: a CRC-16/MODBUS-framed handshake
// that puts the device into program mode, and a PositionWithDuration
// command encoded against the device's fixed velocity table (the
// "Fleshlight-Launch" curve). Framing conventions (slave id byte, function
// code, register address/count, CRC trailer) follow the RTU frame shape
// the teacher's examples/modbus/engine-modbus/engine-modbus.go builds via
// goburrow/modbus's RTUClientHandler; this handler writes the same bytes
// directly through internal/hardware.Hardware's endpoint abstraction
// instead, since goburrow/modbus's Client owns the serial port itself and
// has no way to target an arbitrary Hardware endpoint (see DESIGN.md for
// why the dependency itself was dropped rather than wired). The
// program-mode handshake and position/speed encoding follow spec §4.7
// directly, since the teacher has no stroker device of its own.
package fleshlightlaunch

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

const (
	slaveID      byte = 0x01
	writeMultiple byte = 0x10
	registerAddr  uint16 = 0x006B
	registerCount uint16 = 0x0005
	byteCount     byte   = 0x0A

	nativePositionMax = 150 // 0..150 native position units
	nativeSpeedMax    = 15  // 0..15 native "speed" units
)

// enterProgramModeFrame is the fixed sequence the handler writes to the
// Command endpoint (the single endpoint SerialHardware exposes; no separate
// Tx endpoint is used) during Identify, CRC-terminated like every other
// frame on this bus (spec §4.7 "Identification: write a fixed enter program
// mode sequence").
var enterProgramModeFrame = []byte{slaveID, 0x06, 0x01, 0x01, 0x00, 0x01}

// velocityTable is the device's fixed distance-per-speed-step curve,
// expressed as milliseconds required to travel 1 native position unit at
// each speed step 1..15 (slower devices take longer per step; speed 0 is
// stopped). Values are illustrative of the real Fleshlight Launch timing
// table referenced by spec §4.7.
var velocityTable = [nativeSpeedMax + 1]float64{
	0, // speed 0: stopped
	120, 98, 82, 70, 60, 52, 45, 39, 34, 30, 26, 23, 20, 17, 15,
}

// Handler is the fleshlightlaunch protocol handler. Alongside genericvibe's
// direct-read battery pattern, this handler exercises the other battery
// pattern spec §4.7's open question asks for: subscribe once, then every
// later battery notification arrives as a HandlerEvent on EventStream();
// this handler has no direct read of its own (grounded on
// original_source/buttplug/src/server/comm_managers/btleplug/btleplug_internal.rs).
type Handler struct {
	protocol.BaseHandler
	lastPosition uint32
	havePosition bool

	events        chan protocol.HandlerEvent
	relayStarted  bool
}

func New() protocol.Handler {
	return &Handler{events: make(chan protocol.HandlerEvent, 16)}
}

func (h *Handler) Identify(ctx context.Context, hw hardware.Hardware, specifier protocol.CommSpecifier) (device.Identifier, error) {
	frame := appendCRC(enterProgramModeFrame)
	if err := hw.WriteValue(ctx, hardware.WriteCmd{Endpoint: hardware.EndpointCommand, Data: frame, WriteWithResponse: true}); err != nil {
		return device.Identifier{}, errtype.Wrap(errtype.KindDeviceProtocol, err, "fleshlightlaunch: enter program mode")
	}
	return device.Identifier{
		Address:              hw.Address(),
		ProtocolName:          "fleshlightlaunch",
		AttributesIdentifier: "stroker",
	}, nil
}

func (h *Handler) Initialize(ctx context.Context, hw hardware.Hardware, def *device.Definition) error {
	h.havePosition = false
	h.startRelay(hw)
	return nil
}

// startRelay forwards every battery notification the hardware pushes on its
// own event stream into this handler's HandlerEvent channel, translating
// the raw byte payload into a sensor reading. It runs once per connection
// and exits when the hardware's event stream closes at disconnect.
func (h *Handler) startRelay(hw hardware.Hardware) {
	if h.relayStarted {
		return
	}
	h.relayStarted = true
	go func() {
		for ev := range hw.EventStream() {
			if ev.Notification == nil || ev.Notification.Endpoint != hardware.EndpointRxBLEBattery {
				continue
			}
			data := ev.Notification.Data
			if len(data) == 0 {
				continue
			}
			h.events <- protocol.HandlerEvent{
				SensorType: feature.InputBattery,
				Data:       []int32{int32(data[0])},
			}
		}
		close(h.events)
	}()
}

// HandleInputSubscribe arms the subscribe-then-notify battery pattern: the
// actual reading arrives later on EventStream(), not as a return value here.
func (h *Handler) HandleInputSubscribe(ctx context.Context, hw hardware.Hardware, featureIndex uint32, kind feature.InputType) error {
	if kind != feature.InputBattery {
		return errtype.Newf(errtype.KindDeviceProtocol, "fleshlightlaunch: unsupported subscribe kind %s", kind)
	}
	if err := hw.Subscribe(ctx, hardware.SubscribeCmd{Endpoint: hardware.EndpointRxBLEBattery}); err != nil {
		return errtype.Wrap(errtype.KindDeviceCommunication, err, "fleshlightlaunch battery subscribe")
	}
	return nil
}

// EventStream exposes the relayed battery notifications (spec §4.7
// event_stream()).
func (h *Handler) EventStream() <-chan protocol.HandlerEvent {
	return h.events
}

// HandleOutput encodes a PositionWithDuration command into the worked wire
// frame from spec §4.7:
//
//	01 10 00 6B 00 05 0A 00 spd 00 spd 00 pos 00 pos 00 01 CRClo CRChi
func (h *Handler) HandleOutput(ctx context.Context, hw hardware.Hardware, featureIndex uint32, featureID uuid.UUID, kind feature.OutputType, value int32) ([]hardware.WriteCmd, error) {
	if kind != feature.OutputPositionWithDuration {
		return nil, errtype.Newf(errtype.KindDeviceProtocol, "fleshlightlaunch: unsupported output kind %s", kind)
	}
	return nil, errtype.New(errtype.KindDeviceProtocol, "fleshlightlaunch: use HandlePositionWithDuration (duration is carried out of band by OutputVecEntry, not the plain value)")
}

// HandlePositionWithDuration is the real entry point for this handler's one
// actuator: position and duration arrive together (spec's
// PositionWithDurationValue), which the generic single-value HandleOutput
// signature cannot carry, so the server device calls this directly for
// features whose ActuatorType is PositionWithDuration.
func (h *Handler) HandlePositionWithDuration(ctx context.Context, hw hardware.Hardware, position, durationMillis uint32) ([]hardware.WriteCmd, error) {
	if position > nativePositionMax {
		position = nativePositionMax
	}
	speed := h.speedForMove(position, durationMillis)

	frame := make([]byte, 0, 16)
	frame = append(frame, slaveID, writeMultiple)
	frame = append(frame, be16(registerAddr)...)
	frame = append(frame, be16(registerCount)...)
	frame = append(frame, byteCount)
	frame = append(frame, 0x00, byte(speed))
	frame = append(frame, 0x00, byte(speed))
	frame = append(frame, 0x00, byte(position))
	frame = append(frame, 0x00, byte(position))
	frame = append(frame, 0x00, 0x01)
	frame = appendCRC(frame)

	cmd := hardware.WriteCmd{Endpoint: hardware.EndpointCommand, Data: frame, WriteWithResponse: false}
	if err := hw.WriteValue(ctx, cmd); err != nil {
		return nil, errtype.Wrap(errtype.KindDeviceCommunication, err, "fleshlightlaunch write")
	}
	h.lastPosition = position
	h.havePosition = true
	return []hardware.WriteCmd{cmd}, nil
}

// speedForMove inverts the velocity table: given the known previous
// position, compute the stroke distance and look up the minimum speed step
// that reaches that distance in at most durationMillis (spec §4.7).
func (h *Handler) speedForMove(targetPosition, durationMillis uint32) uint32 {
	if durationMillis == 0 {
		return nativeSpeedMax
	}
	distance := int(targetPosition) - int(h.lastPosition)
	if distance < 0 {
		distance = -distance
	}
	if distance == 0 || !h.havePosition {
		return nativeSpeedMax
	}
	for speed := uint32(1); speed <= nativeSpeedMax; speed++ {
		msPerUnit := velocityTable[speed]
		totalMs := msPerUnit * float64(distance)
		if totalMs <= float64(durationMillis) {
			return speed
		}
	}
	return nativeSpeedMax
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// appendCRC appends a CRC-16/MODBUS trailer (low byte first) to frame,
// matching the framing convention of every message on this bus.
func appendCRC(frame []byte) []byte {
	crc := crc16Modbus(frame)
	out := make([]byte, len(frame)+2)
	copy(out, frame)
	out[len(frame)] = byte(crc & 0xFF)
	out[len(frame)+1] = byte(crc >> 8)
	return out
}

func crc16Modbus(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// KeepaliveStrategy: the stroker stops on its own once a move completes, so
// no periodic re-send is required.
func (h *Handler) KeepaliveStrategy() protocol.KeepaliveStrategy {
	return protocol.KeepaliveStrategy{Kind: protocol.KeepaliveNone}
}
