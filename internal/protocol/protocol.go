// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the per-vendor Handler interface (spec §4.7) and
// ships two concrete handlers exercising its two wire shapes: a
// handshake-free multi-vibrator handler and the worked modbus-framed
// stroker example. Per spec §9 ("Avoid deep inheritance -- a handler is a
// pure struct implementing one interface"), Handler has default no-op
// implementations in BaseHandler; concrete handlers embed it and override
// only the capabilities they actually have.
package protocol

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

// SpecifierKind is the closed set of communication specifier variants a
// comm manager may report a device match against (spec §6.3).
type SpecifierKind string

const (
	SpecifierBluetoothLE    SpecifierKind = "BluetoothLE"
	SpecifierSerial         SpecifierKind = "Serial"
	SpecifierUSB            SpecifierKind = "USB"
	SpecifierHID            SpecifierKind = "HID"
	SpecifierLovenseConnect SpecifierKind = "LovenseConnect"
	SpecifierWebsocketServer SpecifierKind = "WebsocketServer"
)

// CommSpecifier is the structured descriptor a hardware comm manager
// reports a candidate device against (spec §6.3, §4.5 step 4).
type CommSpecifier struct {
	Kind    SpecifierKind
	Name    string // e.g. a BLE advertised name, a USB VID:PID string
	Address string
}

// KeepaliveKind is the closed set of keepalive strategies a handler may
// declare (spec §4.6).
type KeepaliveKind int

const (
	KeepaliveNone KeepaliveKind = iota
	KeepaliveRepeatLastPacket
	KeepaliveHardwareRequiredRepeatPacket
)

// KeepaliveStrategy tells the server device whether, and how, to re-send
// traffic when the hardware has gone quiet for Interval (spec §4.6).
type KeepaliveStrategy struct {
	Kind     KeepaliveKind
	Interval time.Duration
	Packet   hardware.WriteCmd // only meaningful for HardwareRequiredRepeatPacket
}

// HandlerEvent is an asynchronous notification a handler pushes on its own
// initiative -- e.g. a BLE device broadcasting battery level on its Rx
// characteristic without being asked (spec §4.7 event_stream()).
type HandlerEvent struct {
	FeatureIndex uint32
	SensorType   feature.InputType
	Data         []int32
}

// Handler is the per-vendor translator from abstract commands to Hardware
// reads/writes (spec §4.7).
type Handler interface {
	Identify(ctx context.Context, hw hardware.Hardware, specifier CommSpecifier) (device.Identifier, error)
	Initialize(ctx context.Context, hw hardware.Hardware, def *device.Definition) error

	HandleOutput(ctx context.Context, hw hardware.Hardware, featureIndex uint32, featureID uuid.UUID, kind feature.OutputType, value int32) ([]hardware.WriteCmd, error)
	HandleInputRead(ctx context.Context, hw hardware.Hardware, featureIndex uint32, kind feature.InputType) ([]int32, error)
	HandleInputSubscribe(ctx context.Context, hw hardware.Hardware, featureIndex uint32, kind feature.InputType) error

	KeepaliveStrategy() KeepaliveStrategy
	EventStream() <-chan HandlerEvent
}

// BaseHandler implements every Handler method as a no-op / "not supported"
// stub. Concrete handlers embed it and override only what they implement.
type BaseHandler struct{}

func (BaseHandler) Identify(ctx context.Context, hw hardware.Hardware, specifier CommSpecifier) (device.Identifier, error) {
	return device.Identifier{}, errtype.New(errtype.KindDeviceProtocol, "handler does not implement Identify")
}

func (BaseHandler) Initialize(ctx context.Context, hw hardware.Hardware, def *device.Definition) error {
	return nil
}

func (BaseHandler) HandleOutput(ctx context.Context, hw hardware.Hardware, featureIndex uint32, featureID uuid.UUID, kind feature.OutputType, value int32) ([]hardware.WriteCmd, error) {
	return nil, errtype.Newf(errtype.KindDeviceProtocol, "handler does not implement output kind %s", kind)
}

func (BaseHandler) HandleInputRead(ctx context.Context, hw hardware.Hardware, featureIndex uint32, kind feature.InputType) ([]int32, error) {
	return nil, errtype.Newf(errtype.KindDeviceProtocol, "handler does not implement input read %s", kind)
}

func (BaseHandler) HandleInputSubscribe(ctx context.Context, hw hardware.Hardware, featureIndex uint32, kind feature.InputType) error {
	return errtype.Newf(errtype.KindDeviceProtocol, "handler does not implement input subscribe %s", kind)
}

func (BaseHandler) KeepaliveStrategy() KeepaliveStrategy { return KeepaliveStrategy{Kind: KeepaliveNone} }

func (BaseHandler) EventStream() <-chan HandlerEvent { return nil }

// Factory builds a fresh Handler instance for one device connection; the
// device-configuration manager holds one Factory per protocol name.
type Factory func() Handler

// PositionWithDurationHandler is an optional extension a Handler may
// implement for devices with a PositionWithDuration actuator (spec §4.7's
// worked example): the wire value carries both a position and a duration,
// which HandleOutput's single int32 value cannot express, so the server
// device type-asserts for this interface rather than widening the common
// Handler signature for every protocol that doesn't need it.
type PositionWithDurationHandler interface {
	HandlePositionWithDuration(ctx context.Context, hw hardware.Hardware, position, durationMillis uint32) ([]hardware.WriteCmd, error)
}
