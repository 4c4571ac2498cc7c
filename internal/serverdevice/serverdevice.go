// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package serverdevice wraps one connected device's hardware, protocol
// handler and ACM into the single object the device manager and the
// message dispatcher (internal/handler) operate against (spec §4.6,
// §4.7). Grounded on the teacher's per-device driver wrapper shape in
// internal/controller (one object per physical device combining the
// ProtocolDriver and its cached attributes).
package serverdevice

import (
	"context"
	"fmt"
	"time"

	"github.com/nexhw/buttplug-go/internal/acm"
	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/internal/scheduler"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
	"github.com/nexhw/buttplug-go/pkg/message"
)

// Device is one connected, addressable device: its definition, its
// transport, the protocol handler translating commands to that transport,
// and the ACM debouncing commands before they reach it.
type Device struct {
	Index   uint32
	Def     *device.Definition
	hw      hardware.Hardware
	handler protocol.Handler
	acm     *acm.ACM
	timers  *scheduler.Manager
	log     common.LoggingClient

	keepaliveInterval time.Duration
}

// New wraps a newly connected device and arms its keepalive strategy, if
// the handler declares one (spec §4.6).
func New(index uint32, def *device.Definition, hw hardware.Hardware, handler protocol.Handler, timers *scheduler.Manager, log common.LoggingClient) *Device {
	d := &Device{
		Index:   index,
		Def:     def,
		hw:      hw,
		handler: handler,
		acm:     acm.New(def.Features),
		timers:  timers,
		log:     log,
	}
	d.armKeepalive()
	return d
}

func (d *Device) keepaliveTimerName() string {
	return fmt.Sprintf("keepalive:%d", d.Index)
}

func (d *Device) armKeepalive() {
	strat := d.handler.KeepaliveStrategy()
	if strat.Kind == protocol.KeepaliveNone {
		return
	}
	d.keepaliveInterval = strat.Interval
	d.timers.Schedule(d.keepaliveTimerName(), strat.Interval, d.onKeepaliveFire)
}

// onKeepaliveFire re-sends every actuator's last known value once the bus
// has gone quiet for the handler's declared interval, then re-arms itself
// for the next interval (spec §4.6 keepalive).
func (d *Device) onKeepaliveFire() {
	for _, c := range d.acm.Snapshot() {
		if err := d.writeOutput(context.Background(), c); err != nil {
			d.log.Warn(fmt.Sprintf("keepalive resend failed for device %d feature %d: %v", d.Index, c.FeatureIndex, err))
		}
	}
	d.timers.Schedule(d.keepaliveTimerName(), d.keepaliveInterval, d.onKeepaliveFire)
}

// HandleOutputVec applies a validated batch of output commands: the ACM
// debounces and expands match-all kinds, then each surviving command is
// written through the protocol handler (spec §4.6 step-by-step order).
func (d *Device) HandleOutputVec(ctx context.Context, cmd message.CheckedOutputVecCmd) error {
	var linear []message.OutputVecEntry
	var plain []acm.Command
	for _, entry := range cmd.Outputs() {
		if entry.OutputCommand.PositionWithDuration != nil {
			linear = append(linear, entry)
			continue
		}
		if kind, value, ok := entry.OutputCommand.Kind(); ok {
			plain = append(plain, acm.Command{FeatureIndex: entry.FeatureIndex, ActuatorType: kind, Value: int32(value)})
		}
	}

	for _, c := range d.acm.Update(plain) {
		if err := d.writeOutput(ctx, c); err != nil {
			return err
		}
	}
	for _, entry := range linear {
		if err := d.writePositionWithDuration(ctx, entry); err != nil {
			return err
		}
	}
	d.ensureKeepaliveArmed()
	return nil
}

// ensureKeepaliveArmed (re-)schedules the keepalive timer after traffic.
// Re-scheduling rather than merely resetting also covers the case where
// HandleStop previously cancelled the timer: any later output command puts
// it back in service.
func (d *Device) ensureKeepaliveArmed() {
	if d.keepaliveInterval <= 0 {
		return
	}
	d.timers.Schedule(d.keepaliveTimerName(), d.keepaliveInterval, d.onKeepaliveFire)
}

func (d *Device) writeOutput(ctx context.Context, c acm.Command) error {
	f, ok := d.Def.FeatureByIndex(c.FeatureIndex)
	if !ok {
		return errtype.NewDeviceFeatureMismatch(d.Index, c.FeatureIndex, "unknown feature index")
	}
	var featureID = f.ID
	_, err := d.handler.HandleOutput(ctx, d.hw, c.FeatureIndex, featureID, c.ActuatorType, c.Value)
	return err
}

func (d *Device) writePositionWithDuration(ctx context.Context, entry message.OutputVecEntry) error {
	lh, ok := d.handler.(protocol.PositionWithDurationHandler)
	if !ok {
		return errtype.Newf(errtype.KindDeviceProtocol, "device %d does not support PositionWithDuration", d.Index)
	}
	v := entry.OutputCommand.PositionWithDuration
	_, err := lh.HandlePositionWithDuration(ctx, d.hw, v.Position, v.Duration)
	return err
}

// HandleStop zeroes every tracked actuator, bypassing debouncing entirely
// (spec §4.6 "Stop commands"): a stop must always reach the wire even if
// the last known value was already zero.
func (d *Device) HandleStop(ctx context.Context) error {
	for _, c := range d.acm.StopCommands() {
		if err := d.writeOutput(ctx, c); err != nil {
			return err
		}
	}
	d.timers.Cancel(d.keepaliveTimerName())
	return nil
}

// HandleInputRead performs a direct sensor read through the protocol
// handler (spec §4.7's "direct read" battery pattern).
func (d *Device) HandleInputRead(ctx context.Context, featureIndex uint32, kind feature.InputType) ([]int32, error) {
	if _, ok := d.Def.FeatureByIndex(featureIndex); !ok {
		return nil, errtype.NewDeviceFeatureMismatch(d.Index, featureIndex, "unknown feature index")
	}
	return d.handler.HandleInputRead(ctx, d.hw, featureIndex, kind)
}

// HandleInputSubscribe arms the subscribe-then-notify pattern; the actual
// reading arrives later via the handler's EventStream.
func (d *Device) HandleInputSubscribe(ctx context.Context, featureIndex uint32, kind feature.InputType) error {
	if _, ok := d.Def.FeatureByIndex(featureIndex); !ok {
		return errtype.NewDeviceFeatureMismatch(d.Index, featureIndex, "unknown feature index")
	}
	return d.handler.HandleInputSubscribe(ctx, d.hw, featureIndex, kind)
}

// EventStream exposes the handler's asynchronous sensor notifications.
func (d *Device) EventStream() <-chan protocol.HandlerEvent {
	return d.handler.EventStream()
}

// Disconnect tears down the keepalive timer and the underlying transport.
func (d *Device) Disconnect() error {
	d.timers.Cancel(d.keepaliveTimerName())
	return d.hw.Disconnect()
}

// StopKeepalive cancels the keepalive timer without touching the
// underlying transport, for the case where the hardware has already
// disconnected on its own (its event stream closed) and re-calling
// Disconnect would double-close it.
func (d *Device) StopKeepalive() {
	d.timers.Cancel(d.keepaliveTimerName())
}
