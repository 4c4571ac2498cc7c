// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package devicemanager implements the device manager event loop (spec
// §4.5): it owns the set of hardware comm managers, the scanning-state
// arbitration, the discovery-to-connect pipeline, and the per-device
// command dispatch surface (StartScanning/StopScanning/output/input/stop).
// Everything but the connected-device map (internal/cache, the sole
// cross-loop exception per spec §5) is loop-local state, reached only
// through the single goroutine Run starts; callers synchronize with it by
// posting closures onto an internal work channel and waiting for them to
// finish, the same request/reply-over-a-channel shape the teacher's own
// internal/scheduler.Manager uses for its named-timer map.
package devicemanager

import (
	"context"
	"fmt"
	"time"

	"github.com/nexhw/buttplug-go/internal/cache"
	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/config"
	"github.com/nexhw/buttplug-go/internal/hardware"
	"github.com/nexhw/buttplug-go/internal/protocol"
	"github.com/nexhw/buttplug-go/internal/scheduler"
	"github.com/nexhw/buttplug-go/internal/serverdevice"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
	"github.com/nexhw/buttplug-go/pkg/message"
)

// DiscoverySource is the shape every hardware comm manager exposes to the
// device manager (spec §4.5 "events from hardware comm managers"): push a
// CommSpecifier for every candidate device found until ctx is cancelled,
// then return. internal/clients.LovenseConnectClient.Run already has this
// exact signature as a method value.
type DiscoverySource func(ctx context.Context, discovered chan<- protocol.CommSpecifier)

// HardwareConnector opens the physical transport for a matched
// CommSpecifier (spec §4.8's HardwareConnector/HardwareSpecializer pair,
// collapsed into one method since this module's connectors need no
// separate specialize step beyond picking endpoints from static config).
type HardwareConnector interface {
	Open(ctx context.Context, specifier protocol.CommSpecifier, messageGap time.Duration) (hardware.Hardware, error)
}

// SerialConnector is the HardwareConnector behind the worked serial
// backend (spec §4.8, internal/hardware.SerialHardware): it opens the
// specifier's Address as a serial port using one fixed line configuration,
// since the single worked protocol handler (the modbus-framed stroker)
// needs no per-device baud negotiation.
type SerialConnector struct {
	Config hardware.SerialConfig
}

func (c SerialConnector) Open(ctx context.Context, specifier protocol.CommSpecifier, messageGap time.Duration) (hardware.Hardware, error) {
	cfg := c.Config
	cfg.Address = specifier.Address
	return hardware.OpenSerialHardware(specifier.Name, cfg, messageGap)
}

// Event is one lifecycle notification the device manager emits (spec §4.5
// "events"); exactly one field is set.
type Event struct {
	Connected        *serverdevice.Device
	Disconnected     *DisconnectedEvent
	ScanningFinished bool
	Notification     *NotificationEvent
}

type DisconnectedEvent struct {
	Index uint32
}

type NotificationEvent struct {
	Index        uint32
	HandlerEvent protocol.HandlerEvent
}

type deviceNotification struct {
	index uint32
	event protocol.HandlerEvent
}

// Manager is the device manager event loop. Construct with New, register
// comm managers and hardware connectors, then call Run in its own
// goroutine.
type Manager struct {
	cfg        *config.DeviceConfigManager
	connectors map[protocol.SpecifierKind]HardwareConnector
	sources    []DiscoverySource
	timers     *scheduler.Manager
	log        common.LoggingClient
	messageGap time.Duration

	discovered    chan protocol.CommSpecifier
	sourceDone    chan struct{}
	hwDisconnect  chan uint32
	notifications chan deviceNotification
	work          chan func()
	events        chan Event
	closed        chan struct{}

	devices map[uint32]*serverdevice.Device

	scanCancel        context.CancelFunc
	bringupInProgress bool
	epochActive       bool
	sourcesRunning    int
}

// New builds a Manager. cfg must already have its base (and optional user)
// device configuration loaded and every protocol handler factory
// registered. messageGap is the default inter-write spacing (spec §4.8)
// applied to hardware opened through connectors that don't set their own.
func New(cfg *config.DeviceConfigManager, timers *scheduler.Manager, log common.LoggingClient, messageGap time.Duration, eventBuffer int) *Manager {
	if eventBuffer <= 0 {
		eventBuffer = common.DefaultChannelSize
	}
	return &Manager{
		cfg:           cfg,
		connectors:    make(map[protocol.SpecifierKind]HardwareConnector),
		timers:        timers,
		log:           log,
		messageGap:    messageGap,
		discovered:    make(chan protocol.CommSpecifier, common.DefaultChannelSize),
		sourceDone:    make(chan struct{}, 16),
		hwDisconnect:  make(chan uint32, 16),
		notifications: make(chan deviceNotification, common.DefaultChannelSize),
		work:          make(chan func()),
		events:        make(chan Event, eventBuffer),
		closed:        make(chan struct{}),
		devices:       make(map[uint32]*serverdevice.Device),
	}
}

// RegisterConnector wires a HardwareConnector for one communication
// specifier kind (e.g. Serial). Must be called before Run.
func (m *Manager) RegisterConnector(kind protocol.SpecifierKind, connector HardwareConnector) {
	m.connectors[kind] = connector
}

// RegisterSource adds a hardware comm manager's discovery loop. Must be
// called before Run.
func (m *Manager) RegisterSource(source DiscoverySource) {
	m.sources = append(m.sources, source)
}

// Events returns the lifecycle event stream the server-side dispatch layer
// (internal/handler) consumes to build DeviceAdded/DeviceRemoved/
// ScanningFinished/SensorReading/RawReading push messages.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Run is the event loop itself; call it in its own goroutine. It returns
// once ctx is cancelled and shutdown has completed (spec §4.5 "Shutdown").
func (m *Manager) Run(ctx context.Context) {
	defer close(m.closed)
	defer close(m.events)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case specifier := <-m.discovered:
			m.handleDiscovered(ctx, specifier)
		case <-m.sourceDone:
			m.sourcesRunning--
			m.maybeEmitScanningFinished()
		case index := <-m.hwDisconnect:
			m.disconnectByHardwareLocal(index)
		case note := <-m.notifications:
			m.pushEvent(Event{Notification: &NotificationEvent{Index: note.index, HandlerEvent: note.event}})
		case fn := <-m.work:
			fn()
		}
	}
}

// doSync posts fn onto the loop's work channel and waits for it to finish,
// giving external callers a normal blocking call while every state mutation
// still happens on the single loop goroutine (spec §5 "no shared mutable
// state is accessed from outside the owning loop").
func (m *Manager) doSync(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.work <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return errtype.New(errtype.KindConnector, "device manager is shutting down")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return errtype.New(errtype.KindConnector, "device manager is shutting down")
	}
}

func (m *Manager) pushEvent(evt Event) {
	select {
	case m.events <- evt:
	case <-m.closed:
	}
}

// --- scanning arbitration (spec §4.5) ---

// StartScanning launches every registered discovery source for a fresh
// scanning epoch. Calling it while an epoch is already active is a no-op.
func (m *Manager) StartScanning(ctx context.Context) error {
	return m.doSync(ctx, func() { m.startScanningLocal(ctx) })
}

func (m *Manager) startScanningLocal(parent context.Context) {
	if m.scanCancel != nil {
		return
	}
	scanCtx, cancel := context.WithCancel(parent)
	m.scanCancel = cancel
	m.bringupInProgress = true

	started := 0
	for _, source := range m.sources {
		started++
		m.sourcesRunning++
		go func(src DiscoverySource) {
			src(scanCtx, m.discovered)
			m.sourceDone <- struct{}{}
		}(source)
	}
	if started > 0 {
		m.epochActive = true
	}
	m.bringupInProgress = false
	m.maybeEmitScanningFinished()
}

// StopScanning signals every running discovery source to stop. The
// ScanningFinished event follows asynchronously once every source has
// actually returned.
func (m *Manager) StopScanning(ctx context.Context) error {
	return m.doSync(ctx, func() {
		if m.scanCancel != nil {
			m.scanCancel()
		}
	})
}

// maybeEmitScanningFinished implements spec §4.5's three-part condition:
// bringup complete, every source stopped, and at least one StartScanning
// actually took effect this epoch (otherwise a StartScanning with zero
// registered sources would spuriously fire ScanningFinished on every call).
func (m *Manager) maybeEmitScanningFinished() {
	if m.bringupInProgress || !m.epochActive || m.sourcesRunning > 0 {
		return
	}
	m.epochActive = false
	m.scanCancel = nil
	m.pushEvent(Event{ScanningFinished: true})
}

// --- discovery-to-connect pipeline (spec §4.5 "Device discovery") ---

func (m *Manager) handleDiscovered(ctx context.Context, specifier protocol.CommSpecifier) {
	spec, ok := m.cfg.Match(specifier)
	if !ok {
		return // step 4: no matching protocol specializer, drop silently
	}

	// The final device.Identifier's AttributesIdentifier is only known once
	// identify() has run; the allow/deny and connecting-set checks that must
	// happen before any handshake is attempted (steps 1-3) use a provisional
	// identifier keyed on the comm specifier's own address/name instead.
	pending := device.Identifier{
		ProtocolName:         spec.ProtocolName,
		Address:              specifier.Address,
		AttributesIdentifier: specifier.Name,
	}
	if !m.cfg.IsAllowed(pending) {
		return // step 1
	}
	if !cache.Devices().TryBeginConnecting(pending) {
		return // steps 2-3: already connected or already mid-connect
	}

	connector, ok := m.connectors[specifier.Kind]
	if !ok {
		cache.Devices().EndConnecting(pending)
		m.log.Warn(fmt.Sprintf("no hardware connector registered for specifier kind %s", specifier.Kind))
		return
	}

	go m.bringUpDevice(ctx, specifier, spec, connector, pending)
}

// bringUpDevice runs the identify/initialize handshake off the loop
// goroutine (spec §4.5 step 5's "spawn a task"), then hands the finished
// device back to the loop via the work channel.
func (m *Manager) bringUpDevice(ctx context.Context, specifier protocol.CommSpecifier, spec config.ProtocolSpecializer, connector HardwareConnector, pending device.Identifier) {
	defer cache.Devices().EndConnecting(pending)

	if spec.NewHandler == nil {
		m.log.Warn(fmt.Sprintf("protocol %q has no registered handler factory", spec.ProtocolName))
		return
	}

	hw, err := connector.Open(ctx, specifier, m.messageGap)
	if err != nil {
		m.log.Warn(fmt.Sprintf("opening hardware for %s: %v", specifier.Address, err))
		return
	}

	handler := spec.NewHandler()
	identifier, err := handler.Identify(ctx, hw, specifier)
	if err != nil {
		m.log.Warn(fmt.Sprintf("identify failed for %s: %v", specifier.Address, err))
		_ = hw.Disconnect()
		return
	}
	if identifier.ProtocolName == "" {
		identifier.ProtocolName = spec.ProtocolName
	}

	def := m.cfg.BuildDefinition(identifier, hw.Name(), spec)
	if def.UserConfig.Denied {
		m.log.Warn(fmt.Sprintf("device %s denied after identify", identifier))
		_ = hw.Disconnect()
		return
	}

	if err := handler.Initialize(ctx, hw, def); err != nil {
		m.log.Warn(fmt.Sprintf("initialize failed for %s: %v", identifier, err))
		_ = hw.Disconnect()
		return
	}

	select {
	case m.work <- func() { m.connectLocal(identifier, def, hw, handler) }:
	case <-ctx.Done():
		_ = hw.Disconnect()
	case <-m.closed:
		_ = hw.Disconnect()
	}
}

// connectLocal assigns a device index and installs the new device, running
// on the loop goroutine (spec §4.5 "Device-index assignment on Connected").
func (m *Manager) connectLocal(id device.Identifier, def *device.Definition, hw hardware.Hardware, handler protocol.Handler) {
	if def.UserConfig.ReservedIndex != nil {
		if existing, ok := cache.Devices().ByIndex(*def.UserConfig.ReservedIndex); ok && existing.Identifier != id {
			m.disconnectIndexLocal(*def.UserConfig.ReservedIndex)
		}
	}

	index := cache.Devices().Add(def)
	sd := serverdevice.New(index, def, hw, handler, m.timers, m.log)
	m.devices[index] = sd
	go m.monitorDevice(index, hw, handler)
	m.pushEvent(Event{Connected: sd})
}

// monitorDevice forwards a connected device's own disconnect signal and
// asynchronous handler notifications back into the loop (spec §4.5
// "Events from already-connected devices").
func (m *Manager) monitorDevice(index uint32, hw hardware.Hardware, handler protocol.Handler) {
	hwEvents := hw.EventStream()
	handlerEvents := handler.EventStream()
	for {
		select {
		case evt, ok := <-hwEvents:
			if !ok {
				// The hardware's event stream only closes inside Hardware.Disconnect,
				// whether that was called by us (disconnectIndexLocal/shutdown,
				// already removed from m.devices) or by the hardware itself going
				// away unexpectedly; either way report it so the loop can clean up
				// its own bookkeeping if it hasn't already.
				m.hwDisconnect <- index
				return
			}
			if evt.Disconnected {
				m.hwDisconnect <- index
				return
			}
		case he, ok := <-handlerEvents:
			if !ok {
				handlerEvents = nil
				continue
			}
			m.notifications <- deviceNotification{index: index, event: he}
		}
	}
}

func (m *Manager) disconnectIndexLocal(index uint32) {
	sd, ok := m.devices[index]
	delete(m.devices, index)
	cache.Devices().Remove(index)
	if ok {
		if err := sd.Disconnect(); err != nil {
			m.log.Warn(fmt.Sprintf("disconnecting stale device %d: %v", index, err))
		}
	}
	m.pushEvent(Event{Disconnected: &DisconnectedEvent{Index: index}})
}

// disconnectByHardwareLocal handles a hardware-initiated disconnect (the
// Hardware's own event stream has already closed, so the transport must
// not be touched again here -- only bookkeeping is cleaned up).
func (m *Manager) disconnectByHardwareLocal(index uint32) {
	sd, ok := m.devices[index]
	if !ok {
		return
	}
	sd.StopKeepalive()
	delete(m.devices, index)
	cache.Devices().Remove(index)
	m.pushEvent(Event{Disconnected: &DisconnectedEvent{Index: index}})
}

// --- per-device command dispatch (spec §4.6 "Server device operations") ---

// HandleOutputVec routes a validated output batch to the target device's
// ACM and protocol handler.
func (m *Manager) HandleOutputVec(ctx context.Context, cmd message.CheckedOutputVecCmd) error {
	var result error
	if err := m.doSync(ctx, func() {
		sd, ok := m.devices[cmd.DeviceIndex()]
		if !ok {
			result = errtype.NewDeviceNotAvailable(cmd.DeviceIndex())
			return
		}
		result = sd.HandleOutputVec(ctx, cmd)
	}); err != nil {
		return err
	}
	return result
}

// HandleStopDevice zeroes every actuator on one device, bypassing ACM
// debouncing (spec §4.6 "Stop commands").
func (m *Manager) HandleStopDevice(ctx context.Context, cmd message.CheckedStopDeviceCmd) error {
	var result error
	if err := m.doSync(ctx, func() {
		sd, ok := m.devices[cmd.DeviceIndex()]
		if !ok {
			result = errtype.NewDeviceNotAvailable(cmd.DeviceIndex())
			return
		}
		result = sd.HandleStop(ctx)
	}); err != nil {
		return err
	}
	return result
}

// HandleStopAllDevices issues HandleStop to every currently connected
// device, matching StopDevice's semantics fleet-wide.
func (m *Manager) HandleStopAllDevices(ctx context.Context) error {
	var firstErr error
	if err := m.doSync(ctx, func() {
		for _, sd := range m.devices {
			if err := sd.HandleStop(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}); err != nil {
		return err
	}
	return firstErr
}

// resolveInputType finds which sensor kind a feature's Input map offers for
// the command's Read/Subscribe kind, mirroring the matching
// pkg/message/convert.go's CheckInputCmd already performed during
// validation (it confirms a match exists but doesn't carry the matched key
// forward, so callers that need the concrete feature.InputType re-resolve
// it here against the device's own catalog).
func resolveInputType(def *device.Definition, featureIndex uint32, want feature.InputCommandKind) (feature.InputType, bool) {
	f, ok := def.FeatureByIndex(featureIndex)
	if !ok {
		return "", false
	}
	for kind, spec := range f.Input {
		if spec.Accepts(want) {
			return kind, true
		}
	}
	return "", false
}

// HandleInputRead performs a direct sensor read on one device's feature,
// reporting back which sensor kind on that feature answered the read so
// the dispatch layer can stamp the right SensorType on its reply (a
// feature may expose more than one Input kind, so the caller cannot
// recompute this from the request alone).
func (m *Manager) HandleInputRead(ctx context.Context, cmd message.CheckedInputCmd) ([]int32, feature.InputType, error) {
	var (
		result []int32
		opErr  error
		kind   feature.InputType
	)
	if err := m.doSync(ctx, func() {
		sd, ok := m.devices[cmd.DeviceIndex()]
		if !ok {
			opErr = errtype.NewDeviceNotAvailable(cmd.DeviceIndex())
			return
		}
		var matched bool
		kind, matched = resolveInputType(sd.Def, cmd.FeatureIndex(), cmd.Command().Kind())
		if !matched {
			opErr = errtype.NewDeviceFeatureMismatch(cmd.DeviceIndex(), cmd.FeatureIndex(), "no matching sensor kind")
			return
		}
		result, opErr = sd.HandleInputRead(ctx, cmd.FeatureIndex(), kind)
	}); err != nil {
		return nil, "", err
	}
	return result, kind, opErr
}

// HandleInputSubscribe arms a device feature's subscribe-then-notify
// pattern; the reading itself arrives later via Events' Notification case.
func (m *Manager) HandleInputSubscribe(ctx context.Context, cmd message.CheckedInputCmd) error {
	var result error
	if err := m.doSync(ctx, func() {
		sd, ok := m.devices[cmd.DeviceIndex()]
		if !ok {
			result = errtype.NewDeviceNotAvailable(cmd.DeviceIndex())
			return
		}
		kind, ok := resolveInputType(sd.Def, cmd.FeatureIndex(), cmd.Command().Kind())
		if !ok {
			result = errtype.NewDeviceFeatureMismatch(cmd.DeviceIndex(), cmd.FeatureIndex(), "no matching sensor kind")
			return
		}
		result = sd.HandleInputSubscribe(ctx, cmd.FeatureIndex(), kind)
	}); err != nil {
		return err
	}
	return result
}

// shutdown runs the orderly teardown spec §4.5 describes: stop scanning,
// StopDevice every connected device, then disconnect each.
func (m *Manager) shutdown() {
	if m.scanCancel != nil {
		m.scanCancel()
	}
	for index, sd := range m.devices {
		if err := sd.HandleStop(context.Background()); err != nil {
			m.log.Warn(fmt.Sprintf("stop on shutdown for device %d: %v", index, err))
		}
		if err := sd.Disconnect(); err != nil {
			m.log.Warn(fmt.Sprintf("disconnect on shutdown for device %d: %v", index, err))
		}
		cache.Devices().Remove(index)
	}
	m.devices = make(map[uint32]*serverdevice.Device)
}
