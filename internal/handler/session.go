// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexhw/buttplug-go/internal/cache"
	"github.com/nexhw/buttplug-go/internal/common"
	"github.com/nexhw/buttplug-go/internal/devicemanager"
	"github.com/nexhw/buttplug-go/internal/handler/callback"
	"github.com/nexhw/buttplug-go/internal/scheduler"
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
	"github.com/nexhw/buttplug-go/pkg/message"
	"github.com/nexhw/buttplug-go/pkg/serializer"
)

// Transport is the duplex byte-message channel a Session drives its loop
// over -- the server-side mirror of pkg/connector.Transport, so both ends
// of the wire protocol share one abstraction even though neither package
// imports the other's concrete type.
type Transport interface {
	ReadMessage() (isBinary bool, data []byte, err error)
	WriteMessage(data []byte) error
	Close() error
}

// Session is one client connection: the handshake, the version lock, the
// ping deadline, and the request-dispatch loop that turns parsed client
// messages into device manager calls and serialized replies (spec §4.2,
// §6.1). Construct with NewSession and call Run once per connection.
type Session struct {
	dm         *devicemanager.Manager
	hub        *Hub
	timers     *scheduler.Manager
	log        common.LoggingClient
	serverName string
	maxVersion message.Version
	pingMillis uint32

	id         string
	lock       serializer.VersionLock
}

// NewSession builds a Session bound to the shared device manager and
// event hub. pingMillis is the max-ping-interval this server declares in
// its ServerInfo reply (spec §5 "Ping"); 0 disables the ping deadline
// entirely, matching the majority of handlers per spec §9's open question.
func NewSession(dm *devicemanager.Manager, hub *Hub, timers *scheduler.Manager, log common.LoggingClient, serverName string, maxVersion message.Version, pingMillis uint32) *Session {
	return &Session{
		dm:         dm,
		hub:        hub,
		timers:     timers,
		log:        log,
		serverName: serverName,
		maxVersion: maxVersion,
		pingMillis: pingMillis,
		id:         uuid.NewString(),
	}
}

func (s *Session) pingTimerName() string { return "ping:" + s.id }

// Run executes the handshake and then the read/dispatch loop until the
// transport closes, ctx is cancelled, or a protocol violation forces a
// close. It always closes transport before returning.
func (s *Session) Run(ctx context.Context, transport Transport) error {
	defer transport.Close()

	if err := s.handshake(ctx, transport); err != nil {
		return err
	}

	subEvents := s.hub.Subscribe()
	defer s.hub.Unsubscribe(subEvents)
	defer s.timers.Cancel(s.pingTimerName())

	pushStop := make(chan struct{})
	pushDone := make(chan struct{})
	go s.pushLoop(transport, subEvents, pushStop, pushDone)
	// Registered in reverse order deliberately: defers unwind LIFO, so the
	// stop signal must be registered after the pushDone wait to fire first.
	defer func() { <-pushDone }()
	defer close(pushStop)

	for {
		isBinary, raw, err := transport.ReadMessage()
		if err != nil {
			return err
		}
		if isBinary {
			return s.fatalError(transport, 0, errtype.New(errtype.KindMessage, "BinaryDeserializationError"))
		}
		if s.pingMillis > 0 {
			s.timers.Reset(s.pingTimerName())
		}

		version, _ := s.lock.Version()
		msgs, err := serializer.DecodeFrame(version, raw)
		if err != nil {
			if werr := s.writeMessages(transport, version, message.Error{ErrorMessage: err.Error(), ErrorCode: errtype.CodeOf(err)}); werr != nil {
				return werr
			}
			continue
		}

		var replies []interface{}
		for _, msg := range msgs {
			reply := s.dispatch(ctx, msg)
			replies = append(replies, reply)
		}
		if err := s.writeMessages(transport, version, replies...); err != nil {
			return err
		}
	}
}

// handshake performs the one-shot RequestServerInfo/ServerInfo exchange
// (spec §4.2 step 1-2, §6.1). Any failure here is fatal to the connection.
func (s *Session) handshake(ctx context.Context, transport Transport) error {
	isBinary, raw, err := transport.ReadMessage()
	if err != nil {
		return err
	}
	if isBinary {
		return s.fatalError(transport, 0, errtype.New(errtype.KindMessage, "BinaryDeserializationError"))
	}

	info, sniffErr := serializer.SniffFirstMessage(raw)
	if sniffErr != nil {
		return s.fatalError(transport, looseFirstID(raw), sniffErr)
	}

	version := info.DeclaredVersion()
	if !version.Valid() || version > s.maxVersion {
		version = s.maxVersion
	}
	if !s.lock.Lock(version) {
		return s.fatalError(transport, info.Id, errtype.New(errtype.KindInit, "HandshakeAlreadyHappened"))
	}

	reply := message.ServerInfo{
		Id:                     info.Id,
		ServerName:             s.serverName,
		MessageVersion:         version,
		MaxPingIntervalMillis:  s.pingMillis,
		MessageTemplateVersion: int(version),
	}
	if err := s.writeMessages(transport, version, reply); err != nil {
		return err
	}

	if s.pingMillis > 0 {
		s.timers.Schedule(s.pingTimerName(), durationFromMillis(s.pingMillis), func() { s.onPingExpired(transport) })
	}
	return nil
}

// onPingExpired implements spec §5's "Ping": stop every device, emit an
// unsolicited Error(Id=0, Ping), then tear the connection down. It cannot
// return an error to Run (it fires on the timer's own goroutine), so it
// closes transport directly; Run's blocked ReadMessage call then returns
// the transport's own close error and the loop exits.
func (s *Session) onPingExpired(transport Transport) {
	version, _ := s.lock.Version()
	_ = s.writeMessages(transport, version, message.Error{ErrorMessage: "ping deadline exceeded", ErrorCode: errtype.CodePing})
	if err := s.dm.HandleStopAllDevices(context.Background()); err != nil {
		s.log.Warn(fmt.Sprintf("stop-all-devices on ping timeout: %v", err))
	}
	_ = transport.Close()
}

// fatalError writes a single Error message (best-effort; the connection is
// closing regardless) and returns the underlying failure so Run's caller
// sees why the connection ended.
func (s *Session) fatalError(transport Transport, id message.ID, err error) error {
	msg := message.Error{Id: id, ErrorMessage: err.Error(), ErrorCode: errtype.CodeOf(err)}
	frame, encErr := serializer.EncodeFrame(msg)
	if encErr == nil {
		_ = transport.WriteMessage(frame)
	}
	return err
}

// looseFirstID best-effort recovers the Id of the first frame's single
// message when it failed to sniff as RequestServerInfo, so a reply like
// scenario 2 in spec §8 ("Ping id=1 on a fresh connection") can still echo
// the offending request's own id rather than always reporting Id=0.
func looseFirstID(raw []byte) message.ID {
	var elements []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil || len(elements) == 0 {
		return 0
	}
	for _, payload := range elements[0] {
		var withID struct{ Id message.ID }
		if json.Unmarshal(payload, &withID) == nil {
			return withID.Id
		}
	}
	return 0
}

// pushLoop forwards device manager lifecycle events to this session's
// transport as unsolicited (Id=0) push messages. It exits when stop is
// closed (Run tearing the session down), when the subscription channel
// itself closes (the hub shut down first), or when a write fails (the read
// loop has already torn the connection down). Unsubscribe only forgets the
// channel in the hub's broadcast set, it never closes it -- stop is what
// lets this goroutine return in the ordinary per-session teardown case.
func (s *Session) pushLoop(transport Transport, events <-chan devicemanager.Event, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			version, locked := s.lock.Version()
			if !locked {
				continue
			}
			for _, msg := range s.eventMessages(evt) {
				if err := s.writeMessages(transport, version, msg); err != nil {
					return
				}
			}
		}
	}
}

// eventMessages projects one devicemanager.Event into zero or more
// canonical v4 push messages (spec §4.5 "Events", §4.2 DeviceAdded /
// DeviceRemoved / ScanningFinished / SensorReading / RawReading).
func (s *Session) eventMessages(evt devicemanager.Event) []interface{} {
	switch {
	case evt.Connected != nil:
		sd := evt.Connected
		return []interface{}{*callback.BuildDeviceAdded(0, sd.Index, sd.Def)}
	case evt.Disconnected != nil:
		return []interface{}{*callback.BuildDeviceRemoved(0, evt.Disconnected.Index)}
	case evt.ScanningFinished:
		return []interface{}{*callback.BuildScanningFinished(0)}
	case evt.Notification != nil:
		return s.notificationMessages(evt.Notification)
	default:
		return nil
	}
}

func (s *Session) notificationMessages(n *devicemanager.NotificationEvent) []interface{} {
	if n.HandlerEvent.SensorType == "" {
		return nil
	}
	return []interface{}{message.SensorReading{
		DeviceIndex:  n.Index,
		FeatureIndex: n.HandlerEvent.FeatureIndex,
		SensorType:   n.HandlerEvent.SensorType,
		Data:         n.HandlerEvent.Data,
	}}
}

// writeMessages downgrades each msg to version (skipping any nil entries)
// and writes them as one
// frame. A message with no representation at version is itself replaced by
// an Error rather than silently dropped (spec §4.2 "Outbound flow").
func (s *Session) writeMessages(transport Transport, version message.Version, msgs ...interface{}) error {
	lookup := message.DefinitionLookup(func(index uint32) *device.Definition {
		d, _ := cache.Devices().ByIndex(index)
		return d
	})

	var out []interface{}
	for _, raw := range msgs {
		if raw == nil {
			continue
		}
		m, ok := raw.(message.Message)
		if !ok {
			out = append(out, raw)
			continue
		}
		down, err := message.Downgrade(m, version, lookup)
		if err != nil {
			out = append(out, message.Error{Id: m.MessageID(), ErrorMessage: err.Error(), ErrorCode: errtype.CodeOf(err)})
			continue
		}
		out = append(out, down)
	}
	if len(out) == 0 {
		return nil
	}
	frame, err := serializer.EncodeFrame(out...)
	if err != nil {
		return err
	}
	return transport.WriteMessage(frame)
}

func durationFromMillis(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func lookupDevice(deviceIndex uint32) (*device.Definition, error) {
	def, ok := cache.Devices().ByIndex(deviceIndex)
	if !ok {
		return nil, errtype.NewDeviceNotAvailable(deviceIndex)
	}
	return def, nil
}

// dispatch runs one already-decoded client message against the device
// manager and returns the canonical v4 reply (or Error) message. It never
// returns a bare Go error: every failure is already wrapped as a
// message.Error so writeMessages can downgrade and send it uniformly.
func (s *Session) dispatch(ctx context.Context, msg message.Message) interface{} {
	if req, ok := msg.(message.ClientRequest); ok {
		if err := req.Validate(); err != nil {
			return errorReply(msg.MessageID(), err)
		}
	}

	switch m := msg.(type) {
	case message.RequestServerInfo:
		return errorReply(m.Id, errtype.New(errtype.KindInit, "HandshakeAlreadyHappened"))

	case message.Ping:
		return message.Ok{Id: m.Id}

	case message.StartScanning:
		if err := s.dm.StartScanning(ctx); err != nil {
			return errorReply(m.Id, err)
		}
		return message.Ok{Id: m.Id}

	case message.StopScanning:
		if err := s.dm.StopScanning(ctx); err != nil {
			return errorReply(m.Id, err)
		}
		return message.Ok{Id: m.Id}

	case message.RequestDeviceList:
		entries := callback.DeviceListEntries(cache.Devices().AllIndexed())
		return message.DeviceList{Id: m.Id, Devices: entries}

	case message.StopDeviceCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked := message.CheckStopDeviceCmd(m, def)
		if err := s.dm.HandleStopDevice(ctx, checked); err != nil {
			return errorReply(m.Id, err)
		}
		return message.Ok{Id: m.Id}

	case message.StopAllDevices:
		if err := s.dm.HandleStopAllDevices(ctx); err != nil {
			return errorReply(m.Id, err)
		}
		return message.Ok{Id: m.Id}

	case message.OutputCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.CheckOutputCmd(m, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		if err := s.dm.HandleOutputVec(ctx, checked); err != nil {
			return errorReply(m.Id, err)
		}
		return message.Ok{Id: m.Id}

	case message.OutputVecCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.CheckOutputVecCmd(m, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		if err := s.dm.HandleOutputVec(ctx, checked); err != nil {
			return errorReply(m.Id, err)
		}
		return message.Ok{Id: m.Id}

	case message.InputCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.CheckInputCmd(m, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.dispatchInput(ctx, m.Id, checked)

	case message.SingleMotorVibrateCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.UpgradeSingleMotorVibrateCmd(m, m.DeviceIndex, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.runOutput(ctx, m.Id, checked)

	case message.VibrateCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.UpgradeVibrateCmd(m, m.DeviceIndex, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.runOutput(ctx, m.Id, checked)

	case message.RotateCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.UpgradeRotateCmd(m, m.DeviceIndex, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.runOutput(ctx, m.Id, checked)

	case message.LinearCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.UpgradeLinearCmd(m, m.DeviceIndex, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.runOutput(ctx, m.Id, checked)

	case message.ScalarCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.UpgradeScalarCmd(m, m.DeviceIndex, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.runOutput(ctx, m.Id, checked)

	case message.BatteryLevelCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.UpgradeBatteryLevelCmd(m, m.DeviceIndex, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.dispatchInput(ctx, m.Id, checked)

	case message.RSSILevelCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.UpgradeRSSILevelCmd(m, m.DeviceIndex, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.dispatchInput(ctx, m.Id, checked)

	case message.SensorReadCmd:
		def, err := lookupDevice(m.DeviceIndex)
		if err != nil {
			return errorReply(m.Id, err)
		}
		checked, err := message.UpgradeSensorReadCmd(m, m.DeviceIndex, def)
		if err != nil {
			return errorReply(m.Id, err)
		}
		return s.dispatchInput(ctx, m.Id, checked)

	default:
		return errorReply(msg.MessageID(), errtype.Newf(errtype.KindMessage, "unhandled message type %T", msg))
	}
}

func (s *Session) runOutput(ctx context.Context, id message.ID, checked message.CheckedOutputVecCmd) interface{} {
	if err := s.dm.HandleOutputVec(ctx, checked); err != nil {
		return errorReply(id, err)
	}
	return message.Ok{Id: id}
}

// dispatchInput handles both halves of an InputCmd: a Read blocks for the
// sensor value and replies with a SensorReading; a Subscribe arms the
// notify-later pattern and replies Ok (the reading itself arrives via
// pushLoop once the handler's event stream fires, spec §4.7).
func (s *Session) dispatchInput(ctx context.Context, id message.ID, checked message.CheckedInputCmd) interface{} {
	if checked.Command().Kind() == feature.InputCommandSubscribe {
		if err := s.dm.HandleInputSubscribe(ctx, checked); err != nil {
			return errorReply(id, err)
		}
		return message.Ok{Id: id}
	}
	data, kind, err := s.dm.HandleInputRead(ctx, checked)
	if err != nil {
		return errorReply(id, err)
	}
	return message.SensorReading{
		Id:           id,
		DeviceIndex:  checked.DeviceIndex(),
		FeatureIndex: checked.FeatureIndex(),
		SensorType:   kind,
		Data:         data,
	}
}

func errorReply(id message.ID, err error) message.Error {
	return message.Error{Id: id, ErrorMessage: err.Error(), ErrorCode: errtype.CodeOf(err)}
}
