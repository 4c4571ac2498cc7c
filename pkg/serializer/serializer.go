// -*- mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package serializer implements the JSON wire codec and per-connection
// version latching spec §4.2 describes: sniffing the first inbound frame
// for a declared spec version, locking a connection to that version for
// its lifetime, decoding/encoding the version-appropriate message set, and
// framing every direction as a JSON array even for a single message.
// Grounded on spec §4.2 directly; the teacher has no versioned wire
// protocol of its own to ground the codec shape on, so the per-version
// type-name registry below is built straight from pkg/message's v0-v4
// struct set.
package serializer

import (
	"encoding/json"
	"sync"

	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/message"
)

// VersionLock is the write-once cell spec §4.2 describes: the first
// successful RequestServerInfo locks the connection to a spec version for
// its entire lifetime; any later attempt to lock again fails.
type VersionLock struct {
	mu      sync.Mutex
	version message.Version
	locked  bool
}

// Lock sets the connection's version if it is not already set, reporting
// whether this call won the race (false means "HandshakeAlreadyHappened",
// spec §6.1).
func (l *VersionLock) Lock(v message.Version) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return false
	}
	l.version = v
	l.locked = true
	return true
}

// Version returns the locked version and whether locking has happened yet.
func (l *VersionLock) Version() (message.Version, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version, l.locked
}

// decodeFunc unmarshals one message object's payload into its concrete
// versioned Go type.
type decodeFunc func(raw json.RawMessage) (message.Message, error)

func decodeInto[T message.Message](raw json.RawMessage) (message.Message, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeDeviceAdded(raw json.RawMessage) (message.Message, error) {
	m := &message.DeviceAdded{}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, err
	}
	m.Finalize()
	return m, nil
}

func decodeDeviceList(raw json.RawMessage) (message.Message, error) {
	m := &message.DeviceList{}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, err
	}
	m.Finalize()
	return m, nil
}

// commonDecoders are the connection-management messages carried unchanged
// across every spec version (handshake, scanning, stop commands, replies
// and events).
func commonDecoders() map[string]decodeFunc {
	return map[string]decodeFunc{
		"RequestServerInfo": decodeInto[message.RequestServerInfo],
		"ServerInfo":        decodeInto[message.ServerInfo],
		"Ping":              decodeInto[message.Ping],
		"StartScanning":     decodeInto[message.StartScanning],
		"StopScanning":      decodeInto[message.StopScanning],
		"RequestDeviceList": decodeInto[message.RequestDeviceList],
		"StopDeviceCmd":     decodeInto[message.StopDeviceCmd],
		"StopAllDevices":    decodeInto[message.StopAllDevices],
		"Ok":                decodeInto[message.Ok],
		"Error":             decodeInto[message.Error],
		"DeviceAdded":       decodeDeviceAdded,
		"DeviceList":        decodeDeviceList,
		"DeviceRemoved":     decodeInto[message.DeviceRemoved],
		"ScanningFinished":  decodeInto[message.ScanningFinished],
		"RawReading":        decodeInto[message.RawReading],
	}
}

func merge(base map[string]decodeFunc, extra map[string]decodeFunc) map[string]decodeFunc {
	out := make(map[string]decodeFunc, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var registries = map[message.Version]map[string]decodeFunc{
	message.V0: merge(commonDecoders(), map[string]decodeFunc{
		"SingleMotorVibrateCmd": decodeInto[message.SingleMotorVibrateCmd],
	}),
	message.V1: merge(commonDecoders(), map[string]decodeFunc{
		"VibrateCmd": decodeInto[message.VibrateCmd],
		"RotateCmd":  decodeInto[message.RotateCmd],
		"LinearCmd":  decodeInto[message.LinearCmd],
	}),
	message.V2: merge(commonDecoders(), map[string]decodeFunc{
		"VibrateCmd":          decodeInto[message.VibrateCmd],
		"RotateCmd":           decodeInto[message.RotateCmd],
		"LinearCmd":           decodeInto[message.LinearCmd],
		"BatteryLevelCmd":     decodeInto[message.BatteryLevelCmd],
		"BatteryLevelReading": decodeInto[message.BatteryLevelReading],
		"RSSILevelCmd":        decodeInto[message.RSSILevelCmd],
		"RSSILevelReading":    decodeInto[message.RSSILevelReading],
	}),
	message.V3: merge(commonDecoders(), map[string]decodeFunc{
		"ScalarCmd":     decodeInto[message.ScalarCmd],
		"SensorReadCmd": decodeInto[message.SensorReadCmd],
		"SensorReading": decodeInto[message.SensorReadingV3],
	}),
	message.V4: merge(commonDecoders(), map[string]decodeFunc{
		"OutputCmd":     decodeInto[message.OutputCmd],
		"OutputVecCmd":  decodeInto[message.OutputVecCmd],
		"InputCmd":      decodeInto[message.InputCmd],
		"SensorReading": decodeInto[message.SensorReading],
	}),
}

// SniffFirstMessage parses the first inbound frame on a fresh connection
// loosely, looking only for a RequestServerInfo entry, per spec §4.2 step
// 1. It never consults a VersionLock: the very thing it extracts is what
// gets locked.
func SniffFirstMessage(raw []byte) (message.RequestServerInfo, error) {
	var elements []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil || len(elements) == 0 {
		return message.RequestServerInfo{}, errtype.New(errtype.KindMessage, "MessageSpecVersionNotReceived")
	}
	payload, ok := elements[0]["RequestServerInfo"]
	if !ok {
		return message.RequestServerInfo{}, errtype.New(errtype.KindInit, "RequestServerInfoExpected")
	}
	var m message.RequestServerInfo
	if err := json.Unmarshal(payload, &m); err != nil {
		return message.RequestServerInfo{}, errtype.Wrap(errtype.KindMessage, err, "decoding RequestServerInfo")
	}
	return m, nil
}

// DecodeFrame parses one inbound JSON array of message objects at the
// given locked spec version, preserving array order (spec §4.2 step 3).
func DecodeFrame(version message.Version, raw []byte) ([]message.Message, error) {
	registry, ok := registries[version]
	if !ok {
		return nil, errtype.Newf(errtype.KindMessage, "no message registry for spec version %d", version)
	}
	var elements []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, errtype.Wrap(errtype.KindMessage, err, "decoding JSON frame")
	}
	out := make([]message.Message, 0, len(elements))
	for _, el := range elements {
		if len(el) != 1 {
			return nil, errtype.New(errtype.KindMessage, "message object must carry exactly one type key")
		}
		for typeName, payload := range el {
			decode, ok := registry[typeName]
			if !ok {
				return nil, errtype.Newf(errtype.KindMessage, "unknown message type %q at spec version %d", typeName, version)
			}
			msg, err := decode(payload)
			if err != nil {
				return nil, errtype.Wrap(errtype.KindMessage, err, "decoding "+typeName)
			}
			if f, ok := msg.(message.Finalizer); ok {
				f.Finalize()
			}
			out = append(out, msg)
		}
	}
	return out, nil
}

// typeNameOf maps a concrete Go message value back to its wire type name.
// A type switch rather than reflect.TypeOf(...).Name() because a few Go
// types (SensorReadingV3) carry a different wire name than their Go
// identifier (spec §9: version hierarchies are parallel structs, not a
// single polymorphic type).
func typeNameOf(msg interface{}) (string, error) {
	switch msg.(type) {
	case message.RequestServerInfo:
		return "RequestServerInfo", nil
	case message.ServerInfo:
		return "ServerInfo", nil
	case message.Ping:
		return "Ping", nil
	case message.StartScanning:
		return "StartScanning", nil
	case message.StopScanning:
		return "StopScanning", nil
	case message.RequestDeviceList:
		return "RequestDeviceList", nil
	case message.StopDeviceCmd:
		return "StopDeviceCmd", nil
	case message.StopAllDevices:
		return "StopAllDevices", nil
	case message.OutputCmd:
		return "OutputCmd", nil
	case message.OutputVecCmd:
		return "OutputVecCmd", nil
	case message.InputCmd:
		return "InputCmd", nil
	case message.Ok:
		return "Ok", nil
	case message.Error:
		return "Error", nil
	case message.DeviceList, *message.DeviceList:
		return "DeviceList", nil
	case message.DeviceAdded, *message.DeviceAdded:
		return "DeviceAdded", nil
	case message.DeviceRemoved:
		return "DeviceRemoved", nil
	case message.ScanningFinished:
		return "ScanningFinished", nil
	case message.SensorReading:
		return "SensorReading", nil
	case message.RawReading:
		return "RawReading", nil
	case message.SingleMotorVibrateCmd:
		return "SingleMotorVibrateCmd", nil
	case message.VibrateCmd:
		return "VibrateCmd", nil
	case message.RotateCmd:
		return "RotateCmd", nil
	case message.LinearCmd:
		return "LinearCmd", nil
	case message.BatteryLevelCmd:
		return "BatteryLevelCmd", nil
	case message.BatteryLevelReading:
		return "BatteryLevelReading", nil
	case message.RSSILevelCmd:
		return "RSSILevelCmd", nil
	case message.RSSILevelReading:
		return "RSSILevelReading", nil
	case message.ScalarCmd:
		return "ScalarCmd", nil
	case message.SensorReadCmd:
		return "SensorReadCmd", nil
	case message.SensorReadingV3:
		return "SensorReading", nil
	default:
		return "", errtype.Newf(errtype.KindMessage, "no wire type name for %T", msg)
	}
}

// EncodeFrame renders one or more outbound messages as a single JSON array
// frame (spec §4.2 "Output is a JSON array even for a single message").
// Callers are responsible for having already downgraded each message to
// the connection's locked version (pkg/message.Downgrade); EncodeFrame only
// performs the type-name wrapping and JSON marshaling.
func EncodeFrame(msgs ...interface{}) ([]byte, error) {
	elements := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		name, err := typeNameOf(m)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(m)
		if err != nil {
			return nil, errtype.Wrap(errtype.KindMessage, err, "encoding "+name)
		}
		obj, err := json.Marshal(map[string]json.RawMessage{name: payload})
		if err != nil {
			return nil, errtype.Wrap(errtype.KindMessage, err, "wrapping "+name)
		}
		elements = append(elements, obj)
	}
	return json.Marshal(elements)
}
