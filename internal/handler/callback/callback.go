// -*- Mode: Go; indent-tabs-mode: t -*-
//
// SPDX-License-Identifier: Apache-2.0

// Package callback turns device manager lifecycle events (connect,
// disconnect, scan epoch closed) into the outbound push messages the
// server broadcasts to every connected client (spec §4.2 DeviceAdded /
// DeviceRemoved / ScanningFinished). Grounded on the teacher's own
// internal/handler/callback, whose CallbackHandler dispatches on an
// action-type-plus-HTTP-method pair into cache mutation and
// AutoEvent-manager restart calls; the device-manager's equivalent
// triple (device connected / disconnected / scan epoch closed) is
// rebuilt here as three builder functions instead of an HTTP method
// switch, since this server has no inbound metadata webhook of its own.
package callback

import (
	"sort"

	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/message"
)

// BuildDeviceAdded projects a connected device into the wire DeviceAdded
// push message (spec §4.2), carrying the message Id the caller passes in.
func BuildDeviceAdded(id message.ID, index uint32, def *device.Definition) *message.DeviceAdded {
	return &message.DeviceAdded{
		Id:          id,
		DeviceIndex: index,
		DeviceName:  def.Name,
		DisplayName: def.EffectiveDisplayName(),
		Features:    featureAttributes(def),
	}
}

// BuildDeviceRemoved reports a device's disconnection.
func BuildDeviceRemoved(id message.ID, index uint32) *message.DeviceRemoved {
	return &message.DeviceRemoved{Id: id, DeviceIndex: index}
}

// BuildScanningFinished reports the close of a scanning epoch (spec §4.5's
// bringup/ScanningFinished arbitration): exactly one ScanningFinished per
// epoch, never one per comm manager.
func BuildScanningFinished(id message.ID) *message.ScanningFinished {
	return &message.ScanningFinished{Id: id}
}

func featureAttributes(def *device.Definition) []message.FeatureAttributes {
	out := make([]message.FeatureAttributes, 0, len(def.Features))
	for i, f := range def.Features {
		out = append(out, message.FeatureAttributes{
			Index:       uint32(i),
			Description: f.Description,
			FeatureType: f.FeatureType,
			Output:      f.Output,
			Input:       f.Input,
		})
	}
	return out
}

// DeviceListEntries projects every currently connected device into the wire
// shape RequestDeviceList's response needs, in index order.
func DeviceListEntries(defs map[uint32]*device.Definition) []message.DeviceListEntry {
	out := make([]message.DeviceListEntry, 0, len(defs))
	for index, def := range defs {
		out = append(out, message.DeviceListEntry{
			DeviceIndex: index,
			DeviceName:  def.Name,
			DisplayName: def.EffectiveDisplayName(),
			Features:    featureAttributes(def),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceIndex < out[j].DeviceIndex })
	return out
}
