package message

import (
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

// DefinitionLookup resolves the device.Definition backing a device index,
// as the connected-device cache does; Downgrade needs one definition per
// device in a DeviceList, not the single definition a DeviceAdded carries.
type DefinitionLookup func(deviceIndex uint32) *device.Definition

// Downgrade renders a canonical v4 server-originated message into the wire
// shape for the connection's locked version. Messages with no
// representation at that version return a *errtype.Error (KindMessage);
// callers must turn that into a wire Error message themselves rather than
// silently dropping it (spec §4.2 "Outbound flow"). lookup resolves the
// originating device's Definition for messages that need its legacy
// attribute view (DeviceAdded, DeviceList); it may be nil for messages that
// never reference one.
func Downgrade(msg Message, version Version, lookup DefinitionLookup) (interface{}, error) {
	if version == V4 {
		return msg, nil
	}
	switch m := msg.(type) {
	case ServerInfo, Ok, Error, ScanningFinished, DeviceRemoved:
		return m, nil // version-agnostic shapes
	case DeviceAdded:
		return downgradeDeviceEntry(m.Id, m.DeviceIndex, m.DeviceName, m.DisplayName, lookupDef(lookup, m.DeviceIndex), version)
	case DeviceList:
		out := DeviceList{Id: m.Id}
		for _, entry := range m.Devices {
			dm, err := downgradeDeviceEntry(0, entry.DeviceIndex, entry.DeviceName, entry.DisplayName, lookupDef(lookup, entry.DeviceIndex), version)
			if err != nil {
				return nil, err
			}
			out.Devices = append(out.Devices, dm.(DeviceAdded).asListEntry())
		}
		return out, nil
	case SensorReading:
		return downgradeSensorReading(m, version)
	case RawReading:
		if version < V2 {
			return nil, errtype.NewMessageNotSupported("RawReading", int(version))
		}
		return m, nil
	default:
		return nil, errtype.Newf(errtype.KindMessage, "no downgrade rule for message type %T", msg)
	}
}

func lookupDef(lookup DefinitionLookup, deviceIndex uint32) *device.Definition {
	if lookup == nil {
		return nil
	}
	return lookup(deviceIndex)
}

func (m DeviceAdded) asListEntry() DeviceListEntry {
	return DeviceListEntry{DeviceIndex: m.DeviceIndex, DeviceName: m.DeviceName, DisplayName: m.DisplayName, Features: m.Features}
}

// downgradeDeviceEntry reports whether the (conceptual) legacy attribute
// view exists for this device at the target version. Since v0-v3 clients
// only need to know "how many of each legacy command type this device
// accepts", not the full feature table, the v4 Features list is still
// attached (extra fields are harmless for clients that only read the
// legacy counts out of band via DeviceAdded/DeviceList); versions below v1
// additionally require at least one actuator to exist.
func downgradeDeviceEntry(id ID, deviceIndex uint32, name, displayName string, def *device.Definition, version Version) (interface{}, error) {
	if def == nil {
		return DeviceAdded{Id: id, DeviceIndex: deviceIndex, DeviceName: name, DisplayName: displayName}, nil
	}
	legacy := def.Legacy()
	if version == V0 && legacy.VibrateCount == 0 && legacy.RotateCount == 0 && legacy.LinearCount == 0 {
		return nil, errtype.NewMessageNotSupported("DeviceAdded", int(version))
	}
	var attrs []FeatureAttributes
	for i, f := range def.Features {
		attrs = append(attrs, FeatureAttributes{Index: uint32(i), Description: f.Description, FeatureType: f.FeatureType, Output: f.Output, Input: f.Input})
	}
	return DeviceAdded{Id: id, DeviceIndex: deviceIndex, DeviceName: name, DisplayName: displayName, Features: attrs}, nil
}

// downgradeSensorReading converts a v4 SensorReading into the version's own
// reading shape, or fails with MessageNotSupported when the target version
// cannot express it (e.g. a v0/v1 client, which predates any sensor
// reading message at all).
func downgradeSensorReading(m SensorReading, version Version) (interface{}, error) {
	switch version {
	case V3:
		return SensorReadingV3{Id: m.Id, DeviceIndex: m.DeviceIndex, SensorIndex: m.FeatureIndex, SensorType: m.SensorType, Data: m.Data}, nil
	case V2:
		switch m.SensorType {
		case feature.InputBattery:
			if len(m.Data) != 1 {
				return nil, errtype.New(errtype.KindMessage, "battery reading must carry exactly one value")
			}
			return BatteryLevelReading{Id: m.Id, DeviceIndex: m.DeviceIndex, BatteryLevel: float64(m.Data[0]) / 100.0}, nil
		case feature.InputRssi:
			if len(m.Data) != 1 {
				return nil, errtype.New(errtype.KindMessage, "rssi reading must carry exactly one value")
			}
			return RSSILevelReading{Id: m.Id, DeviceIndex: m.DeviceIndex, RSSILevel: m.Data[0]}, nil
		default:
			return nil, errtype.NewMessageNotSupported("SensorReading("+string(m.SensorType)+")", int(version))
		}
	default:
		return nil, errtype.NewMessageNotSupported("SensorReading", int(version))
	}
}
