package message

import (
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

// OutputCommand is the tagged union carried by OutputCmd (spec §6.1). Only
// one of the pointer fields is set; the set field names the command kind.
// Modeled as a struct-of-pointers rather than an interface hierarchy per
// spec §9: dispatch on output kind is table-driven, not polymorphic.
type OutputCommand struct {
	Vibrate              *uint32
	Rotate               *uint32
	RotateWithDirection  *RotateWithDirectionValue
	Oscillate            *uint32
	Constrict            *uint32
	Heater               *uint32
	Led                  *uint32
	Spray                *uint32
	Inflate              *uint32
	Position             *uint32
	PositionWithDuration *PositionWithDurationValue
}

type RotateWithDirectionValue struct {
	Speed     uint32
	Clockwise bool
}

type PositionWithDurationValue struct {
	Position uint32
	Duration uint32
}

// Kind returns the OutputType the set field corresponds to, and ok=false if
// no field (or more than one) is set.
func (o OutputCommand) Kind() (feature.OutputType, uint32, bool) {
	set := 0
	var kind feature.OutputType
	var value uint32
	check := func(ptr *uint32, k feature.OutputType) {
		if ptr != nil {
			set++
			kind = k
			value = *ptr
		}
	}
	check(o.Vibrate, feature.OutputVibrate)
	check(o.Rotate, feature.OutputRotate)
	check(o.Oscillate, feature.OutputOscillate)
	check(o.Constrict, feature.OutputConstrict)
	check(o.Heater, feature.OutputHeater)
	check(o.Led, feature.OutputLed)
	check(o.Spray, feature.OutputSpray)
	check(o.Inflate, feature.OutputInflate)
	check(o.Position, feature.OutputPosition)
	if o.RotateWithDirection != nil {
		set++
		kind = feature.OutputRotateWithDirection
		value = o.RotateWithDirection.Speed
	}
	if o.PositionWithDuration != nil {
		set++
		kind = feature.OutputPositionWithDuration
		value = o.PositionWithDuration.Position
	}
	return kind, value, set == 1
}

// InputCommand is the tagged union carried by InputCmd.
type InputCommand struct {
	Read      *struct{}
	Subscribe *struct{}
}

func (i InputCommand) Kind() feature.InputCommandKind {
	if i.Read != nil {
		return feature.InputCommandRead
	}
	return feature.InputCommandSubscribe
}

// --- handshake ---

type RequestServerInfo struct {
	Id                   ID
	ClientName           string
	ProtocolVersionMajor int
	ProtocolVersionMinor int
	// MessageVersion is the legacy v0-v3 field; if ProtocolVersionMajor is
	// absent the serializer falls back to this (spec §4.2 step 1).
	MessageVersion int
}

func (m RequestServerInfo) MessageID() ID { return m.Id }
func (m RequestServerInfo) Validate() error { return validateNotSystemID(m.Id) }

// DeclaredVersion resolves the version the client is asking to lock to,
// preferring the v4 field over the legacy one (spec §4.2 step 1).
func (m RequestServerInfo) DeclaredVersion() Version {
	if m.ProtocolVersionMajor > 0 || (m.ProtocolVersionMajor == 0 && m.ProtocolVersionMinor > 0) {
		return Version(m.ProtocolVersionMajor)
	}
	return Version(m.MessageVersion)
}

type ServerInfo struct {
	Id                    ID
	ServerName            string
	MessageVersion        Version
	MaxPingIntervalMillis uint32
	MessageTemplateVersion int
}

func (m ServerInfo) MessageID() ID { return m.Id }

// --- requests ---

type Ping struct{ Id ID }

func (m Ping) MessageID() ID   { return m.Id }
func (m Ping) Validate() error { return validateNotSystemID(m.Id) }

type StartScanning struct{ Id ID }

func (m StartScanning) MessageID() ID   { return m.Id }
func (m StartScanning) Validate() error { return validateNotSystemID(m.Id) }

type StopScanning struct{ Id ID }

func (m StopScanning) MessageID() ID   { return m.Id }
func (m StopScanning) Validate() error { return validateNotSystemID(m.Id) }

type RequestDeviceList struct{ Id ID }

func (m RequestDeviceList) MessageID() ID   { return m.Id }
func (m RequestDeviceList) Validate() error { return validateNotSystemID(m.Id) }

type StopDeviceCmd struct {
	Id          ID
	DeviceIndex uint32
}

func (m StopDeviceCmd) MessageID() ID   { return m.Id }
func (m StopDeviceCmd) Validate() error { return validateNotSystemID(m.Id) }

type StopAllDevices struct{ Id ID }

func (m StopAllDevices) MessageID() ID   { return m.Id }
func (m StopAllDevices) Validate() error { return validateNotSystemID(m.Id) }

type OutputCmd struct {
	Id            ID
	DeviceIndex   uint32
	FeatureIndex  uint32
	OutputCommand OutputCommand
}

func (m OutputCmd) MessageID() ID   { return m.Id }
func (m OutputCmd) Validate() error { return validateNotSystemID(m.Id) }

// OutputVecCmd carries one or more per-feature output commands for a single
// device in one message; it is the conversion target for every legacy
// "all features of a type" command (spec §4.1).
type OutputVecCmd struct {
	Id          ID
	DeviceIndex uint32
	Outputs     []OutputVecEntry
}

type OutputVecEntry struct {
	FeatureIndex  uint32
	OutputCommand OutputCommand
}

func (m OutputVecCmd) MessageID() ID   { return m.Id }
func (m OutputVecCmd) Validate() error { return validateNotSystemID(m.Id) }

type InputCmd struct {
	Id           ID
	DeviceIndex  uint32
	FeatureIndex uint32
	InputCommand InputCommand
}

func (m InputCmd) MessageID() ID   { return m.Id }
func (m InputCmd) Validate() error { return validateNotSystemID(m.Id) }

// --- replies / events ---

type Ok struct{ Id ID }

func (m Ok) MessageID() ID { return m.Id }

type Error struct {
	Id           ID
	ErrorMessage string
	ErrorCode    errtype.ErrorCode
}

func (m Error) MessageID() ID { return m.Id }

type DeviceListEntry struct {
	DeviceIndex uint32
	DeviceName  string
	DisplayName string
	Features    []FeatureAttributes
}

type FeatureAttributes struct {
	Index       uint32
	Description string
	FeatureType feature.Type
	Output      map[feature.OutputType]feature.ActuatorSpec `json:",omitempty"`
	Input       map[feature.InputType]feature.SensorSpec     `json:",omitempty"`
}

type DeviceList struct {
	Id      ID
	Devices []DeviceListEntry
}

func (m DeviceList) MessageID() ID { return m.Id }

// Finalize is a no-op placeholder for the cache-legacy-attributes step;
// DeviceList entries are already flattened wire structs by construction
// (the caching happens on the server-side device.Definition, not here).
func (m *DeviceList) Finalize() {}

type DeviceAdded struct {
	Id          ID
	DeviceIndex uint32
	DeviceName  string
	DisplayName string
	Features    []FeatureAttributes
}

func (m DeviceAdded) MessageID() ID { return m.Id }
func (m *DeviceAdded) Finalize()    {}

type DeviceRemoved struct {
	Id          ID
	DeviceIndex uint32
}

func (m DeviceRemoved) MessageID() ID { return m.Id }

type ScanningFinished struct{ Id ID }

func (m ScanningFinished) MessageID() ID { return m.Id }

type SensorReading struct {
	Id           ID
	DeviceIndex  uint32
	FeatureIndex uint32
	SensorType   feature.InputType
	Data         []int32
}

func (m SensorReading) MessageID() ID { return m.Id }

type RawReading struct {
	Id          ID
	DeviceIndex uint32
	Endpoint    string
	Data        []byte
}

func (m RawReading) MessageID() ID { return m.Id }
