// Package device holds device definitions (server side), the client-visible
// device projection, and the stable identifier used to correlate the two
// across reconnects (spec §3 "Device Definition" / "Client-visible device").
package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nexhw/buttplug-go/pkg/feature"
)

// Identifier is the stable (address, protocol-name, attributes-identifier)
// triple that names a physical device across sessions, grounded on
// original_source's DeviceIdentifier (device_impl.rs).
type Identifier struct {
	Address              string
	ProtocolName          string
	AttributesIdentifier string
}

// String renders a single stable cache key, used by the connecting-set and
// the connected device map.
func (id Identifier) String() string {
	return fmt.Sprintf("%s/%s/%s", id.ProtocolName, id.Address, id.AttributesIdentifier)
}

// UserConfig is the per-device override layer from the user
// device-configuration document (spec §6.2): display-name override,
// allow/deny, and a reserved device index.
type UserConfig struct {
	DisplayName    string
	Denied         bool
	Allowed        bool // only meaningful when an allow-list is in effect
	ReservedIndex  *uint32
}

// Definition is the per-device record attached at discovery (spec §3).
// Features are ordered; the slice index is the wire-visible feature index.
type Definition struct {
	Name        string
	DisplayName string
	Identifier  Identifier
	Features    []feature.Feature
	UserConfig  UserConfig

	legacyOnce sync.Once
	legacy     *LegacyAttributes
}

// FeatureByIndex returns the feature at the wire-visible index, along with
// whether that index is in range (spec §7 "Device - feature mismatch").
func (d *Definition) FeatureByIndex(index uint32) (feature.Feature, bool) {
	if int(index) >= len(d.Features) {
		return feature.Feature{}, false
	}
	return d.Features[index], true
}

// FeaturesByOutputType returns every feature index that accepts the given
// output kind, in definition order. Used to expand legacy "all features of
// a type" commands (spec §4.1, single-motor / vorze expansion).
func (d *Definition) FeaturesByOutputType(kind feature.OutputType) []uint32 {
	var out []uint32
	for i, f := range d.Features {
		if _, ok := f.AcceptsOutput(kind); ok {
			out = append(out, uint32(i))
		}
	}
	return out
}

// EffectiveDisplayName applies the user-config override, if any.
func (d *Definition) EffectiveDisplayName() string {
	if d.UserConfig.DisplayName != "" {
		return d.UserConfig.DisplayName
	}
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

// LegacyAttributes caches the v1/v2/v3 message-attribute shapes derived
// from the feature list, computed once and reused by every conversion that
// needs them (spec §4.1 step 2: "Looks up the corresponding features in the
// legacy-view cache").
type LegacyAttributes struct {
	VibrateCount int
	VibrateSteps []int32 // step count (StepLimit.Len(), i.e. End-Start) per vibrate feature, in index order
	RotateCount  int
	LinearCount  int
	BatteryPresent bool
}

// Legacy computes (once) and returns the legacy attribute view for this
// device's current feature list.
func (d *Definition) Legacy() *LegacyAttributes {
	d.legacyOnce.Do(func() {
		la := &LegacyAttributes{}
		for _, f := range d.Features {
			if spec, ok := f.AcceptsOutput(feature.OutputVibrate); ok {
				la.VibrateCount++
				la.VibrateSteps = append(la.VibrateSteps, spec.StepLimit.Len())
			}
			if _, ok := f.AcceptsOutput(feature.OutputRotate); ok {
				la.RotateCount++
			}
			if _, ok := f.AcceptsOutput(feature.OutputPositionWithDuration); ok {
				la.LinearCount++
			}
			if _, ok := f.Input[feature.InputBattery]; ok {
				la.BatteryPresent = true
			}
		}
		d.legacy = la
	})
	return d.legacy
}

// ClientDeviceFeature is the feature shape handed to client code: a name
// plus the capability sets it exposes, immutable after construction.
type ClientDeviceFeature struct {
	Index       uint32
	Description string
	FeatureType feature.Type
	Output      map[feature.OutputType]feature.ActuatorSpec
	Input       map[feature.InputType]feature.SensorSpec
}

// ClientDevice is the client-visible projection of a Definition (spec §3).
// It is immutable after construction; disconnection is observed through the
// disconnected flag rather than mutation of the exported fields, so copies
// held by user code remain valid to read after removal from the client's
// device map.
type ClientDevice struct {
	Index       uint32
	Name        string
	DisplayName string
	Features    []ClientDeviceFeature

	disconnected int32 // atomic bool
}

// NewClientDevice projects a server Definition plus its assigned index into
// the client-visible shape.
func NewClientDevice(index uint32, def *Definition) *ClientDevice {
	cd := &ClientDevice{
		Index:       index,
		Name:        def.Name,
		DisplayName: def.EffectiveDisplayName(),
	}
	for i, f := range def.Features {
		cd.Features = append(cd.Features, ClientDeviceFeature{
			Index:       uint32(i),
			Description: f.Description,
			FeatureType: f.FeatureType,
			Output:      f.Output,
			Input:       f.Input,
		})
	}
	return cd
}

// MarkDisconnected flips the device to its disconnected state. Safe to call
// concurrently with Disconnected(); idempotent.
func (c *ClientDevice) MarkDisconnected() {
	atomic.StoreInt32(&c.disconnected, 1)
}

// Disconnected reports whether DeviceRemoved has already been observed for
// this device. Handles held by user code after removal keep returning true
// here rather than panicking or silently no-opping.
func (c *ClientDevice) Disconnected() bool {
	return atomic.LoadInt32(&c.disconnected) == 1
}

// FeatureByIndex mirrors Definition.FeatureByIndex for client-side lookups.
func (c *ClientDevice) FeatureByIndex(index uint32) (ClientDeviceFeature, bool) {
	if int(index) >= len(c.Features) {
		return ClientDeviceFeature{}, false
	}
	return c.Features[index], true
}
