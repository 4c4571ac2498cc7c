// Package feature defines the device capability data model: features, the
// output/input kinds they accept, and the actuator/sensor specs that bound
// the values a command may carry. Capabilities are data, not types -- a new
// output kind is a new enum member plus a table entry, never a new Go type
// (spec §9 "Capability/feature polymorphism").
package feature

import (
	"fmt"

	"github.com/google/uuid"
)

// Type enumerates the kind of physical capability a Feature represents.
type Type string

const (
	TypeVibrate     Type = "Vibrate"
	TypeRotate      Type = "Rotate"
	TypeOscillate   Type = "Oscillate"
	TypeConstrict   Type = "Constrict"
	TypeInflate     Type = "Inflate"
	TypePosition    Type = "Position"
	TypeBattery     Type = "Battery"
	TypeRssi        Type = "Rssi"
	TypeButton      Type = "Button"
	TypePressure    Type = "Pressure"
	TypeTemperature Type = "Temperature"
	TypeUnknown     Type = "Unknown"
)

// OutputType is the semantic operation an actuator performs. Restored here
// from the original source's spec_enums.rs: Heater/Led/Spray appear in the
// wire OutputCommand union (spec §6.1) even though spec.md's prose
// feature_type list omits them (see SPEC_FULL.md §3). Temperature is only a
// feature Type here, not an output kind.
type OutputType string

const (
	OutputVibrate             OutputType = "Vibrate"
	OutputRotate              OutputType = "Rotate"
	OutputRotateWithDirection OutputType = "RotateWithDirection"
	OutputOscillate           OutputType = "Oscillate"
	OutputConstrict           OutputType = "Constrict"
	OutputInflate             OutputType = "Inflate"
	OutputPosition            OutputType = "Position"
	OutputPositionWithDuration OutputType = "PositionWithDuration"
	OutputHeater              OutputType = "Heater"
	OutputLed                 OutputType = "Led"
	OutputSpray               OutputType = "Spray"
)

// IsValid reports whether o is a known member of the closed set.
func (o OutputType) IsValid() bool {
	switch o {
	case OutputVibrate, OutputRotate, OutputRotateWithDirection, OutputOscillate,
		OutputConstrict, OutputInflate, OutputPosition, OutputPositionWithDuration,
		OutputHeater, OutputLed, OutputSpray:
		return true
	}
	return false
}

// RequiresMatchAll reports whether commands of this output kind must be
// re-sent together across every feature that accepts them, because the
// wire format has no per-channel addressing (spec §4.6 ACM.update, step 2).
// This is table-driven per spec §9: adding an output kind means adding a
// line here, never a new Go type.
func (o OutputType) RequiresMatchAll() bool {
	switch o {
	case OutputVibrate, OutputRotate:
		return true
	default:
		return false
	}
}

// InputType is the semantic operation a sensor supports.
type InputType string

const (
	InputBattery InputType = "Battery"
	InputRssi    InputType = "Rssi"
	InputButton  InputType = "Button"
	InputPressure InputType = "Pressure"
)

// InputCommandKind is the operation a client may issue against a sensor.
type InputCommandKind string

const (
	InputCommandRead      InputCommandKind = "Read"
	InputCommandSubscribe InputCommandKind = "Subscribe"
)

// StepRange is an inclusive integer interval. Start must be <= End.
type StepRange struct {
	Start int32 `json:"Start"`
	End   int32 `json:"End"`
}

func (r StepRange) Valid() bool { return r.Start <= r.End }

// Contains reports whether v lies within the inclusive range.
func (r StepRange) Contains(v int32) bool { return v >= r.Start && v <= r.End }

// Len returns the number of integer steps the range covers (End - Start).
func (r StepRange) Len() int32 { return r.End - r.Start }

// ActuatorSpec describes one output kind accepted by a feature: the
// hardware-native step range, and the user-configurable step limit that
// clamps commands (step_limit subset step_range, spec §3 invariant).
type ActuatorSpec struct {
	StepRange StepRange `json:"StepRange"`
	StepLimit StepRange `json:"StepLimit"`
}

// Validate enforces the spec §3 invariant: StepLimit subset StepRange, both
// non-empty, start <= end.
func (a ActuatorSpec) Validate() error {
	if !a.StepRange.Valid() {
		return fmt.Errorf("step_range invalid: %+v", a.StepRange)
	}
	if !a.StepLimit.Valid() {
		return fmt.Errorf("step_limit invalid: %+v", a.StepLimit)
	}
	if a.StepLimit.Start < a.StepRange.Start || a.StepLimit.End > a.StepRange.End {
		return fmt.Errorf("step_limit %+v is not a subset of step_range %+v", a.StepLimit, a.StepRange)
	}
	return nil
}

// ScaleFromUnitInterval maps a 0.0..1.0 float into the actuator's integer
// step-limit subset: ceil(x * (limit.end - limit.start)) + limit.start
// (spec §4.1, the cross-version conversion value mapping).
func (a ActuatorSpec) ScaleFromUnitInterval(x float64) int32 {
	if x < 0 {
		x = 0
	}
	if x > 1 {
		x = 1
	}
	span := float64(a.StepLimit.Len())
	scaled := x * span
	rounded := int32(scaled)
	if scaled > float64(rounded) {
		rounded++
	}
	return rounded + a.StepLimit.Start
}

// SensorSpec describes one input kind: the reading range(s) and the
// commands it accepts.
type SensorSpec struct {
	Ranges   []StepRange        `json:"Ranges"`
	Commands []InputCommandKind `json:"Commands"`
}

func (s SensorSpec) Accepts(cmd InputCommandKind) bool {
	for _, c := range s.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// RawEndpoint names one raw byte endpoint a feature exposes for direct
// write/read/subscribe access.
type RawEndpoint struct {
	Name string `json:"Name"`
}

// Feature describes one physically addressable capability of one device
// (spec §3 "Device Feature").
type Feature struct {
	ID          uuid.UUID                   `json:"Id"`
	Description string                      `json:"Description"`
	FeatureType Type                         `json:"FeatureType"`
	Output      map[OutputType]ActuatorSpec `json:"Output,omitempty"`
	Input       map[InputType]SensorSpec    `json:"Input,omitempty"`
	Raw         []RawEndpoint               `json:"Raw,omitempty"`
}

// Validate enforces the spec §3 feature invariants.
func (f Feature) Validate() error {
	if f.ID == uuid.Nil {
		return fmt.Errorf("feature id must be set")
	}
	if len(f.Output) == 0 && len(f.Input) == 0 && len(f.Raw) == 0 {
		return fmt.Errorf("feature %s has no output, input, or raw endpoints", f.ID)
	}
	for kind, spec := range f.Output {
		if !kind.IsValid() {
			return fmt.Errorf("feature %s: unknown output kind %s", f.ID, kind)
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("feature %s output %s: %w", f.ID, kind, err)
		}
	}
	return nil
}

// AcceptsOutput reports whether the feature carries an ActuatorSpec for the
// given output kind, returning it for convenience.
func (f Feature) AcceptsOutput(kind OutputType) (ActuatorSpec, bool) {
	spec, ok := f.Output[kind]
	return spec, ok
}
