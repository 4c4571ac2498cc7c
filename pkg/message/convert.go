package message

import (
	"github.com/nexhw/buttplug-go/pkg/device"
	"github.com/nexhw/buttplug-go/pkg/errtype"
	"github.com/nexhw/buttplug-go/pkg/feature"
)

// outputValue builds an OutputCommand with exactly one field set, for the
// given output kind and native integer value. Table-driven per spec §9:
// a new output kind is a new case here, never a new Go type.
func outputValue(kind feature.OutputType, value int32) OutputCommand {
	v := uint32(value)
	switch kind {
	case feature.OutputVibrate:
		return OutputCommand{Vibrate: &v}
	case feature.OutputRotate:
		return OutputCommand{Rotate: &v}
	case feature.OutputOscillate:
		return OutputCommand{Oscillate: &v}
	case feature.OutputConstrict:
		return OutputCommand{Constrict: &v}
	case feature.OutputInflate:
		return OutputCommand{Inflate: &v}
	case feature.OutputPosition:
		return OutputCommand{Position: &v}
	case feature.OutputHeater:
		return OutputCommand{Heater: &v}
	case feature.OutputLed:
		return OutputCommand{Led: &v}
	case feature.OutputSpray:
		return OutputCommand{Spray: &v}
	default:
		return OutputCommand{}
	}
}

// checkValueInLimit validates a native integer value against a feature's
// step limit (spec §7 "Device - step range").
func checkValueInLimit(deviceIndex, featureIndex uint32, value int32, spec feature.ActuatorSpec) error {
	if !spec.StepLimit.Contains(value) {
		return errtype.NewDeviceStepRange(deviceIndex, featureIndex, value, spec.StepLimit.Start, spec.StepLimit.End)
	}
	return nil
}

// resolveOutput looks up the ActuatorSpec for a wire feature index and
// output kind, producing the DeviceFeatureMismatch error spec §7 requires
// when the index is out of range or the feature doesn't accept the kind.
func resolveOutput(def *device.Definition, deviceIndex, featureIndex uint32, kind feature.OutputType) (feature.ActuatorSpec, error) {
	f, ok := def.FeatureByIndex(featureIndex)
	if !ok {
		return feature.ActuatorSpec{}, errtype.NewDeviceFeatureMismatch(deviceIndex, featureIndex, "feature index out of range")
	}
	spec, ok := f.AcceptsOutput(kind)
	if !ok {
		return feature.ActuatorSpec{}, errtype.NewDeviceFeatureMismatch(deviceIndex, featureIndex, "feature does not accept output kind "+string(kind))
	}
	return spec, nil
}

// --- v0 -> v4 ---

// UpgradeSingleMotorVibrateCmd expands a v0 single-motor command to every
// vibrating feature on the device (spec §4.1).
func UpgradeSingleMotorVibrateCmd(cmd SingleMotorVibrateCmd, deviceIndex uint32, def *device.Definition) (CheckedOutputVecCmd, error) {
	indices := def.FeaturesByOutputType(feature.OutputVibrate)
	if len(indices) == 0 {
		return CheckedOutputVecCmd{}, errtype.NewDeviceFeatureMismatch(deviceIndex, 0, "device has no vibrate features")
	}
	entries := make([]OutputVecEntry, 0, len(indices))
	for _, fi := range indices {
		spec, err := resolveOutput(def, deviceIndex, fi, feature.OutputVibrate)
		if err != nil {
			return CheckedOutputVecCmd{}, err
		}
		value := spec.ScaleFromUnitInterval(cmd.Speed)
		entries = append(entries, OutputVecEntry{FeatureIndex: fi, OutputCommand: outputValue(feature.OutputVibrate, value)})
	}
	return CheckedOutputVecCmd{id: cmd.Id, deviceIndex: deviceIndex, outputs: entries}, nil
}

// --- v1/v2 -> v4 ---

// UpgradeVibrateCmd converts a v1/v2 VibrateCmd, whose Speeds are addressed
// by per-type index, to a checked v4 OutputVecCmd addressed by wire feature
// index (spec §4.1: "needs the v2 vibrate-feature count and each actuator's
// step range").
func UpgradeVibrateCmd(cmd VibrateCmd, deviceIndex uint32, def *device.Definition) (CheckedOutputVecCmd, error) {
	legacy := def.Legacy()
	vibrateIndices := def.FeaturesByOutputType(feature.OutputVibrate)
	entries := make([]OutputVecEntry, 0, len(cmd.Speeds))
	for _, sub := range cmd.Speeds {
		if int(sub.Index) >= legacy.VibrateCount {
			return CheckedOutputVecCmd{}, errtype.Newf(errtype.KindMessage,
				"device %d: VibrateCmd index %d exceeds vibrate feature count %d", deviceIndex, sub.Index, legacy.VibrateCount)
		}
		fi := vibrateIndices[sub.Index]
		spec, err := resolveOutput(def, deviceIndex, fi, feature.OutputVibrate)
		if err != nil {
			return CheckedOutputVecCmd{}, err
		}
		value := spec.ScaleFromUnitInterval(sub.Speed)
		entries = append(entries, OutputVecEntry{FeatureIndex: fi, OutputCommand: outputValue(feature.OutputVibrate, value)})
	}
	return CheckedOutputVecCmd{id: cmd.Id, deviceIndex: deviceIndex, outputs: entries}, nil
}

// UpgradeRotateCmd converts a v1/v2 RotateCmd to a checked v4 OutputVecCmd
// using RotateWithDirection, the v4 successor that folds the clockwise flag
// into the same command.
func UpgradeRotateCmd(cmd RotateCmd, deviceIndex uint32, def *device.Definition) (CheckedOutputVecCmd, error) {
	rotateIndices := def.FeaturesByOutputType(feature.OutputRotateWithDirection)
	if len(rotateIndices) == 0 {
		rotateIndices = def.FeaturesByOutputType(feature.OutputRotate)
	}
	entries := make([]OutputVecEntry, 0, len(cmd.Rotations))
	for _, sub := range cmd.Rotations {
		if int(sub.Index) >= len(rotateIndices) {
			return CheckedOutputVecCmd{}, errtype.Newf(errtype.KindMessage,
				"device %d: RotateCmd index %d exceeds rotate feature count %d", deviceIndex, sub.Index, len(rotateIndices))
		}
		fi := rotateIndices[sub.Index]
		f, _ := def.FeatureByIndex(fi)
		if spec, ok := f.AcceptsOutput(feature.OutputRotateWithDirection); ok {
			value := spec.ScaleFromUnitInterval(sub.Speed)
			entries = append(entries, OutputVecEntry{FeatureIndex: fi, OutputCommand: OutputCommand{
				RotateWithDirection: &RotateWithDirectionValue{Speed: uint32(value), Clockwise: sub.Clockwise},
			}})
			continue
		}
		spec, err := resolveOutput(def, deviceIndex, fi, feature.OutputRotate)
		if err != nil {
			return CheckedOutputVecCmd{}, err
		}
		value := spec.ScaleFromUnitInterval(sub.Speed)
		entries = append(entries, OutputVecEntry{FeatureIndex: fi, OutputCommand: outputValue(feature.OutputRotate, value)})
	}
	return CheckedOutputVecCmd{id: cmd.Id, deviceIndex: deviceIndex, outputs: entries}, nil
}

// UpgradeLinearCmd converts a v1/v2 LinearCmd to a checked v4 OutputVecCmd
// using PositionWithDuration.
func UpgradeLinearCmd(cmd LinearCmd, deviceIndex uint32, def *device.Definition) (CheckedOutputVecCmd, error) {
	linearIndices := def.FeaturesByOutputType(feature.OutputPositionWithDuration)
	entries := make([]OutputVecEntry, 0, len(cmd.Vectors))
	for _, sub := range cmd.Vectors {
		if int(sub.Index) >= len(linearIndices) {
			return CheckedOutputVecCmd{}, errtype.Newf(errtype.KindMessage,
				"device %d: LinearCmd index %d exceeds linear feature count %d", deviceIndex, sub.Index, len(linearIndices))
		}
		fi := linearIndices[sub.Index]
		spec, err := resolveOutput(def, deviceIndex, fi, feature.OutputPositionWithDuration)
		if err != nil {
			return CheckedOutputVecCmd{}, err
		}
		value := spec.ScaleFromUnitInterval(sub.Position)
		entries = append(entries, OutputVecEntry{FeatureIndex: fi, OutputCommand: OutputCommand{
			PositionWithDuration: &PositionWithDurationValue{Position: uint32(value), Duration: sub.Duration},
		}})
	}
	return CheckedOutputVecCmd{id: cmd.Id, deviceIndex: deviceIndex, outputs: entries}, nil
}

// UpgradeBatteryLevelCmd converts a v2 BatteryLevelCmd into a checked v4
// InputCmd Read against the device's Battery feature.
func UpgradeBatteryLevelCmd(cmd BatteryLevelCmd, deviceIndex uint32, def *device.Definition) (CheckedInputCmd, error) {
	return upgradeSensorReadByInputType(cmd.Id, deviceIndex, def, feature.InputBattery)
}

// UpgradeRSSILevelCmd converts a v2 RSSILevelCmd into a checked v4 InputCmd
// Read against the device's Rssi feature.
func UpgradeRSSILevelCmd(cmd RSSILevelCmd, deviceIndex uint32, def *device.Definition) (CheckedInputCmd, error) {
	return upgradeSensorReadByInputType(cmd.Id, deviceIndex, def, feature.InputRssi)
}

func upgradeSensorReadByInputType(id ID, deviceIndex uint32, def *device.Definition, want feature.InputType) (CheckedInputCmd, error) {
	for i, f := range def.Features {
		if spec, ok := f.Input[want]; ok && spec.Accepts(feature.InputCommandRead) {
			return CheckedInputCmd{id: id, deviceIndex: deviceIndex, featureIndex: uint32(i), command: InputCommand{Read: &struct{}{}}}, nil
		}
	}
	return CheckedInputCmd{}, errtype.NewDeviceFeatureMismatch(deviceIndex, 0, "device has no "+string(want)+" sensor")
}

// --- v3 -> v4 ---

// UpgradeScalarCmd converts a v3 ScalarCmd (already wire-feature-indexed,
// unlike v1/v2) into a checked v4 OutputVecCmd.
func UpgradeScalarCmd(cmd ScalarCmd, deviceIndex uint32, def *device.Definition) (CheckedOutputVecCmd, error) {
	entries := make([]OutputVecEntry, 0, len(cmd.Scalars))
	for _, sub := range cmd.Scalars {
		spec, err := resolveOutput(def, deviceIndex, sub.Index, sub.ActuatorType)
		if err != nil {
			return CheckedOutputVecCmd{}, err
		}
		value := spec.ScaleFromUnitInterval(sub.Scalar)
		entries = append(entries, OutputVecEntry{FeatureIndex: sub.Index, OutputCommand: outputValue(sub.ActuatorType, value)})
	}
	return CheckedOutputVecCmd{id: cmd.Id, deviceIndex: deviceIndex, outputs: entries}, nil
}

// UpgradeSensorReadCmd converts a v3 SensorReadCmd into a checked v4
// InputCmd Read. v3 never has a Subscribe variant (see v3.go).
func UpgradeSensorReadCmd(cmd SensorReadCmd, deviceIndex uint32, def *device.Definition) (CheckedInputCmd, error) {
	f, ok := def.FeatureByIndex(cmd.SensorIndex)
	if !ok {
		return CheckedInputCmd{}, errtype.NewDeviceFeatureMismatch(deviceIndex, cmd.SensorIndex, "feature index out of range")
	}
	if _, ok := f.Input[cmd.SensorType]; !ok {
		return CheckedInputCmd{}, errtype.NewDeviceFeatureMismatch(deviceIndex, cmd.SensorIndex, "feature does not accept sensor type "+string(cmd.SensorType))
	}
	return CheckedInputCmd{id: cmd.Id, deviceIndex: deviceIndex, featureIndex: cmd.SensorIndex, command: InputCommand{Read: &struct{}{}}}, nil
}

// --- v4 self-checks (a v4 client's own commands must still be validated) ---

// CheckOutputCmd validates a v4 OutputCmd against the device's catalog,
// producing the single-entry checked form.
func CheckOutputCmd(cmd OutputCmd, def *device.Definition) (CheckedOutputVecCmd, error) {
	kind, value, ok := cmd.OutputCommand.Kind()
	if !ok {
		return CheckedOutputVecCmd{}, errtype.New(errtype.KindMessage, "OutputCmd must set exactly one output command field")
	}
	spec, err := resolveOutput(def, cmd.DeviceIndex, cmd.FeatureIndex, kind)
	if err != nil {
		return CheckedOutputVecCmd{}, err
	}
	if err := checkValueInLimit(cmd.DeviceIndex, cmd.FeatureIndex, int32(value), spec); err != nil {
		return CheckedOutputVecCmd{}, err
	}
	return CheckedOutputVecCmd{id: cmd.Id, deviceIndex: cmd.DeviceIndex, outputs: []OutputVecEntry{{FeatureIndex: cmd.FeatureIndex, OutputCommand: cmd.OutputCommand}}}, nil
}

// CheckOutputVecCmd validates every entry of a v4 OutputVecCmd.
func CheckOutputVecCmd(cmd OutputVecCmd, def *device.Definition) (CheckedOutputVecCmd, error) {
	for _, entry := range cmd.Outputs {
		kind, value, ok := entry.OutputCommand.Kind()
		if !ok {
			return CheckedOutputVecCmd{}, errtype.New(errtype.KindMessage, "OutputVecCmd entry must set exactly one output command field")
		}
		spec, err := resolveOutput(def, cmd.DeviceIndex, entry.FeatureIndex, kind)
		if err != nil {
			return CheckedOutputVecCmd{}, err
		}
		if err := checkValueInLimit(cmd.DeviceIndex, entry.FeatureIndex, int32(value), spec); err != nil {
			return CheckedOutputVecCmd{}, err
		}
	}
	return CheckedOutputVecCmd{id: cmd.Id, deviceIndex: cmd.DeviceIndex, outputs: cmd.Outputs}, nil
}

// CheckStopDeviceCmd resolves and validates a StopDeviceCmd's device index.
func CheckStopDeviceCmd(cmd StopDeviceCmd, def *device.Definition) CheckedStopDeviceCmd {
	return CheckedStopDeviceCmd{id: cmd.Id, deviceIndex: cmd.DeviceIndex}
}

// CheckInputCmd validates a v4 InputCmd against the device's catalog.
func CheckInputCmd(cmd InputCmd, def *device.Definition) (CheckedInputCmd, error) {
	f, ok := def.FeatureByIndex(cmd.FeatureIndex)
	if !ok {
		return CheckedInputCmd{}, errtype.NewDeviceFeatureMismatch(cmd.DeviceIndex, cmd.FeatureIndex, "feature index out of range")
	}
	found := false
	for _, spec := range f.Input {
		if spec.Accepts(cmd.InputCommand.Kind()) {
			found = true
			break
		}
	}
	if !found {
		return CheckedInputCmd{}, errtype.NewDeviceFeatureMismatch(cmd.DeviceIndex, cmd.FeatureIndex, "feature does not accept "+string(cmd.InputCommand.Kind()))
	}
	return CheckedInputCmd{id: cmd.Id, deviceIndex: cmd.DeviceIndex, featureIndex: cmd.FeatureIndex, command: cmd.InputCommand}, nil
}
