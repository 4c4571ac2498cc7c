package message

// CheckedOutputVecCmd is the internal, dispatch-safe form produced by the
// version-translation layer (spec §4.1 "Contracts"). Unlike OutputVecCmd,
// which is merely well-typed wire input, a CheckedOutputVecCmd is guaranteed
// at construction time that the device index exists, every feature index
// resolves, and every value lies within its feature's step limit. It is
// never constructed directly by a handler -- only by the functions in
// convert.go, which is the sole place that performs those checks.
type CheckedOutputVecCmd struct {
	id          ID
	deviceIndex uint32
	outputs     []OutputVecEntry
}

func (c CheckedOutputVecCmd) MessageID() ID        { return c.id }
func (c CheckedOutputVecCmd) DeviceIndex() uint32  { return c.deviceIndex }
func (c CheckedOutputVecCmd) Outputs() []OutputVecEntry {
	return c.outputs
}

// CheckedStopDeviceCmd is the validated form of StopDeviceCmd: device index
// resolved to exist at construction time.
type CheckedStopDeviceCmd struct {
	id          ID
	deviceIndex uint32
}

func (c CheckedStopDeviceCmd) MessageID() ID       { return c.id }
func (c CheckedStopDeviceCmd) DeviceIndex() uint32 { return c.deviceIndex }

// CheckedInputCmd is the validated form of InputCmd.
type CheckedInputCmd struct {
	id           ID
	deviceIndex  uint32
	featureIndex uint32
	command      InputCommand
}

func (c CheckedInputCmd) MessageID() ID        { return c.id }
func (c CheckedInputCmd) DeviceIndex() uint32  { return c.deviceIndex }
func (c CheckedInputCmd) FeatureIndex() uint32 { return c.featureIndex }
func (c CheckedInputCmd) Command() InputCommand { return c.command }
