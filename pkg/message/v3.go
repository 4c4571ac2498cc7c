package message

import "github.com/nexhw/buttplug-go/pkg/feature"

// ScalarSubcommand is v3's generalization of VibrateSubcommand to any
// single-value actuator kind, addressed by wire feature index (unlike v1/v2
// which address by per-type index). It is the closest ancestor of v4's
// OutputVecCmd.
type ScalarSubcommand struct {
	Index        uint32
	Scalar       float64
	ActuatorType feature.OutputType
}

type ScalarCmd struct {
	Id          ID
	DeviceIndex uint32
	Scalars     []ScalarSubcommand
}

func (m ScalarCmd) MessageID() ID   { return m.Id }
func (m ScalarCmd) Validate() error { return validateNotSystemID(m.Id) }

// SensorReadCmd is v3's sensor read request. v3 has no per-feature
// subscribe message: SensorSubscribeCmd does not exist at this version,
// which is why downgrading a v4 subscribe-based InputCmd to v3 fails with
// MessageNotSupported (spec §4.1 "Downgrade").
type SensorReadCmd struct {
	Id           ID
	DeviceIndex  uint32
	SensorIndex  uint32
	SensorType   feature.InputType
}

func (m SensorReadCmd) MessageID() ID   { return m.Id }
func (m SensorReadCmd) Validate() error { return validateNotSystemID(m.Id) }

type SensorReadingV3 struct {
	Id          ID
	DeviceIndex uint32
	SensorIndex uint32
	SensorType  feature.InputType
	Data        []int32
}

func (m SensorReadingV3) MessageID() ID { return m.Id }
