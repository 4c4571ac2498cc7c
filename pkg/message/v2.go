package message

// v2's VibrateCmd/RotateCmd/LinearCmd are wire-identical to v1's; the v2
// spec introduced per-device sensor reads instead. Re-exported as type
// aliases so conversion code has one v1/v2 upgrade path rather than two
// copies of the same struct (v1 -> v2 is the identity conversion for these
// three messages).
type (
	VibrateCmdV2 = VibrateCmd
	RotateCmdV2  = RotateCmd
	LinearCmdV2  = LinearCmd
)

type BatteryLevelCmd struct {
	Id          ID
	DeviceIndex uint32
}

func (m BatteryLevelCmd) MessageID() ID   { return m.Id }
func (m BatteryLevelCmd) Validate() error { return validateNotSystemID(m.Id) }

type BatteryLevelReading struct {
	Id           ID
	DeviceIndex  uint32
	BatteryLevel float64
}

func (m BatteryLevelReading) MessageID() ID { return m.Id }

type RSSILevelCmd struct {
	Id          ID
	DeviceIndex uint32
}

func (m RSSILevelCmd) MessageID() ID   { return m.Id }
func (m RSSILevelCmd) Validate() error { return validateNotSystemID(m.Id) }

type RSSILevelReading struct {
	Id          ID
	DeviceIndex uint32
	RSSILevel   int32
}

func (m RSSILevelReading) MessageID() ID { return m.Id }
