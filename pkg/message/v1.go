package message

// VibrateSubcommand targets one vibrate feature by its legacy per-type
// index (i.e. the Nth vibrating feature on the device, not the raw wire
// feature index -- conversion resolves that mapping via the device's
// legacy attribute cache).
type VibrateSubcommand struct {
	Index uint32
	Speed float64
}

type VibrateCmd struct {
	Id          ID
	DeviceIndex uint32
	Speeds      []VibrateSubcommand
}

func (m VibrateCmd) MessageID() ID   { return m.Id }
func (m VibrateCmd) Validate() error { return validateNotSystemID(m.Id) }

type RotateSubcommand struct {
	Index     uint32
	Speed     float64
	Clockwise bool
}

type RotateCmd struct {
	Id          ID
	DeviceIndex uint32
	Rotations   []RotateSubcommand
}

func (m RotateCmd) MessageID() ID   { return m.Id }
func (m RotateCmd) Validate() error { return validateNotSystemID(m.Id) }

// LinearSubcommand is the v1 "move to position over duration" command,
// the ancestor of v4's PositionWithDuration output kind.
type LinearSubcommand struct {
	Index    uint32
	Duration uint32 // milliseconds
	Position float64
}

type LinearCmd struct {
	Id          ID
	DeviceIndex uint32
	Vectors     []LinearSubcommand
}

func (m LinearCmd) MessageID() ID   { return m.Id }
func (m LinearCmd) Validate() error { return validateNotSystemID(m.Id) }
