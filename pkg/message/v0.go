package message

// SingleMotorVibrateCmd is the oldest (v0) vibrate command: a single speed
// applied to every vibrating feature on the device at once (spec §4.1
// "Legacy single-motor ... commands that target all features of a given
// type expand to one checked sub-command per matching feature").
type SingleMotorVibrateCmd struct {
	Id          ID
	DeviceIndex uint32
	Speed       float64
}

func (m SingleMotorVibrateCmd) MessageID() ID   { return m.Id }
func (m SingleMotorVibrateCmd) Validate() error { return validateNotSystemID(m.Id) }
