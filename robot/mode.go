package robot

import "fmt"

// Mode is the operating mode reported by the host.
type Mode int

// Operating modes.
const (
	ModeNone Mode = iota
	ModeDisabled
	ModeAutonomous
	ModeTeleop
	ModeTest
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeDisabled:
		return "disabled"
	case ModeAutonomous:
		return "auto"
	case ModeTeleop:
		return "teleop"
	case ModeTest:
		return "test"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for m := ModeDisabled; m <= ModeTest; m++ {
		if m.String() == s {
			return m, nil
		}
	}

	return ModeNone, fmt.Errorf("unknown mode %q", s)
}

// Enabled tells whether components execute in the mode.
func (m Mode) Enabled() bool {
	return m == ModeAutonomous || m == ModeTeleop
}
