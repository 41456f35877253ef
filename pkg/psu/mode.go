package psu

// Mode is an output operating mode of the supply.
type Mode string

const (
	// ModeCVHS is constant voltage with high speed priority.
	ModeCVHS Mode = "CVHS"
	// ModeCCHS is constant current with high speed priority.
	ModeCCHS Mode = "CCHS"
	// ModeCVLS is constant voltage with slew rate priority.
	ModeCVLS Mode = "CVLS"
	// ModeCCLS is constant current with slew rate priority.
	ModeCCLS Mode = "CCLS"
	// ModeUnknown is reported when the instrument answers with a code
	// outside the mode table.
	ModeUnknown Mode = ""
)

// valid reports whether m is one of the four settable modes.
func (m Mode) valid() bool {
	switch m {
	case ModeCVHS, ModeCCHS, ModeCVLS, ModeCCLS:
		return true
	}
	return false
}

// modeFromCode maps the numeric reply of OUTP:MODE? to a Mode.
func modeFromCode(code string) Mode {
	switch code {
	case "0":
		return ModeCVHS
	case "1":
		return ModeCCHS
	case "2":
		return ModeCVLS
	case "3":
		return ModeCCLS
	}
	return ModeUnknown
}

// code returns the numeric form the instrument reports for m.
func (m Mode) code() string {
	switch m {
	case ModeCCHS:
		return "1"
	case ModeCVLS:
		return "2"
	case ModeCCLS:
		return "3"
	default:
		return "0"
	}
}
