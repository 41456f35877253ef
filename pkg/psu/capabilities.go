package psu

import (
	"fmt"
	"strings"
)

// Bound selects which value a parameter query returns.
type Bound int

const (
	// Setting queries the present setpoint.
	Setting Bound = iota
	// Min queries the smallest value the instrument accepts.
	Min
	// Max queries the largest value the instrument accepts.
	Max
)

// suffix returns the query suffix selecting the bound.
func (b Bound) suffix() string {
	switch b {
	case Min:
		return " MIN"
	case Max:
		return " MAX"
	default:
		return ""
	}
}

// Range is a pair of device-reported limits for one parameter.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies strictly between the limits. Values equal
// to either limit are outside.
func (r Range) Contains(v float64) bool {
	return r.Min < v && v < r.Max
}

// Capabilities holds the programming limits the instrument reported when the
// session was established.
type Capabilities struct {
	Voltage               Range
	Current               Range
	InternalResistance    Range
	OverCurrentProtection Range
	OverVoltageProtection Range
	VoltageSlewRising     Range
	VoltageSlewFalling    Range
	CurrentSlewRising     Range
	CurrentSlewFalling    Range
}

// String renders the limits as a table, one parameter per line.
func (c Capabilities) String() string {
	rows := []struct {
		name string
		r    Range
		unit string
	}{
		{"voltage", c.Voltage, "V"},
		{"current", c.Current, "A"},
		{"internal resistance", c.InternalResistance, "Ohm"},
		{"over-current protection", c.OverCurrentProtection, "A"},
		{"over-voltage protection", c.OverVoltageProtection, "V"},
		{"voltage slew rising", c.VoltageSlewRising, "V/s"},
		{"voltage slew falling", c.VoltageSlewFalling, "V/s"},
		{"current slew rising", c.CurrentSlewRising, "A/s"},
		{"current slew falling", c.CurrentSlewFalling, "A/s"},
	}

	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%-24s %g .. %g %s\n", row.name, row.r.Min, row.r.Max, row.unit)
	}
	return b.String()
}
