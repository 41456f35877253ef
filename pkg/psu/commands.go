package psu

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// checkRange returns a BoundsError, after logging a warning, when v falls
// outside r.
func checkRange(param string, v float64, r Range) error {
	if r.Contains(v) {
		return nil
	}

	err := &BoundsError{Param: param, Value: v, Min: r.Min, Max: r.Max}
	logrus.Warnf("%v, command not sent", err)
	return err
}

// setBounded validates v against the cached limits and transmits the command
// only when the check passes.
func (s *Session) setBounded(param, cmd string, v float64, r Range) error {
	if err := checkRange(param, v, r); err != nil {
		return err
	}
	return s.send(cmd + " " + formatFloat(v))
}

// Voltage returns the voltage setpoint, or its programmable limit when b is
// Min or Max.
func (s *Session) Voltage(b Bound) (float64, error) {
	return s.queryFloat("VOLT?" + b.suffix())
}

// SetVoltage programs the output voltage setpoint.
func (s *Session) SetVoltage(v float64) error {
	return s.setBounded("voltage", "VOLT", v, s.caps.Voltage)
}

// Current returns the current setpoint, or its programmable limit when b is
// Min or Max.
func (s *Session) Current(b Bound) (float64, error) {
	return s.queryFloat("CURR?" + b.suffix())
}

// SetCurrent programs the output current setpoint.
func (s *Session) SetCurrent(v float64) error {
	return s.setBounded("current", "CURR", v, s.caps.Current)
}

// InternalResistance returns the simulated internal resistance setpoint, or
// its programmable limit when b is Min or Max.
func (s *Session) InternalResistance(b Bound) (float64, error) {
	return s.queryFloat("RES?" + b.suffix())
}

// SetInternalResistance programs the simulated internal resistance.
func (s *Session) SetInternalResistance(v float64) error {
	return s.setBounded("internal resistance", "RES", v, s.caps.InternalResistance)
}

// OverCurrentProtection returns the over-current protection level, or its
// programmable limit when b is Min or Max.
func (s *Session) OverCurrentProtection(b Bound) (float64, error) {
	return s.queryFloat("CURR:PROT?" + b.suffix())
}

// SetOverCurrentProtection programs the over-current protection level.
func (s *Session) SetOverCurrentProtection(v float64) error {
	return s.setBounded("over-current protection", "CURR:PROT", v, s.caps.OverCurrentProtection)
}

// OverVoltageProtection returns the over-voltage protection level, or its
// programmable limit when b is Min or Max.
func (s *Session) OverVoltageProtection(b Bound) (float64, error) {
	return s.queryFloat("VOLT:PROT?" + b.suffix())
}

// SetOverVoltageProtection programs the over-voltage protection level.
func (s *Session) SetOverVoltageProtection(v float64) error {
	return s.setBounded("over-voltage protection", "VOLT:PROT", v, s.caps.OverVoltageProtection)
}

// RisingVoltageSlewRate returns the rising voltage slew rate setpoint, or
// its programmable limit when b is Min or Max.
func (s *Session) RisingVoltageSlewRate(b Bound) (float64, error) {
	return s.queryFloat("VOLT:SLEW:RIS?" + b.suffix())
}

// SetRisingVoltageSlewRate programs the rising voltage slew rate.
func (s *Session) SetRisingVoltageSlewRate(v float64) error {
	return s.setBounded("rising voltage slew rate", "VOLT:SLEW:RIS", v, s.caps.VoltageSlewRising)
}

// FallingVoltageSlewRate returns the falling voltage slew rate setpoint, or
// its programmable limit when b is Min or Max.
func (s *Session) FallingVoltageSlewRate(b Bound) (float64, error) {
	return s.queryFloat("VOLT:SLEW:FALL?" + b.suffix())
}

// SetFallingVoltageSlewRate programs the falling voltage slew rate.
func (s *Session) SetFallingVoltageSlewRate(v float64) error {
	return s.setBounded("falling voltage slew rate", "VOLT:SLEW:FALL", v, s.caps.VoltageSlewFalling)
}

// RisingCurrentSlewRate returns the rising current slew rate setpoint, or
// its programmable limit when b is Min or Max.
func (s *Session) RisingCurrentSlewRate(b Bound) (float64, error) {
	return s.queryFloat("CURR:SLEW:RIS?" + b.suffix())
}

// SetRisingCurrentSlewRate programs the rising current slew rate.
func (s *Session) SetRisingCurrentSlewRate(v float64) error {
	return s.setBounded("rising current slew rate", "CURR:SLEW:RIS", v, s.caps.CurrentSlewRising)
}

// FallingCurrentSlewRate returns the falling current slew rate setpoint, or
// its programmable limit when b is Min or Max.
func (s *Session) FallingCurrentSlewRate(b Bound) (float64, error) {
	return s.queryFloat("CURR:SLEW:FALL?" + b.suffix())
}

// SetFallingCurrentSlewRate programs the falling current slew rate.
func (s *Session) SetFallingCurrentSlewRate(v float64) error {
	return s.setBounded("falling current slew rate", "CURR:SLEW:FALL", v, s.caps.CurrentSlewFalling)
}

// SetVoltageCurrent programs both setpoints in a single command. Both values
// are validated first; if either fails, nothing is transmitted.
func (s *Session) SetVoltageCurrent(voltage, current float64) error {
	if err := checkRange("voltage", voltage, s.caps.Voltage); err != nil {
		return err
	}
	if err := checkRange("current", current, s.caps.Current); err != nil {
		return err
	}
	return s.send("APPL " + formatFloat(voltage) + "," + formatFloat(current))
}

// VoltageCurrent returns the voltage and current setpoints as a pair.
func (s *Session) VoltageCurrent() (float64, float64, error) {
	reply, err := s.roundTrip("APPL?")
	if err != nil {
		return 0, 0, err
	}

	parts := strings.Split(reply, ",")
	if len(parts) != 2 {
		return 0, 0, &ParseError{Cmd: "APPL?", Reply: reply}
	}

	voltage, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, &ParseError{Cmd: "APPL?", Reply: reply, Err: err}
	}
	current, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, &ParseError{Cmd: "APPL?", Reply: reply, Err: err}
	}

	return voltage, current, nil
}

// MeasureVoltage reads back the actual output voltage.
func (s *Session) MeasureVoltage() (float64, error) {
	return s.queryFloat("MEAS:VOLT?")
}

// MeasureCurrent reads back the actual output current.
func (s *Session) MeasureCurrent() (float64, error) {
	return s.queryFloat("MEAS:CURR?")
}

// MeasurePower reads back the actual output power.
func (s *Session) MeasurePower() (float64, error) {
	return s.queryFloat("MEAS:POW?")
}

// SetMode selects the output operating mode.
func (s *Session) SetMode(m Mode) error {
	if !m.valid() {
		err := &ModeError{Mode: m}
		logrus.Warnf("%v, command not sent", err)
		return err
	}
	return s.send("OUTP:MODE " + string(m))
}

// OperatingMode returns the present output operating mode. Replies outside
// the mode table map to ModeUnknown without an error.
func (s *Session) OperatingMode() (Mode, error) {
	reply, err := s.roundTrip("OUTP:MODE?")
	if err != nil {
		return ModeUnknown, err
	}
	return modeFromCode(reply), nil
}

// PowerOn enables the output.
func (s *Session) PowerOn() error {
	return s.send("OUTP 1")
}

// PowerOff disables the output.
func (s *Session) PowerOff() error {
	return s.send("OUTP 0")
}

// Abort cancels a pending triggered action.
func (s *Session) Abort() error {
	return s.send("ABOR")
}
