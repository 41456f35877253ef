package psu

import (
	"errors"
	"fmt"
)

// ErrReadTimeout is returned when the transport read timeout elapses before
// the instrument replies.
var ErrReadTimeout = errors.New("read timed out")

// BoundsError reports a setpoint outside the device-reported limits. The
// offending command is never transmitted.
type BoundsError struct {
	Param string
	Value float64
	Min   float64
	Max   float64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s %g out of range (%g, %g)", e.Param, e.Value, e.Min, e.Max)
}

// ModeError reports an attempt to select an operating mode the instrument
// does not have. The offending command is never transmitted.
type ModeError struct {
	Mode Mode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("unknown output mode %q", string(e.Mode))
}

// ParseError reports an instrument reply that could not be interpreted.
type ParseError struct {
	Cmd   string
	Reply string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unexpected reply %q to %q", e.Reply, e.Cmd)
	}
	return fmt.Sprintf("unexpected reply %q to %q: %v", e.Reply, e.Cmd, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
