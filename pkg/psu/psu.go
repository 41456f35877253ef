package psu

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the factory baud rate of the supply's serial interface.
const DefaultBaudRate = 115200

// Session represents a command session with the power supply. Every command
// is a newline-terminated ASCII line; queries block until the reply line
// arrives. A Session is not safe for concurrent use: callers must serialize
// round trips themselves.
type Session struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader

	info       string
	ratedPower float64
	caps       Capabilities
}

// New establishes a session over an already open transport. It queries the
// identity and every programming limit before returning, so bounds checks
// are ready before the first setter runs. Any failure during bring-up is
// fatal; the transport is left for the caller to close.
func New(conn io.ReadWriteCloser, ratedPower float64) (*Session, error) {
	s := &Session{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		ratedPower: ratedPower,
	}

	if err := s.init(); err != nil {
		return nil, err
	}

	return s, nil
}

// Open opens the serial port and establishes a session over it. A baud rate
// of zero falls back to DefaultBaudRate. With a positive readTimeout a
// stalled reply surfaces as ErrReadTimeout instead of blocking forever; zero
// keeps reads blocking.
func Open(port string, baud int, ratedPower float64, readTimeout time.Duration) (*Session, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}

	conn, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}

	var transport io.ReadWriteCloser = conn
	if readTimeout > 0 {
		if err := conn.SetReadTimeout(readTimeout); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
		transport = timeoutReader{conn}
	}

	sess, err := New(transport, ratedPower)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return sess, nil
}

// timeoutReader converts the zero-byte reads a timed-out port returns into
// ErrReadTimeout so line reads fail instead of spinning.
type timeoutReader struct {
	io.ReadWriteCloser
}

func (r timeoutReader) Read(p []byte) (int, error) {
	n, err := r.ReadWriteCloser.Read(p)
	if n == 0 && err == nil {
		return 0, ErrReadTimeout
	}
	return n, err
}

// init queries the identity and caches every programming limit. The limits
// are queried in the instrument's bring-up order.
func (s *Session) init() error {
	info, err := s.roundTrip("SYST:INF?")
	if err != nil {
		return err
	}
	s.info = info

	queries := []struct {
		cmd string
		dst *float64
	}{
		{"CURR? MAX", &s.caps.Current.Max},
		{"CURR? MIN", &s.caps.Current.Min},
		{"VOLT? MAX", &s.caps.Voltage.Max},
		{"VOLT? MIN", &s.caps.Voltage.Min},
		{"CURR:SLEW:RIS? MAX", &s.caps.CurrentSlewRising.Max},
		{"CURR:SLEW:RIS? MIN", &s.caps.CurrentSlewRising.Min},
		{"CURR:SLEW:FALL? MAX", &s.caps.CurrentSlewFalling.Max},
		{"CURR:SLEW:FALL? MIN", &s.caps.CurrentSlewFalling.Min},
		{"VOLT:SLEW:RIS? MAX", &s.caps.VoltageSlewRising.Max},
		{"VOLT:SLEW:RIS? MIN", &s.caps.VoltageSlewRising.Min},
		{"VOLT:SLEW:FALL? MAX", &s.caps.VoltageSlewFalling.Max},
		{"VOLT:SLEW:FALL? MIN", &s.caps.VoltageSlewFalling.Min},
		{"RES? MIN", &s.caps.InternalResistance.Min},
		{"RES? MAX", &s.caps.InternalResistance.Max},
		{"CURR:PROT? MIN", &s.caps.OverCurrentProtection.Min},
		{"CURR:PROT? MAX", &s.caps.OverCurrentProtection.Max},
		{"VOLT:PROT? MIN", &s.caps.OverVoltageProtection.Min},
		{"VOLT:PROT? MAX", &s.caps.OverVoltageProtection.Max},
	}

	for _, q := range queries {
		v, err := s.queryFloat(q.cmd)
		if err != nil {
			return err
		}
		*q.dst = v
	}

	return nil
}

// send writes a single newline-terminated command.
func (s *Session) send(cmd string) error {
	if _, err := s.conn.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}

// roundTrip sends a query and returns the reply line with framing stripped.
func (s *Session) roundTrip(cmd string) (string, error) {
	if err := s.send(cmd); err != nil {
		return "", err
	}

	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read reply to %q: %w", cmd, err)
	}

	return strings.TrimSpace(line), nil
}

// queryFloat sends a query and parses the reply as a single float.
func (s *Session) queryFloat(cmd string) (float64, error) {
	reply, err := s.roundTrip(cmd)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, &ParseError{Cmd: cmd, Reply: reply, Err: err}
	}

	return v, nil
}

// formatFloat renders v the shortest way that round-trips, e.g. 10 rather
// than 10.000000.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Info returns the identity string reported by the instrument.
func (s *Session) Info() string {
	return s.info
}

// RatedPower returns the nominal output power declared for this supply.
func (s *Session) RatedPower() float64 {
	return s.ratedPower
}

// Capabilities returns the cached programming limits.
func (s *Session) Capabilities() Capabilities {
	return s.caps
}

// Describe renders the identity, rated power and the full limit table.
func (s *Session) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", s.info)
	fmt.Fprintf(&b, "rated power              %g W\n", s.ratedPower)
	b.WriteString(s.caps.String())
	return b.String()
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	return s.conn.Close()
}
