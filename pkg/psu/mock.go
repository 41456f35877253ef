package psu

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/itohio/gopsu/pkg/config"
)

// Mock simulates the power supply behind the same byte stream a serial port
// provides, so a Session built on it behaves like one talking to hardware.
type Mock struct {
	cfg *config.MockConfig

	mu   sync.Mutex
	caps Capabilities
	info string

	// Programmed state
	voltage    float64
	current    float64
	resistance float64
	ocp        float64
	ovp        float64
	slewVR     float64
	slewVF     float64
	slewCR     float64
	slewCF     float64
	mode       Mode
	output     bool

	tick int // advances on every measurement, drives the ripple

	cmds    []string // received command lines
	partial []byte   // incoming bytes up to the next newline
	pending []byte   // reply bytes not yet read

	dataCh chan struct{}
	closed chan struct{}
}

// Ensure Mock can stand in for a serial port.
var _ io.ReadWriteCloser = (*Mock)(nil)

// mockCapabilities returns the limits of the simulated instrument, a
// 30 V / 108 A, 1080 W supply.
func mockCapabilities() Capabilities {
	return Capabilities{
		Voltage:               Range{Min: 0, Max: 30.9},
		Current:               Range{Min: 0, Max: 111.24},
		InternalResistance:    Range{Min: 0, Max: 0.286},
		OverCurrentProtection: Range{Min: 10.8, Max: 118.8},
		OverVoltageProtection: Range{Min: 3, Max: 33},
		VoltageSlewRising:     Range{Min: 0.06, Max: 60},
		VoltageSlewFalling:    Range{Min: 0.06, Max: 60},
		CurrentSlewRising:     Range{Min: 0.216, Max: 216},
		CurrentSlewFalling:    Range{Min: 0.216, Max: 216},
	}
}

// NewMock creates a simulated supply. A nil config uses an 8 Ohm load with a
// small measurement ripple.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			LoadResistance: 8.0,
			Noise:          0.001,
		}
	}

	caps := mockCapabilities()

	return &Mock{
		cfg:    cfg,
		caps:   caps,
		info:   "KEITHLEY INSTRUMENTS,2260B-30-108,0123456,1.07-1.04",
		mode:   ModeCVHS,
		ocp:    caps.OverCurrentProtection.Max,
		ovp:    caps.OverVoltageProtection.Max,
		slewVR: 1,
		slewVF: 1,
		slewCR: 1,
		slewCF: 1,
		dataCh: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Write consumes newline-terminated command lines. Queries queue a reply
// line; set commands only update the simulated state.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.closed:
		return 0, fmt.Errorf("port closed")
	default:
	}

	m.partial = append(m.partial, p...)
	for {
		idx := bytes.IndexByte(m.partial, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(m.partial[:idx]))
		m.partial = m.partial[idx+1:]
		if line == "" {
			continue
		}

		m.cmds = append(m.cmds, line)
		if reply := m.handle(line); reply != "" {
			m.pending = append(m.pending, reply+"\n"...)
			m.signal()
		}
	}

	return len(p), nil
}

// Read returns queued reply bytes, blocking until a reply is available or
// the mock is closed.
func (m *Mock) Read(p []byte) (int, error) {
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			n := copy(p, m.pending)
			m.pending = m.pending[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-m.dataCh:
		case <-m.closed:
			return 0, io.EOF
		}
	}
}

// Close shuts the mock down. Blocked readers return io.EOF.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

// Commands returns a copy of the command lines received so far.
func (m *Mock) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.cmds))
	copy(out, m.cmds)
	return out
}

func (m *Mock) signal() {
	select {
	case m.dataCh <- struct{}{}:
	default:
	}
}

// handle executes one command line and returns the reply, or "" when the
// command has none. Unknown commands and malformed arguments are ignored the
// way the instrument ignores them.
func (m *Mock) handle(line string) string {
	cmd, arg, _ := strings.Cut(line, " ")

	switch cmd {
	case "SYST:INF?":
		return m.info
	case "VOLT?":
		return boundReply(arg, m.voltage, m.caps.Voltage)
	case "CURR?":
		return boundReply(arg, m.current, m.caps.Current)
	case "RES?":
		return boundReply(arg, m.resistance, m.caps.InternalResistance)
	case "CURR:PROT?":
		return boundReply(arg, m.ocp, m.caps.OverCurrentProtection)
	case "VOLT:PROT?":
		return boundReply(arg, m.ovp, m.caps.OverVoltageProtection)
	case "VOLT:SLEW:RIS?":
		return boundReply(arg, m.slewVR, m.caps.VoltageSlewRising)
	case "VOLT:SLEW:FALL?":
		return boundReply(arg, m.slewVF, m.caps.VoltageSlewFalling)
	case "CURR:SLEW:RIS?":
		return boundReply(arg, m.slewCR, m.caps.CurrentSlewRising)
	case "CURR:SLEW:FALL?":
		return boundReply(arg, m.slewCF, m.caps.CurrentSlewFalling)
	case "APPL?":
		return formatFloat(m.voltage) + "," + formatFloat(m.current)
	case "MEAS:VOLT?":
		v, _, _ := m.measure()
		return formatFloat(v)
	case "MEAS:CURR?":
		_, i, _ := m.measure()
		return formatFloat(i)
	case "MEAS:POW?":
		_, _, p := m.measure()
		return formatFloat(p)
	case "OUTP:MODE?":
		return m.mode.code()

	case "VOLT":
		storeFloat(&m.voltage, arg)
	case "CURR":
		storeFloat(&m.current, arg)
	case "RES":
		storeFloat(&m.resistance, arg)
	case "CURR:PROT":
		storeFloat(&m.ocp, arg)
	case "VOLT:PROT":
		storeFloat(&m.ovp, arg)
	case "VOLT:SLEW:RIS":
		storeFloat(&m.slewVR, arg)
	case "VOLT:SLEW:FALL":
		storeFloat(&m.slewVF, arg)
	case "CURR:SLEW:RIS":
		storeFloat(&m.slewCR, arg)
	case "CURR:SLEW:FALL":
		storeFloat(&m.slewCF, arg)
	case "APPL":
		v, i, ok := strings.Cut(arg, ",")
		if ok {
			storeFloat(&m.voltage, v)
			storeFloat(&m.current, i)
		}
	case "OUTP":
		switch arg {
		case "1":
			m.output = true
		case "0":
			m.output = false
		}
	case "OUTP:MODE":
		if Mode(arg).valid() {
			m.mode = Mode(arg)
		}
	case "ABOR":
		// Nothing pending to cancel in the simulation.
	}

	return ""
}

// boundReply answers a parameter query for the setpoint or one of its limits.
func boundReply(arg string, setting float64, r Range) string {
	switch arg {
	case "MIN":
		return formatFloat(r.Min)
	case "MAX":
		return formatFloat(r.Max)
	default:
		return formatFloat(setting)
	}
}

func storeFloat(dst *float64, arg string) {
	if v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64); err == nil {
		*dst = v
	}
}

// measure computes the output the configured load would see. A load above
// the critical resistance (Vset/Iset) puts the supply in constant voltage,
// below it in constant current. Power is rounded to one decimal the way the
// instrument reports it.
func (m *Mock) measure() (v, i, p float64) {
	m.tick++

	if !m.output {
		return 0, 0, 0
	}

	rl := m.cfg.LoadResistance
	if rl > 0 && m.current > 0 && rl >= m.voltage/m.current {
		v = m.voltage
		i = v / rl
	} else {
		i = m.current
		v = i * rl
	}

	ripple := 1 + m.cfg.Noise*math.Sin(float64(m.tick))
	v *= ripple
	i *= ripple

	p = math.Round(v*i*10) / 10
	return v, i, p
}
