package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Supply is the slice of the power supply the sampler drives.
type Supply interface {
	MeasureVoltage() (float64, error)
	MeasureCurrent() (float64, error)
	MeasurePower() (float64, error)
	PowerOn() error
	PowerOff() error
}

const (
	// DefaultPeriod is the time between measurement triples.
	DefaultPeriod = 50 * time.Millisecond
	// DefaultOutput is the file the series are persisted to on stop.
	DefaultOutput = "PS_data.csv"

	// stopGrace is added to one period when waiting for the loop to exit.
	stopGrace = time.Second
	// settleDelay is how long the output is given to discharge before
	// StopSupply stops sampling.
	settleDelay = 200 * time.Millisecond
)

var (
	// ErrAlreadyRunning is returned by Start when the sampler is running.
	ErrAlreadyRunning = errors.New("sampler already running")
	// ErrNotRunning is returned by Stop when the sampler is idle.
	ErrNotRunning = errors.New("sampler not running")
)

// Sampler periodically measures voltage, current and power and accumulates
// the readings in memory until stopped.
//
// While the sampler runs it owns the device connection: foreground code must
// not issue commands of its own, except through StartSupply and StopSupply
// which serialize with the loop. The control methods (Start, Stop, Running
// and the two composites) belong to that single foreground goroutine and are
// not safe to call concurrently with each other; Snapshot and Err may be
// called from anywhere.
type Sampler struct {
	dev    Supply
	period time.Duration
	output string

	// mu guards the series and loopErr. The loop holds it for the whole
	// measurement triple and the append, never across the tick wait.
	mu     sync.Mutex
	series Series

	loopErr error

	// Control state, touched only by the foreground goroutine.
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a sampler reading dev every period. A period of zero or less
// falls back to DefaultPeriod, an empty output to DefaultOutput.
func New(dev Supply, period time.Duration, output string) *Sampler {
	if period <= 0 {
		period = DefaultPeriod
	}
	if output == "" {
		output = DefaultOutput
	}

	return &Sampler{
		dev:    dev,
		period: period,
		output: output,
	}
}

// Start begins the measurement loop. The series of a previous run are
// discarded. Starting an already running sampler is an error, even when its
// loop was killed by a measurement error: the run must be stopped first so
// the readings are persisted.
func (s *Sampler) Start() error {
	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.mu.Lock()
	s.series = Series{}
	s.loopErr = nil
	s.mu.Unlock()

	s.running = true
	go s.run(ctx, s.done)

	return nil
}

// Stop halts the loop, waits for it to exit and persists the series to the
// output file. The wait is bounded by one period plus a grace second. If the
// loop does not exit in time (a reply stalled on a transport with no read
// timeout), nothing is persisted and a timeout error is returned; the series
// stay in memory and can be saved through Snapshot once the loop dies. A
// measurement error that killed the loop earlier takes precedence over
// persistence errors.
func (s *Sampler) Stop() error {
	if !s.running {
		return ErrNotRunning
	}
	s.running = false

	s.cancel()

	select {
	case <-s.done:
	case <-time.After(s.period + stopGrace):
		return fmt.Errorf("sampling loop did not exit within %v, measurements left in memory", s.period+stopGrace)
	}

	s.mu.Lock()
	snapshot := s.series.clone()
	s.mu.Unlock()
	loopErr := s.loopErr // the loop is done, no write can follow

	saveErr := snapshot.Save(s.output)
	if loopErr != nil {
		if saveErr != nil {
			logrus.Errorf("Failed to persist measurements: %v", saveErr)
		}
		return loopErr
	}
	return saveErr
}

// Running reports whether the measurement loop is active. A loop killed by a
// measurement error reports false even before Stop is called.
func (s *Sampler) Running() bool {
	if !s.running {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Snapshot returns a copy of the accumulated series. It may be called while
// the sampler is running; the copy waits for the measurement triple in
// flight, never longer.
func (s *Sampler) Snapshot() Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.series.clone()
}

// Err returns the measurement error that killed the loop, if any.
func (s *Sampler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopErr
}

// StartSupply enables the output and starts sampling.
func (s *Sampler) StartSupply() error {
	if err := s.dev.PowerOn(); err != nil {
		return err
	}
	return s.Start()
}

// StopSupply disables the output, lets it settle and stops sampling, which
// persists the series. The power-off command is serialized with the
// measurement loop.
func (s *Sampler) StopSupply() error {
	s.mu.Lock()
	err := s.dev.PowerOff()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	time.Sleep(settleDelay)
	return s.Stop()
}

// run measures one triple per tick until cancelled or a measurement fails.
func (s *Sampler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		if err := s.sampleOnce(); err != nil {
			logrus.Errorf("Sampling stopped: %v", err)
			s.mu.Lock()
			s.loopErr = err
			s.mu.Unlock()
			return
		}

		// Cancellation wins over a pending tick, so at most the triple in
		// flight completes after Stop.
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sampleOnce performs the three measurement round trips and appends the
// triple. The lock is held across all three so nothing can interleave with
// the conversation or observe a torn triple. A failed measurement appends
// nothing, keeping the three series the same length.
func (s *Sampler) sampleOnce() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.dev.MeasureVoltage()
	if err != nil {
		return fmt.Errorf("failed to measure voltage: %w", err)
	}
	i, err := s.dev.MeasureCurrent()
	if err != nil {
		return fmt.Errorf("failed to measure current: %w", err)
	}
	p, err := s.dev.MeasurePower()
	if err != nil {
		return fmt.Errorf("failed to measure power: %w", err)
	}

	s.series.Voltage = append(s.series.Voltage, v)
	s.series.Current = append(s.series.Current, i)
	s.series.Power = append(s.series.Power, p)

	return nil
}
