package sampler

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gopsu/pkg/psu"
)

// The real device session satisfies the Supply seam.
var _ Supply = (*psu.Session)(nil)

// fakeSupply returns fixed readings and records output switching.
type fakeSupply struct {
	mu      sync.Mutex
	v, i, p float64
	on      bool
	rounds  int
	failAt  int           // round whose current measurement fails (0 = never)
	block   chan struct{} // when non-nil, measurements block on it
}

func newFakeSupply() *fakeSupply {
	return &fakeSupply{v: 10, i: 1.25, p: 12.5}
}

func (f *fakeSupply) MeasureVoltage() (float64, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds++
	return f.v, nil
}

func (f *fakeSupply) MeasureCurrent() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && f.rounds >= f.failAt {
		return 0, errors.New("no reply")
	}
	return f.i, nil
}

func (f *fakeSupply) MeasurePower() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.p, nil
}

func (f *fakeSupply) PowerOn() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = true
	return nil
}

func (f *fakeSupply) PowerOff() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	return nil
}

func (f *fakeSupply) roundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rounds
}

func (f *fakeSupply) outputOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

func (f *fakeSupply) setReadings(v, i, p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v, f.i, f.p = v, i, p
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func tempOutput(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "out.csv")
}

func TestNew_Defaults(t *testing.T) {
	smp := New(newFakeSupply(), 0, "")
	assert.Equal(t, DefaultPeriod, smp.period)
	assert.Equal(t, DefaultOutput, smp.output)

	smp = New(newFakeSupply(), 10*time.Millisecond, "run.csv")
	assert.Equal(t, 10*time.Millisecond, smp.period)
	assert.Equal(t, "run.csv", smp.output)
}

func TestSampler_CollectsEqualSeries(t *testing.T) {
	dev := newFakeSupply()
	smp := New(dev, 5*time.Millisecond, tempOutput(t))

	require.NoError(t, smp.Start())
	waitFor(t, func() bool { return smp.Snapshot().Len() >= 3 }, "no samples collected")
	require.NoError(t, smp.Stop())

	snap := smp.Snapshot()
	require.GreaterOrEqual(t, snap.Len(), 3)
	assert.Len(t, snap.Current, snap.Len())
	assert.Len(t, snap.Power, snap.Len())

	for n := 0; n < snap.Len(); n++ {
		assert.Equal(t, 10.0, snap.Voltage[n])
		assert.Equal(t, 1.25, snap.Current[n])
		assert.Equal(t, 12.5, snap.Power[n])
	}
}

func TestSampler_StartWhileRunning(t *testing.T) {
	smp := New(newFakeSupply(), 5*time.Millisecond, tempOutput(t))

	require.NoError(t, smp.Start())
	assert.ErrorIs(t, smp.Start(), ErrAlreadyRunning)
	require.NoError(t, smp.Stop())
}

func TestSampler_StopWhenIdle(t *testing.T) {
	smp := New(newFakeSupply(), 5*time.Millisecond, tempOutput(t))

	assert.ErrorIs(t, smp.Stop(), ErrNotRunning)

	require.NoError(t, smp.Start())
	waitFor(t, func() bool { return smp.Snapshot().Len() >= 1 }, "no samples collected")
	require.NoError(t, smp.Stop())

	assert.ErrorIs(t, smp.Stop(), ErrNotRunning)
}

func TestSampler_RunningReflectsLoopState(t *testing.T) {
	smp := New(newFakeSupply(), 5*time.Millisecond, tempOutput(t))

	assert.False(t, smp.Running())
	require.NoError(t, smp.Start())
	assert.True(t, smp.Running())
	require.NoError(t, smp.Stop())
	assert.False(t, smp.Running())
}

func TestSampler_RestartDiscardsPreviousRun(t *testing.T) {
	dev := newFakeSupply()
	smp := New(dev, 5*time.Millisecond, tempOutput(t))

	require.NoError(t, smp.Start())
	waitFor(t, func() bool { return smp.Snapshot().Len() >= 2 }, "no samples collected")
	require.NoError(t, smp.Stop())

	dev.setReadings(20, 2.5, 50)

	require.NoError(t, smp.Start())
	waitFor(t, func() bool { return smp.Snapshot().Len() >= 1 }, "no samples after restart")
	require.NoError(t, smp.Stop())

	snap := smp.Snapshot()
	require.GreaterOrEqual(t, snap.Len(), 1)
	assert.Equal(t, 20.0, snap.Voltage[0], "series must restart empty")
}

func TestSampler_PersistsCSVOnStop(t *testing.T) {
	output := tempOutput(t)
	smp := New(newFakeSupply(), 5*time.Millisecond, output)

	require.NoError(t, smp.Start())
	waitFor(t, func() bool { return smp.Snapshot().Len() >= 2 }, "no samples collected")
	require.NoError(t, smp.Stop())

	snap := smp.Snapshot()

	var want bytes.Buffer
	require.NoError(t, snap.WriteCSV(&want))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(got))

	lines := strings.Split(strings.TrimRight(string(got), "\n"), "\n")
	require.Len(t, lines, 3, "voltage, current and power rows")
	for _, field := range strings.Split(lines[0], ",") {
		assert.Equal(t, "10", field)
	}
	for _, field := range strings.Split(lines[2], ",") {
		assert.Equal(t, "12.5", field)
	}
}

func TestSampler_MeasurementErrorKillsLoop(t *testing.T) {
	dev := newFakeSupply()
	dev.failAt = 3

	output := tempOutput(t)
	smp := New(dev, 5*time.Millisecond, output)

	require.NoError(t, smp.Start())
	waitFor(t, func() bool { return !smp.Running() }, "loop survived a failing measurement")

	require.Error(t, smp.Err())
	assert.Contains(t, smp.Err().Error(), "failed to measure current")

	// Stop surfaces the loop error but still persists what was collected.
	err := smp.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to measure current")

	snap := smp.Snapshot()
	assert.Equal(t, 2, snap.Len(), "only complete triples are kept")
	assert.Len(t, snap.Current, snap.Len())
	assert.Len(t, snap.Power, snap.Len())

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(got), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Len(t, strings.Split(lines[0], ","), 2)
}

func TestSampler_StartSupplyStopSupply(t *testing.T) {
	dev := newFakeSupply()
	output := tempOutput(t)
	smp := New(dev, 5*time.Millisecond, output)

	require.NoError(t, smp.StartSupply())
	assert.True(t, dev.outputOn())
	assert.True(t, smp.Running())

	waitFor(t, func() bool { return smp.Snapshot().Len() >= 2 }, "no samples collected")

	require.NoError(t, smp.StopSupply())
	assert.False(t, dev.outputOn())
	assert.False(t, smp.Running())

	_, err := os.Stat(output)
	assert.NoError(t, err, "stop must persist the series")
}
