package sampler

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeries_WriteCSV(t *testing.T) {
	s := Series{
		Voltage: []float64{1.5, 2, 10},
		Current: []float64{0.1, 0.2, 0.3},
		Power:   []float64{0.15, 0.4, 3},
	}

	var buf bytes.Buffer
	require.NoError(t, s.WriteCSV(&buf))

	assert.Equal(t, "1.5,2,10\n0.1,0.2,0.3\n0.15,0.4,3\n", buf.String())
}

func TestSeries_WriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Series{}.WriteCSV(&buf))

	// Three rows either way, so the file shape is fixed.
	assert.Equal(t, "\n\n\n", buf.String())
}

func TestSeries_Save(t *testing.T) {
	s := Series{
		Voltage: []float64{5.123},
		Current: []float64{2.5},
		Power:   []float64{12.8},
	}

	filename := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, s.Save(filename))

	got, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "5.123\n2.5\n12.8\n", string(got))
}

func TestSeries_Save_BadPath(t *testing.T) {
	err := Series{}.Save(filepath.Join(t.TempDir(), "missing", "data.csv"))
	assert.Error(t, err)
}

func TestSeries_Len(t *testing.T) {
	assert.Zero(t, Series{}.Len())

	s := Series{
		Voltage: []float64{1, 2},
		Current: []float64{3, 4},
		Power:   []float64{5, 6},
	}
	assert.Equal(t, 2, s.Len())
}

func TestSeries_CloneIsIndependent(t *testing.T) {
	s := Series{
		Voltage: []float64{1},
		Current: []float64{2},
		Power:   []float64{3},
	}

	c := s.clone()
	c.Voltage[0] = 99

	assert.Equal(t, 1.0, s.Voltage[0])
}
