package sampler

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Series holds the measurement history of one sampling run. The three slices
// always have equal length: a triple is appended only when all three
// measurements of a tick succeeded.
type Series struct {
	Voltage []float64
	Current []float64
	Power   []float64
}

// Len returns the number of complete measurement triples.
func (s Series) Len() int {
	return len(s.Voltage)
}

// clone returns a deep copy of the series.
func (s Series) clone() Series {
	out := Series{
		Voltage: make([]float64, len(s.Voltage)),
		Current: make([]float64, len(s.Current)),
		Power:   make([]float64, len(s.Power)),
	}
	copy(out.Voltage, s.Voltage)
	copy(out.Current, s.Current)
	copy(out.Power, s.Power)
	return out
}

// WriteCSV writes the series as three comma-separated rows: voltage first,
// then current, then power. No header is written.
func (s Series) WriteCSV(w io.Writer) error {
	for _, row := range [][]float64{s.Voltage, s.Current, s.Power} {
		fields := make([]string, len(row))
		for i, v := range row {
			fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if _, err := io.WriteString(w, strings.Join(fields, ",")+"\n"); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// Save writes the series to a CSV file, replacing it if it exists.
func (s Series) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}

	if err := s.WriteCSV(f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filename, err)
	}

	return nil
}
