package models

import (
	"fmt"
	"time"
)

// Observation is a single timestamped numeric measurement within a series.
type Observation struct {
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Value     float64   `json:"value" db:"value"`
}

// Series is a named time-indexed sequence of observations. Timestamps are
// strictly increasing with no duplicates; the store adapter validates this
// at the ingestion boundary and the analysis core treats it as read-only.
type Series struct {
	Name   string        `json:"name"`
	Points []Observation `json:"points"`
}

// Len returns the number of observations in the series.
func (s *Series) Len() int {
	return len(s.Points)
}

// Validate checks the strictly-increasing timestamp invariant.
func (s *Series) Validate() error {
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Timestamp.After(s.Points[i-1].Timestamp) {
			return fmt.Errorf("series %s: timestamps not strictly increasing at index %d (%s >= %s)",
				s.Name, i, s.Points[i-1].Timestamp.Format(time.RFC3339), s.Points[i].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Value is a frame cell that carries an explicit no-value marker. Missing
// source data is represented as Valid=false, never silently dropped.
type Value struct {
	Float64 float64 `json:"value"`
	Valid   bool    `json:"valid"`
}

// SomeValue returns a present cell.
func SomeValue(v float64) Value {
	return Value{Float64: v, Valid: true}
}

// NoValue returns a missing cell.
func NoValue() Value {
	return Value{}
}

// AlignedFrame is the joined view of all feature series on one calendar.
// Every column has exactly one cell per calendar tick. A frame is owned by
// a single analysis run and is read-only once built.
type AlignedFrame struct {
	Start    time.Time          `json:"start"`
	End      time.Time          `json:"end"`
	Interval time.Duration      `json:"interval"`
	Index    []time.Time        `json:"index"`
	Names    []string           `json:"names"`
	Columns  map[string][]Value `json:"columns"`
}

// Rows returns the number of calendar ticks in the frame.
func (f *AlignedFrame) Rows() int {
	return len(f.Index)
}

// Column returns the cells for a named series and whether it exists.
func (f *AlignedFrame) Column(name string) ([]Value, bool) {
	col, ok := f.Columns[name]
	return col, ok
}

// ValidCount returns how many cells of a column carry a real value.
func (f *AlignedFrame) ValidCount(name string) int {
	count := 0
	for _, cell := range f.Columns[name] {
		if cell.Valid {
			count++
		}
	}
	return count
}

// ValidValues returns the present values of a column in row order.
func (f *AlignedFrame) ValidValues(name string) []float64 {
	values := make([]float64, 0, len(f.Columns[name]))
	for _, cell := range f.Columns[name] {
		if cell.Valid {
			values = append(values, cell.Float64)
		}
	}
	return values
}

// PairedValues returns the rows where both columns carry a real value.
func (f *AlignedFrame) PairedValues(a, b string) (x, y []float64) {
	colA, colB := f.Columns[a], f.Columns[b]
	for i := range f.Index {
		if colA[i].Valid && colB[i].Valid {
			x = append(x, colA[i].Float64)
			y = append(y, colB[i].Float64)
		}
	}
	return x, y
}
