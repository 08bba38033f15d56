package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trendlens/trendlens-go/internal/models"
)

// ErrInsufficientWindow is returned when no series contributes any
// observation inside the requested window. It aborts the whole run; a
// series that merely has gaps contributes an all-missing column instead.
var ErrInsufficientWindow = errors.New("no series has data inside the requested window")

// IsInsufficientWindow reports whether err wraps ErrInsufficientWindow.
func IsInsufficientWindow(err error) bool {
	return errors.Is(err, ErrInsufficientWindow)
}

// AlignerConfig holds resampling policy for the aligner.
type AlignerConfig struct {
	Interval     time.Duration
	MaxStaleness time.Duration
}

// Aligner resamples and joins heterogeneous series onto one calendar.
type Aligner struct {
	config AlignerConfig
	logger *logrus.Logger
}

// NewAligner creates an aligner with the given resampling policy.
func NewAligner(config AlignerConfig, logger *logrus.Logger) *Aligner {
	return &Aligner{config: config, logger: logger}
}

// Align produces an AlignedFrame covering exactly [start, end] at the
// configured interval. Each cell takes the last known value of its series
// within the staleness bound; staler or absent data becomes an explicit
// no-value cell, never an extrapolation.
func (a *Aligner) Align(series []models.Series, start, end time.Time) (*models.AlignedFrame, error) {
	if a.config.Interval <= 0 {
		return nil, fmt.Errorf("sampling interval must be positive, got %s", a.config.Interval)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("window end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	index := buildCalendar(start, end, a.config.Interval)

	names := make([]string, 0, len(series))
	byName := make(map[string]models.Series, len(series))
	for _, s := range series {
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate series name %q", s.Name)
		}
		names = append(names, s.Name)
		byName[s.Name] = s
	}
	sort.Strings(names)

	frame := &models.AlignedFrame{
		Start:    start,
		End:      end,
		Interval: a.config.Interval,
		Index:    index,
		Names:    names,
		Columns:  make(map[string][]models.Value, len(names)),
	}

	anyData := false
	for _, name := range names {
		col, hasData := a.resample(byName[name], index)
		frame.Columns[name] = col
		if hasData {
			anyData = true
		}
	}

	if !anyData {
		return nil, fmt.Errorf("aligning %d series over [%s, %s]: %w",
			len(series), start.Format(time.RFC3339), end.Format(time.RFC3339), ErrInsufficientWindow)
	}

	a.logger.WithFields(logrus.Fields{
		"series":   len(names),
		"rows":     len(index),
		"interval": a.config.Interval.String(),
	}).Debug("Aligned frame built")

	return frame, nil
}

// resample maps one series onto the calendar with last-known-value
// carry-forward bounded by MaxStaleness. The bool reports whether any
// observation fell inside the window at all.
func (a *Aligner) resample(s models.Series, index []time.Time) ([]models.Value, bool) {
	col := make([]models.Value, len(index))
	hasData := false

	next := 0
	last := -1
	for i, tick := range index {
		for next < len(s.Points) && !s.Points[next].Timestamp.After(tick) {
			last = next
			next++
		}
		if last < 0 {
			continue
		}
		obs := s.Points[last]
		if tick.Sub(obs.Timestamp) > a.config.MaxStaleness {
			continue
		}
		col[i] = models.SomeValue(obs.Value)
		if !obs.Timestamp.Before(index[0]) {
			hasData = true
		}
	}

	return col, hasData
}

// buildCalendar returns one tick per interval in [start, end], inclusive.
func buildCalendar(start, end time.Time, interval time.Duration) []time.Time {
	var index []time.Time
	for t := start; !t.After(end); t = t.Add(interval) {
		index = append(index, t)
	}
	return index
}
