package timeseries

import (
	"encoding/json"
	"fmt"
	"time"
)

// Series is a bag of equal-length columns sharing one time axis, plus
// scalar attributes. Timestamps are kept in the order the source emitted
// them; portals deliver them non-decreasing and we do not re-sort.
type Series struct {
	Time    []time.Time
	Floats  map[string][]float64
	Strings map[string][]string
	Attrs   map[string]string
}

// New returns an empty series ready for column appends.
func New() *Series {
	return &Series{
		Floats:  make(map[string][]float64),
		Strings: make(map[string][]string),
		Attrs:   make(map[string]string),
	}
}

// Len reports the number of samples on the time axis.
func (s *Series) Len() int { return len(s.Time) }

// AppendTime extends the time axis by one sample.
func (s *Series) AppendTime(t time.Time) {
	s.Time = append(s.Time, t)
}

// AppendFloat extends a float column by one value.
func (s *Series) AppendFloat(name string, v float64) {
	s.Floats[name] = append(s.Floats[name], v)
}

// AppendString extends a string column by one value.
func (s *Series) AppendString(name, v string) {
	s.Strings[name] = append(s.Strings[name], v)
}

// Validate checks that every column matches the time axis length.
func (s *Series) Validate() error {
	n := len(s.Time)
	for name, col := range s.Floats {
		if len(col) != n {
			return fmt.Errorf("column %q has %d values for %d timestamps", name, len(col), n)
		}
	}
	for name, col := range s.Strings {
		if len(col) != n {
			return fmt.Errorf("column %q has %d values for %d timestamps", name, len(col), n)
		}
	}
	return nil
}

// TStart returns the earliest timestamp, or the zero time for an empty series.
func (s *Series) TStart() time.Time {
	var min time.Time
	for _, t := range s.Time {
		if min.IsZero() || t.Before(min) {
			min = t
		}
	}
	return min
}

// TEnd returns the latest timestamp, or the zero time for an empty series.
func (s *Series) TEnd() time.Time {
	var max time.Time
	for _, t := range s.Time {
		if t.After(max) {
			max = t
		}
	}
	return max
}

type seriesJSON struct {
	Time    []string            `json:"time"`
	Floats  map[string][]float64 `json:"floats,omitempty"`
	Strings map[string][]string  `json:"strings,omitempty"`
	Attrs   map[string]string    `json:"attrs,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// MarshalJSON renders the series in the shape stored in the record tables.
func (s *Series) MarshalJSON() ([]byte, error) {
	out := seriesJSON{
		Time:    make([]string, 0, len(s.Time)),
		Floats:  s.Floats,
		Strings: s.Strings,
		Attrs:   s.Attrs,
	}
	for _, t := range s.Time {
		out.Time = append(out.Time, t.UTC().Format(timeLayout))
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a series stored by MarshalJSON.
func (s *Series) UnmarshalJSON(data []byte) error {
	var in seriesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Time = s.Time[:0]
	for _, raw := range in.Time {
		t, err := time.Parse(timeLayout, raw)
		if err != nil {
			return fmt.Errorf("bad timestamp %q: %w", raw, err)
		}
		s.Time = append(s.Time, t)
	}
	s.Floats = in.Floats
	s.Strings = in.Strings
	s.Attrs = in.Attrs
	if s.Floats == nil {
		s.Floats = make(map[string][]float64)
	}
	if s.Strings == nil {
		s.Strings = make(map[string][]string)
	}
	if s.Attrs == nil {
		s.Attrs = make(map[string]string)
	}
	return nil
}
