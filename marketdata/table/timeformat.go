package table

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// TimeFormat is one of the fixed timestamp representations of the proxy.
type TimeFormat uint8

const (
	// SecondFormat is YYYYMMDDhhmmss. Request parameters and bar data use it.
	SecondFormat TimeFormat = iota + 1
	// MicroFormat is YYYYMMDDhhmmssffffff. Tick and stream payloads use it.
	MicroFormat
)

const secondLayout = "20060102150405"

// ErrTimeFormat is returned when a timestamp deviates from its declared format.
var ErrTimeFormat = errors.New("timestamp does not match format")

// Len returns the exact number of digits of the format.
func (f TimeFormat) Len() int {
	switch f {
	case SecondFormat:
		return 14
	case MicroFormat:
		return 20
	}
	return 0
}

func (f TimeFormat) String() string {
	switch f {
	case SecondFormat:
		return "YYYYMMDDhhmmss"
	case MicroFormat:
		return "YYYYMMDDhhmmssffffff"
	}
	return "unknown"
}

// Format renders t in its own location. MicroFormat truncates to microseconds.
func (f TimeFormat) Format(t time.Time) string {
	s := t.Format(secondLayout)
	if f == MicroFormat {
		s += fmt.Sprintf("%06d", t.Nanosecond()/int(time.Microsecond))
	}
	return s
}

// Parse parses s in loc. Any deviation from the format fails.
func (f TimeFormat) Parse(s string, loc *time.Location) (time.Time, error) {
	n := f.Len()
	if n == 0 {
		return time.Time{}, fmt.Errorf("%w: unknown format %d", ErrTimeFormat, f)
	}
	if len(s) != n {
		return time.Time{}, fmt.Errorf("%w: %s needs %d digits, got %d", ErrTimeFormat, f, n, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return time.Time{}, fmt.Errorf("%w: %s: non-digit at offset %d", ErrTimeFormat, f, i)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(secondLayout, s[:14], loc)
	if err != nil {
		return time.Time{}, err
	}
	if f == MicroFormat {
		micros, err := strconv.Atoi(s[14:])
		if err != nil {
			return time.Time{}, err
		}
		t = t.Add(time.Duration(micros) * time.Microsecond)
	}
	return t, nil
}
