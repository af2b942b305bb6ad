package marketdata

import (
	"errors"
	"fmt"
	"time"

	"github.com/activetick-http/activetick-go/marketdata/fields"
	"github.com/activetick-http/activetick-go/marketdata/table"
)

var (
	// ErrEmptyFields is returned when a quote request names no fields
	ErrEmptyFields = errors.New("no quote fields requested")
	// ErrNoSymbols is returned when a request names no symbols
	ErrNoSymbols = errors.New("no symbols requested")
)

type (
	// UnknownFieldError is returned when a quote field name is not in the catalog.
	UnknownFieldError = fields.UnknownFieldError
	// MalformedRowError is returned when a response record cannot be decoded.
	MalformedRowError = table.MalformedRowError
)

// InvalidRangeError is returned when the end of a requested interval is
// before its beginning.
type InvalidRangeError struct {
	Begin time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range: end %s is before begin %s",
		e.End.Format(time.RFC3339), e.Begin.Format(time.RFC3339))
}

// InvalidGranularityError is returned when the intraday bar size is not
// between 0 and 60 minutes.
type InvalidGranularityError struct {
	Minutes int
}

func (e *InvalidGranularityError) Error() string {
	return fmt.Sprintf("invalid intraday minutes %d: must be between 0 and 60", e.Minutes)
}

// TransportError wraps a failed request to the proxy: either the
// connection failed or the proxy answered with a non-2xx status.
type TransportError struct {
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
