package marketdata

import (
	"github.com/rs/zerolog"

	"github.com/activetick-http/activetick-go/internal/logger"
)

// Logger receives the client's diagnostics, such as cache store failures
// and stream lifecycle events.
type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type zeroLog struct {
	get func() zerolog.Logger
}

var _ Logger = (*zeroLog)(nil)

func (z *zeroLog) Infof(format string, v ...interface{}) {
	l := z.get()
	l.Info().Msgf(format, v...)
}

func (z *zeroLog) Warnf(format string, v ...interface{}) {
	l := z.get()
	l.Warn().Msgf(format, v...)
}

func (z *zeroLog) Errorf(format string, v ...interface{}) {
	l := z.get()
	l.Error().Msgf(format, v...)
}

// NewZerologLogger adapts a zerolog logger to Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zeroLog{get: func() zerolog.Logger { return l }}
}

// DefaultLogger returns a Logger writing through the process-wide zerolog
// logger, tagged with the marketdata component. The global logger is read on
// every call so a later logger.Setup takes effect.
func DefaultLogger() Logger {
	return &zeroLog{get: func() zerolog.Logger { return logger.Get("marketdata") }}
}
