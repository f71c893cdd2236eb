package mppsolar

import (
	"time"

	"go.uber.org/zap"
)

type Instrument struct {
	RecordTime func(command string, duration time.Duration, err error)
}

func RecordTimer(command string, instrument []Instrument) func(error) {
	if len(instrument) == 0 {
		return func(error) {}
	}

	start := time.Now()
	return func(err error) {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(command, duration, err)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *Instrument {
	if logger == nil || !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &Instrument{
		RecordTime: func(command string, duration time.Duration, err error) {
			logger.Debug("command completed", zap.String("command", command),
				zap.Duration("duration", duration), zap.Error(err))
		},
	}
}
