package sink

import (
	"mppsolar2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// LogSink only logs, it is used when no downstream service is enabled.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(service string, logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.With(zap.String("service", service))}
}

func (s *LogSink) AddPath(path string, value any, required bool, description string) error {
	s.logger.Debug("sink@log add path", zap.String("path", path), zap.Any("value", value),
		zap.Bool("required", required), zap.String("description", description))
	return nil
}

func (s *LogSink) Set(path string, value any) error {
	s.logger.Info("sink@log set", zap.String("path", path), zap.Any("value", value))
	return nil
}

func (s *LogSink) Register() error {
	s.logger.Info("sink@log registered")
	return nil
}

// ensure interface compliance
var _ port.PublishSink = (*LogSink)(nil)
