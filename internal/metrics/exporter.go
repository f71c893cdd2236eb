package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"
	"mppsolar2mqtt/pkg/mppsolar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
)

const (
	metricPrefix = "mppsolar_"

	resultSuccess = "success"
	resultError   = "error"
)

// Exporter mirrors published paths as Prometheus gauges. Numeric paths become
// mppsolar_path_value, any other value becomes an info series.
type Exporter struct {
	registry *prometheus.Registry

	pathValue       *prometheus.GaugeVec
	pathInfo        *prometheus.GaugeVec
	pathWrites      *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	commandTotal    *prometheus.CounterVec

	mu       sync.Mutex
	infoSeen map[string]string
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		pathValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "path_value",
				Help: "Last value published on a numeric service path",
			},
			[]string{"service", "path"},
		),
		pathInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "path_info",
				Help: "Last value published on a text service path, as a label",
			},
			[]string{"service", "path", "value"},
		),
		pathWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "path_writes_total",
				Help: "Total path writes by service",
			},
			[]string{"service"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "command_duration_seconds",
				Help:    "Device command latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"command"},
		),
		commandTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Total device commands by result",
			},
			[]string{"command", "result"},
		),
		infoSeen: map[string]string{},
	}
	e.registry.MustRegister(
		e.pathValue,
		e.pathInfo,
		e.pathWrites,
		e.commandDuration,
		e.commandTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Instrument records every device command into the command histogram.
func (e *Exporter) Instrument() *mppsolar.Instrument {
	return &mppsolar.Instrument{
		RecordTime: func(command string, d time.Duration, err error) {
			result := resultSuccess
			if err != nil {
				result = resultError
			}
			e.commandDuration.WithLabelValues(command).Observe(d.Seconds())
			e.commandTotal.WithLabelValues(command, result).Inc()
		},
	}
}

func (e *Exporter) set(service string, path string, value any) {
	e.pathWrites.WithLabelValues(service).Inc()
	if value == nil {
		return
	}
	if f, err := cast.ToFloat64E(value); err == nil {
		e.pathValue.WithLabelValues(service, path).Set(f)
		return
	}
	text := fmt.Sprintf("%v", value)

	e.mu.Lock()
	defer e.mu.Unlock()
	key := service + path
	if previous, ok := e.infoSeen[key]; ok && previous != text {
		e.pathInfo.DeleteLabelValues(service, path, previous)
	}
	e.infoSeen[key] = text
	e.pathInfo.WithLabelValues(service, path, text).Set(1)
}

// Sink returns the path sink of one service.
func (e *Exporter) Sink(kind domain.ServiceKind) *Sink {
	return &Sink{exporter: e, service: kind.String(), paths: map[string]any{}}
}

type Sink struct {
	exporter *Exporter
	service  string
	paths    map[string]any
}

func (s *Sink) AddPath(path string, value any, required bool, description string) error {
	s.paths[path] = value
	return nil
}

func (s *Sink) Register() error {
	for path, value := range s.paths {
		if value != nil {
			s.exporter.set(s.service, path, value)
		}
	}
	return nil
}

func (s *Sink) Set(path string, value any) error {
	if _, ok := s.paths[path]; !ok {
		return fmt.Errorf("set %s: unknown path of service %s", path, s.service)
	}
	s.exporter.set(s.service, path, value)
	return nil
}

// ensure interface compliance
var _ port.PublishSink = (*Sink)(nil)
