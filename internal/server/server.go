package server

import (
	"fmt"
	"net/http"
	"time"

	"mppsolar2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port           uint
	httpLog        bool
	rootContext    *actor.RootContext
	masterActor    *actor.PID
	metricsHandler http.Handler
}

type Option func(*Server)

// WithMetrics serves handler on /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = handler
	}
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, opts ...Option) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
	}
	for _, opt := range opts {
		opt(NewServer)
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
