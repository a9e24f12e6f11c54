package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/orchardscan/internal/core/usecases"
)

// Pinger is a backing service /v1/ready can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Analysis *usecases.AnalysisService
	NATS     *nats.Conn
	DB       Pinger
	Cache    Pinger

	// DefaultOrchardID is served by the legacy /detect_* routes.
	DefaultOrchardID string
	// AnalysisTimeout bounds each analysis request; zero means 15s.
	AnalysisTimeout time.Duration
	Version         string
	// Logger receives access and request logs; nil means slog.Default().
	Logger *slog.Logger
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Dependencies) analysisTimeout() time.Duration {
	if d.AnalysisTimeout <= 0 {
		return 15 * time.Second
	}
	return d.AnalysisTimeout
}
