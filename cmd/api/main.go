package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/orchardscan/internal/adapters/http"
	natsadapter "github.com/samirrijal/orchardscan/internal/adapters/nats"
	"github.com/samirrijal/orchardscan/internal/adapters/provider"
	"github.com/samirrijal/orchardscan/internal/core/ports"
	"github.com/samirrijal/orchardscan/internal/core/usecases"
	"github.com/samirrijal/orchardscan/internal/pkg/config"
	"github.com/samirrijal/orchardscan/internal/pkg/logging"
	"github.com/samirrijal/orchardscan/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("orchardscan-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, os.Getenv("LOG_FORMAT"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Orchard data
	orchards, err := provider.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}
	defer orchards.Close()

	// NATS publisher for analysis events
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, analysis events disabled", "error", err)
	} else {
		publisher = pub
		defer pub.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	deps := &http.Dependencies{
		Analysis:         usecases.NewAnalysisService(orchards.Orchards, publisher, cfg.Detection),
		NATS:             natsConn,
		DefaultOrchardID: cfg.Provider.DefaultOrchardID,
		AnalysisTimeout:  time.Duration(cfg.Server.AnalysisTimeout) * time.Second,
		Version:          version,
	}
	if orchards.DB != nil {
		deps.DB = orchards.DB
		go orchards.DB.ReportPoolStats(ctx, 15*time.Second)
	}
	if orchards.Cache != nil {
		deps.Cache = orchards.Cache
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Orchardscan API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "provider", cfg.Provider.Kind, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
