package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/orchardscan/internal/adapters/nats"
	"github.com/samirrijal/orchardscan/internal/adapters/provider"
	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/core/ports"
	"github.com/samirrijal/orchardscan/internal/core/usecases"
	"github.com/samirrijal/orchardscan/internal/pkg/config"
	"github.com/samirrijal/orchardscan/internal/pkg/logging"
	"github.com/samirrijal/orchardscan/internal/pkg/telemetry"
	"github.com/samirrijal/orchardscan/internal/workflows"
)

func main() {
	cfg, err := config.Load("orchardscan-analyzer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	orchards, err := provider.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}
	defer orchards.Close()

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, analysis events disabled", "error", err)
	} else {
		publisher = pub
		defer pub.Close()
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.OrchardAnalysisWorkflow)
	w.RegisterActivity(&workflows.AnalysisActivities{
		Analysis: usecases.NewAnalysisService(orchards.Orchards, publisher, cfg.Detection),
		Cache:    orchards.Orchards,
	})

	// One workflow per imported survey.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats subscriber unavailable, only explicitly started workflows will run", "error", err)
	} else {
		defer sub.Close()
		err = sub.SubscribeSurveyImported(ctx, func(ctx context.Context, event *domain.SurveyImported) error {
			return startAnalysis(ctx, c, cfg.Temporal.TaskQueue, event)
		})
		if err != nil {
			log.Fatalf("subscribe: %v", err)
		}
	}

	slog.Info("analyzer worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func startAnalysis(ctx context.Context, c client.Client, taskQueue string, event *domain.SurveyImported) error {
	opts := client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(event.OrchardID, event.SurveyID),
		TaskQueue: taskQueue,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, workflows.OrchardAnalysisWorkflow, workflows.AnalysisInput{
		OrchardID: event.OrchardID,
		SurveyID:  event.SurveyID,
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "analysis workflow started",
		"orchard_id", event.OrchardID, "survey_id", event.SurveyID,
		"workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}
