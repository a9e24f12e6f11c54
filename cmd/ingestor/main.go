package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	natsadapter "github.com/samirrijal/orchardscan/internal/adapters/nats"
	"github.com/samirrijal/orchardscan/internal/adapters/postgres"
	"github.com/samirrijal/orchardscan/internal/adapters/provider"
	"github.com/samirrijal/orchardscan/internal/core/ports"
	"github.com/samirrijal/orchardscan/internal/core/usecases"
	"github.com/samirrijal/orchardscan/internal/pkg/config"
	"github.com/samirrijal/orchardscan/internal/pkg/logging"
)

// Copies the latest Aerobotics survey of each orchard into Postgres and
// announces it on NATS.
//
//	ingestor [-concurrency 4] [orchard-id,...]
//
// Without arguments the configured default orchard is imported.
func main() {
	concurrency := flag.Int("concurrency", 4, "orchards imported in parallel")
	flag.Parse()

	cfg, err := config.Load("orchardscan-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	ids := orchardIDs(flag.Args(), cfg.Provider.DefaultOrchardID)
	if len(ids) == 0 {
		log.Fatal("usage: ingestor [orchard-id,...]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	source, err := provider.NewAerobotics(cfg)
	if err != nil {
		log.Fatal(err)
	}

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, imports will not trigger analyses", "error", err)
	} else {
		publisher = pub
		defer pub.Close()
	}

	importer := usecases.NewImportService(source, postgres.NewOrchardRepo(db), publisher)
	slog.Info("orchardscan survey ingestor", "orchards", len(ids), "source", cfg.Provider.BaseURL)

	var g errgroup.Group
	g.SetLimit(*concurrency)
	failed := make([]bool, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			if _, err := importer.Import(ctx, id); err != nil {
				slog.Error("import failed", "orchard_id", id, "error", err)
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	if n > 0 {
		slog.Error("ingestion finished with failures", "failed", n, "total", len(ids))
		os.Exit(1)
	}
	slog.Info("ingestion complete", "orchards", len(ids))
}

// orchardIDs flattens comma-separated arguments, dropping blanks and
// duplicates.
func orchardIDs(args []string, fallback string) []string {
	seen := map[string]bool{}
	var ids []string
	for _, a := range args {
		for _, id := range strings.Split(a, ",") {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 && fallback != "" {
		ids = append(ids, fallback)
	}
	return ids
}
