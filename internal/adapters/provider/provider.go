// Package provider assembles the configured OrchardProvider: Aerobotics or
// the imported Postgres copy, behind the Valkey read-through cache.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/orchardscan/internal/adapters/aerobotics"
	"github.com/samirrijal/orchardscan/internal/adapters/postgres"
	"github.com/samirrijal/orchardscan/internal/adapters/valkey"
	"github.com/samirrijal/orchardscan/internal/core/ports"
	"github.com/samirrijal/orchardscan/internal/core/usecases"
	"github.com/samirrijal/orchardscan/internal/pkg/config"
)

// Set is an opened provider and the connections it owns.
type Set struct {
	Orchards *usecases.OrchardService
	DB       *postgres.DB  // nil unless provider.kind=postgres
	Cache    *valkey.Cache // nil when Valkey is unreachable or caching is off
}

// Open connects the provider chosen by cfg.Provider.Kind. Valkey is
// optional: without it every request goes to the backing provider.
func Open(ctx context.Context, cfg *config.Config) (*Set, error) {
	set := &Set{}

	var backing ports.OrchardProvider
	switch cfg.Provider.Kind {
	case config.ProviderPostgres:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		set.DB = db
		backing = postgres.NewOrchardRepo(db)
	default:
		client, err := NewAerobotics(cfg)
		if err != nil {
			return nil, err
		}
		backing = client
	}

	var cache ports.CacheService
	if cfg.Provider.CacheTTL > 0 {
		c, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, caching disabled", "error", err)
		} else {
			set.Cache = c
			cache = c
		}
	}

	set.Orchards = usecases.NewOrchardService(backing, cache, cfg.Provider.CacheTTL)
	slog.Info("orchard provider ready", "kind", cfg.Provider.Kind, "cache", set.Cache != nil)
	return set, nil
}

// NewAerobotics builds the Aerobotics client from cfg.Provider.
func NewAerobotics(cfg *config.Config) (*aerobotics.Client, error) {
	client, err := aerobotics.New(cfg.Provider.BaseURL, cfg.Provider.Token,
		aerobotics.WithTimeout(time.Duration(cfg.Provider.Timeout)*time.Second),
		aerobotics.WithMaxRetries(cfg.Provider.Retries+1),
	)
	if err != nil {
		return nil, fmt.Errorf("aerobotics client: %w", err)
	}
	return client, nil
}

// Close releases the connections.
func (s *Set) Close() {
	if s.Cache != nil {
		s.Cache.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
