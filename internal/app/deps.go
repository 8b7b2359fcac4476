package app

import (
	"github.com/vidfriends/friendships/internal/config"
	"github.com/vidfriends/friendships/internal/handlers"
	"github.com/vidfriends/friendships/internal/middleware"
	"github.com/vidfriends/friendships/internal/relationships"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(store *relationshipStore, cfg config.Config) handlers.Dependencies {
	engine := relationships.NewEngine(store.repo,
		relationships.WithTimeout(cfg.OperationTimeout),
		relationships.WithObserver(relationships.LogObserver{}),
	)
	queries := relationships.NewQueryService(store.repo,
		relationships.WithFanoutLimit(cfg.FanoutLimit),
	)

	return handlers.Dependencies{
		Engine:      engine,
		Queries:     queries,
		Limiter:     middleware.NewRateLimiter(cfg.RateLimit),
		StoreName:   store.driver,
		HealthCheck: store.ping,
	}
}
