package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/vidfriends/friendships/internal/config"
	"github.com/vidfriends/friendships/internal/handlers"
	"github.com/vidfriends/friendships/internal/httpserver"
	"github.com/vidfriends/friendships/internal/logging"
	"github.com/vidfriends/friendships/internal/middleware"
)

// Run bootstraps the friendships service.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return runMigrations(ctx, cfg, args[1:])
	case "seed":
		return runSeed(ctx, cfg, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, buildDependencies(store, cfg))

	handler := middleware.RequestLogger(logger)(mux)
	srv := httpserver.New(cfg.AppPort, handler)

	logger.Info("starting http server", "port", cfg.AppPort, "store", cfg.StoreDriver)
	return srv.Run(ctx, logger)
}

func runSeed(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. 0001_dev_relationships)")
	}

	seedName := args[0]
	if !strings.HasSuffix(seedName, ".sql") {
		seedName += ".sql"
	}

	contents, err := os.ReadFile(filepath.Join(resolveDir(cfg.SeedDir), seedName))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", seedName, err)
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if err := applyPostgresScript(ctx, cfg, string(contents)); err != nil {
			return fmt.Errorf("apply seed %s: %w", seedName, err)
		}
	case config.DriverSQLite:
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.gorm.WithContext(ctx).Exec(string(contents)).Error; err != nil {
			return fmt.Errorf("apply seed %s: %w", seedName, err)
		}
	default:
		return fmt.Errorf("seeds are not supported for the %s store", cfg.StoreDriver)
	}

	fmt.Printf("applied seed %s\n", seedName)
	return nil
}

func resolveDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return dir
	}
	return filepath.Join(wd, dir)
}
