package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vidfriends/friendships/internal/config"
	"github.com/vidfriends/friendships/internal/db"
	"github.com/vidfriends/friendships/internal/repositories"
)

// relationshipStore is an opened relationship repository together with the
// handles needed to probe and release it.
type relationshipStore struct {
	driver string
	repo   repositories.RelationshipRepository
	gorm   *gorm.DB
	ping   func(ctx context.Context) error
	close  func()
}

func (s *relationshipStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// openStore connects to the store selected by cfg.StoreDriver. Gorm-backed
// stores are auto-migrated; postgres relies on the SQL migrations.
func openStore(ctx context.Context, cfg config.Config) (*relationshipStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &relationshipStore{
			driver: cfg.StoreDriver,
			repo:   repositories.NewPostgresRelationshipRepository(pool),
			ping:   pool.Ping,
			close:  pool.Close,
		}, nil
	case config.DriverSQLite:
		handle, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return openGormStore(ctx, cfg.StoreDriver, handle)
	case config.DriverMySQL:
		handle, err := db.OpenMySQL(cfg.MySQL.DSN, cfg.MySQL.MaxOpen, cfg.MySQL.MaxIdle, cfg.MySQL.MaxLife)
		if err != nil {
			return nil, err
		}
		return openGormStore(ctx, cfg.StoreDriver, handle)
	case config.DriverMemory:
		return &relationshipStore{
			driver: cfg.StoreDriver,
			repo:   repositories.NewInMemoryRelationshipRepository(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openGormStore(ctx context.Context, driver string, handle *gorm.DB) (*relationshipStore, error) {
	repo := repositories.NewGormRelationshipRepository(handle)
	if err := repo.AutoMigrate(ctx); err != nil {
		_ = db.CloseGorm(handle)
		return nil, err
	}

	return &relationshipStore{
		driver: driver,
		repo:   repo,
		gorm:   handle,
		ping: func(ctx context.Context) error {
			sqlDB, err := handle.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		close: func() { _ = db.CloseGorm(handle) },
	}, nil
}
