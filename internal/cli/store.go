package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-complaint-backend/internal/config"
	"github.com/tbourn/go-complaint-backend/internal/http/handlers"
	"github.com/tbourn/go-complaint-backend/internal/repo"
	"github.com/tbourn/go-complaint-backend/internal/services"
	"github.com/tbourn/go-complaint-backend/internal/tablestore"
)

// backing is an opened complaint store plus the idempotency records kept
// next to it.
type backing struct {
	Name        string
	Store       services.ComplaintStore
	Idempotency handlers.IdempotencyStore
	Ready       func(ctx context.Context) error
	Close       func() error
}

// openBacking connects to the store selected by cfg and provisions it:
// tables are migrated for sql, the table is created if missing for table.
func openBacking(ctx context.Context, cfg config.StoreConfig) (*backing, error) {
	switch cfg.Backend {
	case config.BackendSQL:
		return openSQL(cfg.SQL)
	case config.BackendTable:
		return openTable(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.Backend)
	}
}

func openSQL(cfg config.SQLConfig) (*backing, error) {
	dsn := cfg.Path
	if cfg.Driver == repo.DriverPostgres {
		dsn = cfg.URL
	}
	db, err := repo.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("driver", cfg.Driver).Msg("relational store ready")

	return &backing{
		Name:        config.BackendSQL,
		Store:       repo.NewComplaintRepo(db),
		Idempotency: repo.NewIdempotencyRepo(db),
		Ready:       sqlDB.PingContext,
		Close:       sqlDB.Close,
	}, nil
}

func openTable(ctx context.Context, cfg config.StoreConfig) (*backing, error) {
	var (
		client tablestore.Client
		ready  = func(context.Context) error { return nil }
		closer = func() error { return nil }
	)
	switch cfg.Table.Driver {
	case config.TableDriverMemory:
		client = tablestore.NewMemoryTable()
	case config.TableDriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		client = tablestore.NewRedisTable(rdb, cfg.Table.Name)
		ready = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		closer = rdb.Close
	default:
		return nil, fmt.Errorf("unsupported TABLE_DRIVER %q", cfg.Table.Driver)
	}

	if err := client.CreateIfNotExists(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("create table %s: %w", cfg.Table.Name, err), closer())
	}
	log.Info().
		Str("driver", cfg.Table.Driver).
		Str("table", cfg.Table.Name).
		Str("partition", cfg.Table.Partition).
		Bool("strict_etag", cfg.Table.StrictETag).
		Msg("table store ready")

	store := tablestore.NewComplaintTable(client)
	store.Partition = cfg.Table.Partition
	store.StrictETag = cfg.Table.StrictETag

	return &backing{
		Name:        config.BackendTable,
		Store:       store,
		Idempotency: tablestore.NewIdempotencyTable(client),
		Ready:       ready,
		Close:       closer,
	}, nil
}
