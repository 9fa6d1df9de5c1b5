package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/civicsense-gateway/internal/config"
	"github.com/Sternrassler/civicsense-gateway/pkg/cache"
	"github.com/Sternrassler/civicsense-gateway/pkg/connectivity"
	"github.com/Sternrassler/civicsense-gateway/pkg/logging"
	"github.com/Sternrassler/civicsense-gateway/pkg/offline"
	"github.com/Sternrassler/civicsense-gateway/pkg/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired gateway components.
type app struct {
	cfg        config.Config
	storage    cache.Storage
	redis      *redis.Client
	upstream   *upstream.Client
	controller *offline.Controller
	tracker    *connectivity.Tracker
	logger     zerolog.Logger
	closers    []func() error
}

// newApp builds storage, origin client, controller and tracker from cfg.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.NewLogger(logging.ComponentGateway),
	}

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	up, err := upstream.New(cfg.UpstreamConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create upstream client: %w", err)
	}
	a.upstream = up

	ctrl, err := offline.New(a.storage, up, cfg.Offline)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create offline controller: %w", err)
	}
	ctrl.SetPrecacheConfig(cfg.PrecacheFetcherConfig())
	a.controller = ctrl

	a.tracker = connectivity.NewTracker(a.redis, logging.NewLogger(logging.ComponentConnectivity))
	ctrl.SetObserver(a.tracker)

	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.storage = cache.NewMemoryStorage()

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Storage.Redis.Addr,
			Password: a.cfg.Storage.Redis.Password,
			DB:       a.cfg.Storage.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("connect to redis at %s: %w", a.cfg.Storage.Redis.Addr, err)
		}
		a.redis = client
		a.storage = cache.NewRedisStorage(client)
		a.closers = append(a.closers, client.Close)

	case config.BackendLevelDB:
		s, err := cache.OpenLevelStorage(a.cfg.Storage.LevelDB.Path)
		if err != nil {
			return err
		}
		a.storage = s
		a.closers = append(a.closers, s.Close)

	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}

	a.logger.Info().Str("backend", a.cfg.Storage.Backend).Msg("Cache storage ready")
	return nil
}

// Close releases the storage backend.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
