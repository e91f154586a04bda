package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"apod_fetcher/internal/config"
	"apod_fetcher/internal/credential"
	"apod_fetcher/internal/publisher"
	"apod_fetcher/internal/service"
	"apod_fetcher/internal/source/apod"
	"apod_fetcher/internal/storage/filesystem"
	"apod_fetcher/internal/storage/postgres"
	"apod_fetcher/internal/storage/sqlite"
)

// cacheStore is a service.Store that can also drop everything but a set of dates.
type cacheStore interface {
	service.Store
	Prune(ctx context.Context, keep []time.Time) (int, error)
}

func (a *app) openStore() (cacheStore, func(), error) {
	switch a.cfg.Cache.Driver {
	case config.CacheDriverPostgres:
		db, err := sqlx.Connect("postgres", a.cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		a.logger.Info("connected to database", "host", a.cfg.Database.Host, "dbname", a.cfg.Database.DBName)
		return postgres.NewCacheStore(db, a.logger), func() { db.Close() }, nil

	case config.CacheDriverSQLite:
		path := a.cfg.Cache.Path
		if path == "" {
			path = filepath.Join(filesystem.DefaultDir(), "cache.db")
		}
		store, err := sqlite.Open(path, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	default:
		dir := a.cfg.Cache.Dir
		if dir == "" {
			dir = filesystem.DefaultDir()
		}
		return filesystem.New(dir, a.logger), func() {}, nil
	}
}

// fetchService wires source, store and the optional publisher. The returned
// func releases all of them.
func (a *app) fetchService() (*service.FetchService, func(), error) {
	store, closeStore, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}

	source := apod.New(apod.Config{
		BaseURL:         a.cfg.API.BaseURL,
		MediaHost:       a.cfg.API.MediaHost,
		Timeout:         a.cfg.API.Timeout,
		RequestInterval: a.cfg.API.RequestInterval,
		MaxAttempts:     a.cfg.API.Retry.MaxAttempts,
		InitialBackoff:  a.cfg.API.Retry.InitialBackoff,
		MaxBackoff:      a.cfg.API.Retry.MaxBackoff,
	}, credentials(a.cfg.Credential, a.logger), a.logger)

	var pub service.Publisher
	closeFn := closeStore
	if a.cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        a.cfg.RabbitMQ.URL,
			Exchange:   a.cfg.RabbitMQ.Exchange,
			RoutingKey: a.cfg.RabbitMQ.RoutingKey,
			QueueName:  a.cfg.RabbitMQ.QueueName,
		}, a.logger)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		pub = rabbitMQ
		closeFn = func() {
			rabbitMQ.Close()
			closeStore()
		}
	}

	return service.NewFetchService(source, store, pub, a.logger), closeFn, nil
}

// credentials prefers a configured key and falls back to the remote key file.
func credentials(cfg config.CredentialConfig, logger *slog.Logger) credential.Provider {
	var chain credential.Chain
	if cfg.APIKey != "" {
		chain = append(chain, credential.Static(cfg.APIKey))
	}
	if cfg.KeyURL != "" {
		chain = append(chain, credential.NewRemote(cfg.KeyURL, cfg.Timeout, logger))
	}
	return chain
}
