package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"schemaregistry/internal/cache"
	"schemaregistry/internal/config"
	"schemaregistry/internal/engine"
	"schemaregistry/internal/filestore"
	filestorememory "schemaregistry/internal/filestore/memory"
	"schemaregistry/internal/filestore/minio"
	"schemaregistry/internal/metrics"
	"schemaregistry/internal/notify"
	"schemaregistry/internal/rest"
	"schemaregistry/internal/schema/formats/avro"
	"schemaregistry/internal/schema/formats/json"
	"schemaregistry/internal/schema/formats/protobuf"
	"schemaregistry/internal/schema/types"
	"schemaregistry/internal/storage"
	storagememory "schemaregistry/internal/storage/memory"
	"schemaregistry/internal/storage/postgres"
)

type server struct {
	cfg     config.Config
	log     *zap.Logger
	http    *http.Server
	metrics *metrics.Metrics
	cache   *cache.Cache
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", getEnv("SCHEMAREGISTRY_CONFIG", ""), "path to TOML configuration file")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("load configuration", zap.Error(err))
	}

	srv, err := newServer(cfg, log)
	if err != nil {
		log.Fatal("setup server", zap.Error(err))
	}

	go func() {
		log.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := srv.metrics.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	srv.gracefulShutdown(5 * time.Second)
}

// newServer wires storage, file storage, dialect providers, the version
// cache, the engine, and the HTTP router, in the teacher's setup()-style
// single wiring function.
func newServer(cfg config.Config, log *zap.Logger) (*server, error) {
	store, files, err := buildBackends(cfg, log)
	if err != nil {
		return nil, err
	}

	providers := []types.Provider{avro.New(), json.New(), protobuf.New()}

	versionCache := cache.New(cfg.Schema.CacheSize, cfg.Schema.CacheTTL())

	eng := engine.New(store, providers, versionCache, log)
	serdes := engine.NewSerDesManager(store, files)

	if cfg.Nats.URL != "" {
		nc, err := nats.Connect(cfg.Nats.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		eng.WithNotifier(notify.NewNatsNotifier(nc, cfg.Nats.Subject))
		log.Info("publishing schema version events to nats",
			zap.String("url", cfg.Nats.URL), zap.String("subject", cfg.Nats.Subject))
	}

	m := metrics.New(metrics.Config{
		Address:                 cfg.MetricsAddr,
		ServiceName:             "schemaregistry",
		EnableDefaultCollectors: true,
	})
	go observeCacheLoop(versionCache, m)

	restServer := rest.New(eng, serdes, log)

	return &server{
		cfg:     cfg,
		log:     log,
		http:    &http.Server{Addr: cfg.HTTPAddr, Handler: restServer.SetupRouter()},
		metrics: m,
		cache:   versionCache,
	}, nil
}

func buildBackends(cfg config.Config, log *zap.Logger) (storage.Port, filestore.Port, error) {
	switch cfg.Backend {
	case "postgres":
		store, err := postgres.Open(postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DbName:   cfg.Postgres.DbName,
			SSLMode:  cfg.Postgres.SSLMode,
		})
		if err != nil {
			return nil, nil, err
		}
		files, err := minio.Open(context.Background(), minio.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("using postgres/minio storage backend")
		return store, files, nil
	default:
		log.Info("using in-process storage backend", zap.String("backend", cfg.Backend))
		return storagememory.New(), filestorememory.New(), nil
	}
}

// observeCacheLoop periodically snapshots cache statistics into the
// metrics server, since the cache has no push notification of its own
// state changes.
func observeCacheLoop(c *cache.Cache, m *metrics.Metrics) {
	var prev cache.Stats
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		stats := c.Stats()
		m.ObserveCache(stats, prev)
		prev = stats
	}
}

func (s *server) gracefulShutdown(timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("shutting down server")
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error("http server shutdown error", zap.Error(err))
	}
	if err := s.metrics.Server.Shutdown(ctx); err != nil {
		s.log.Error("metrics server shutdown error", zap.Error(err))
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
