package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/loomworklabs/parley/internal/config"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/core/services"
	"github.com/loomworklabs/parley/internal/httpclient"
	"github.com/loomworklabs/parley/internal/llm/anthropic"
	"github.com/loomworklabs/parley/internal/llm/ollama"
	"github.com/loomworklabs/parley/internal/llm/openai"
	"github.com/loomworklabs/parley/internal/platform/logger"
	"github.com/loomworklabs/parley/internal/platform/otel"
	"github.com/loomworklabs/parley/internal/registry"
	"github.com/loomworklabs/parley/internal/secrets"
	"github.com/loomworklabs/parley/internal/server"
	"github.com/loomworklabs/parley/internal/server/validator"
	"github.com/loomworklabs/parley/internal/store/cache"
	"github.com/loomworklabs/parley/internal/store/files"
	"github.com/loomworklabs/parley/internal/store/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger.Initialize(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logger.Get()
	defer logger.Sync()

	shutdownTracer, err := otel.InitTracer("parley", log, os.Stdout)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.DSN)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		_ = repo.Close()
	}()

	var limitCache ports.Cache
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisCache.Ping(context.Background()); err != nil {
			log.Warn("redis unreachable, falling back to in-process cache", zap.Error(err))
			limitCache = cache.NewMemory()
		} else {
			limitCache = redisCache
		}
	} else {
		limitCache = cache.NewMemory()
	}

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		log.Fatal("failed to build provider registry", zap.Error(err))
	}

	keys := secrets.NewFSKeyStore(cfg.Paths.Data)
	fileStore := files.NewFSStore(cfg.Paths.Data)

	credentials := services.NewCredentialService(repo, reg, keys)
	bundles := services.NewBundleFactory(reg, credentials)
	quota := services.NewQuotaService(repo, limitCache)
	generator := services.NewGenerator(repo, bundles, quota, nil, fileStore)
	sessions := services.NewSessionService(repo, reg, fileStore)
	teams := services.NewTeamService(repo, keys)

	validator.InitValidator()

	srv := server.New(cfg, log, server.Deps{
		Repo:        repo,
		Registry:    reg,
		Credentials: credentials,
		Sessions:    sessions,
		Teams:       teams,
		Generator:   generator,
		Quota:       quota,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("shutdown incomplete", zap.Error(err))
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(ctx)
	}
}

// buildRegistry loads every provider directory under the conf tree and
// attaches the matching collection. Providers without a collection
// implementation are skipped with a warning.
func buildRegistry(cfg *config.Config, log *zap.Logger) (*registry.Registry, error) {
	reg, err := registry.New(cfg.Server.Version)
	if err != nil {
		return nil, err
	}

	client := httpclient.NewModelClient()
	collections := map[string]ports.ModelCollection{
		"openai":    openai.NewCollection(client),
		"anthropic": anthropic.NewCollection(client),
		"ollama":    ollama.NewCollection(client),
	}

	entries, err := os.ReadDir(cfg.Paths.Providers)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		confDir := cfg.Paths.Providers + "/" + name

		if err := reg.RegisterProvider(name, confDir); err != nil {
			log.Warn("provider schema rejected", zap.String("provider", name), zap.Error(err))
			continue
		}
		collection, ok := collections[name]
		if !ok {
			log.Warn("no collection for provider, catalog only", zap.String("provider", name))
			continue
		}
		if err := reg.RegisterCollection(name, collection, confDir); err != nil {
			return nil, err
		}
		log.Info("provider registered", zap.String("provider", name))
	}
	return reg, nil
}
