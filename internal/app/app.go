package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/nodekeeper/internal/allocation"
	"github.com/MrSnakeDoc/nodekeeper/internal/config"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/nodeassign"
	"github.com/MrSnakeDoc/nodekeeper/internal/redis"
	"github.com/MrSnakeDoc/nodekeeper/internal/scheduler"
	"github.com/MrSnakeDoc/nodekeeper/internal/store"
	"github.com/MrSnakeDoc/nodekeeper/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/nodekeeper/internal/store/redis"
	"github.com/MrSnakeDoc/nodekeeper/internal/store/sharded"
	"github.com/MrSnakeDoc/nodekeeper/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	server   *httpserver.Server
	backend  store.Backend
	reloader *scheduler.RegistryReloader // nil without registry file
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize storage early - fail fast if unavailable
	backend, err := openBackend(cfg, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to initialize %s backend: %v", cfg.Backend, err)
		os.Exit(1)
	}
	loggerClient.Info("storage backend initialized",
		logger.String("backend", backend.Name()))

	engine := allocation.NewEngine(backend, loggerClient, cfg.ClaimRetries)
	nodes := nodeassign.New(backend, engine, loggerClient)

	// Initialize registry reloader (if registry file is configured)
	var reloader *scheduler.RegistryReloader
	var reloadTrigger chan struct{}
	if cfg.RegistryFile != "" {
		loggerClient.Info("registry file configured, initializing registry reloader",
			logger.String("file", cfg.RegistryFile))
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewRegistryReloader(
			cfg.RegistryFile,
			nodes,
			loggerClient,
			cfg.ReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("registry file not configured, nodes are managed externally")
	}

	// Dependencies passed to routes (extend as needed).
	build := version.Get()
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         build.Version,
		Commit:          build.Commit,
		BuildDate:       build.BuildDate,
		GoVersion:       build.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		Nodes:           nodes,
		Registry:        reloader,
		ReloadTrigger:   reloadTrigger,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		server:   server,
		backend:  backend,
		reloader: reloader,
	}
}

// openBackend builds the storage backend selected by NODEKEEPER_BACKEND.
func openBackend(cfg *config.Config, log logger.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory backend, assignments are lost on restart")
		return memory.New(log), nil

	case config.BackendRedis:
		log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		opts := connectOptions(cfg)
		opts.Addr = cfg.RedisAddr
		client, err := redis.New(opts, log)
		if err != nil {
			return nil, err
		}
		return redisstore.NewStore(client, log), nil

	case config.BackendSharded:
		return openShards(cfg, log)

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// openShards connects once per distinct Redis URL and groups services by shard key.
func openShards(cfg *config.Config, log logger.Logger) (store.Backend, error) {
	byURL := make(map[string]store.Backend)
	shards := make(map[string]store.Backend)

	closeAll := func() {
		for _, b := range byURL {
			_ = b.Close()
		}
	}

	for service, url := range cfg.RedisShards {
		key := sharded.ShardKey(service)
		backend, ok := byURL[url]
		if !ok {
			log.Info("connecting redis shard",
				logger.String("shard", key))
			opts := connectOptions(cfg)
			opts.Name = key
			client, err := redis.NewFromURL(url, opts, log)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("shard %s: %w", key, err)
			}
			backend = redisstore.NewStore(client, log)
			byURL[url] = backend
		}

		if existing, dup := shards[key]; dup && existing != backend {
			closeAll()
			return nil, fmt.Errorf("shard %s is mapped to more than one redis url", key)
		}
		shards[key] = backend
	}

	return sharded.New(shards, log), nil
}

func connectOptions(cfg *config.Config) redis.ConnectOptions {
	return redis.ConnectOptions{
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting nodekeeper %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.Get().String(), logger.String("backend", a.backend.Name()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start registry reloader (loads nodes and starts periodic refresh)
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start registry reloader: %w", err)
		}
		a.logger.Info("registry reloader started",
			logger.Duration("interval", a.cfg.ReloadInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if err := a.backend.Close(); err != nil {
		a.logger.Warnf("failed to close %s backend: %v", a.backend.Name(), err)
	} else {
		a.logger.Info("✅ Storage closed cleanly")
	}

	a.logger.Info("✅ nodekeeper stopped cleanly")
	return nil
}
