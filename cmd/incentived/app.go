package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	goredis "github.com/redis/go-redis/v9"

	// SQL drivers registered for the sqlx storage adapter.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"incentivekit/adapters/jsonfile"
	mem "incentivekit/adapters/memory"
	redisAdapter "incentivekit/adapters/redis"
	sqlxAdapter "incentivekit/adapters/sqlx"
	"incentivekit/analytics"
	"incentivekit/api/httpapi"
	"incentivekit/config"
	"incentivekit/engine"
	"incentivekit/incentive"
	"incentivekit/integrations/webhook"
	"incentivekit/leaderboard"
	"incentivekit/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Engine  *incentive.Engine
	Webhook *webhook.Sink
	Handler http.Handler
	Server  *http.Server
}

// stores resolves which backends serve the catalog, dynamic config and the
// processed-review ledger; each may differ from the primary storage.
type stores struct {
	catalog      engine.CatalogStore
	catalogAdmin engine.CatalogAdmin
	configStore  engine.ConfigStore
	ledger       engine.ReviewLedger
	noLedger     bool
}

func provideConfig() (*config.Config, error) {
	if path := os.Getenv("INCENTIVEKIT_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStorage(cfg *config.Config) (engine.Storage, func(), error) {
	return setupStorage(cfg)
}

// provideRedis connects a Redis client when any configured component needs
// one; otherwise it yields nil.
func provideRedis(cfg *config.Config) (*goredis.Client, func(), error) {
	if cfg.Ledger.Backend != "redis" && cfg.Storage.CatalogCacheTTL <= 0 {
		return nil, func() {}, nil
	}
	client, err := redisAdapter.Connect(cfg.Storage.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func provideStores(cfg *config.Config, storage engine.Storage, client *goredis.Client) (stores, error) {
	st := stores{
		catalog:      storage,
		catalogAdmin: storage,
		configStore:  storage,
		ledger:       storage,
	}

	if cfg.Storage.CatalogFile != "" {
		jf, err := jsonfile.New(cfg.Storage.CatalogFile)
		if err != nil {
			return stores{}, fmt.Errorf("open catalog file: %w", err)
		}
		st.catalog = jf
		st.catalogAdmin = jf
		st.configStore = jf
	}

	switch cfg.Ledger.Backend {
	case "redis":
		st.ledger = redisAdapter.NewLedger(client, cfg.Ledger.TTL)
	case "none":
		st.noLedger = true
	}

	if cfg.Storage.CatalogCacheTTL > 0 {
		st.catalog = redisAdapter.NewCatalogCache(client, st.catalog, cfg.Storage.CatalogCacheTTL)
	}
	return st, nil
}

func provideEngine(cfg *config.Config, storage engine.Storage, st stores, hub *realtime.Hub, logger *slog.Logger) (*incentive.Engine, func()) {
	mode := engine.DispatchSync
	if cfg.Events.Dispatch == "async" {
		mode = engine.DispatchAsync
	}

	opts := []incentive.Option{
		incentive.WithStorage(storage),
		incentive.WithCatalog(st.catalog),
		incentive.WithCatalogAdmin(st.catalogAdmin),
		incentive.WithConfigStore(st.configStore),
		incentive.WithLedger(st.ledger),
		incentive.WithDispatchMode(mode),
		incentive.WithRealtime(hub),
		incentive.WithLogger(logger),
	}
	if st.noLedger {
		opts = append(opts, incentive.WithoutLedger())
	}

	eng := incentive.New(opts...)
	return eng, eng.Close
}

func provideBoard(eng *incentive.Engine) (leaderboard.Board, func()) {
	board := leaderboard.NewSkipList()
	detach := leaderboard.Attach(board, eng.Bus)
	return board, detach
}

func provideMetrics(eng *incentive.Engine) (*analytics.Aggregator, func()) {
	metrics := analytics.NewAggregator()
	detach := metrics.Attach(eng.Bus)
	return metrics, detach
}

// provideWebhook returns nil when no endpoints are configured.
func provideWebhook(cfg *config.Config, eng *incentive.Engine) (*webhook.Sink, func()) {
	if len(cfg.Webhook.Endpoints) == 0 {
		return nil, func() {}
	}
	sink := webhook.New(cfg.Webhook.Endpoints,
		webhook.WithSecret(cfg.Webhook.Secret),
		webhook.WithClient(&http.Client{Timeout: cfg.Webhook.Timeout}),
	)
	detach := sink.Attach(eng.Bus)
	return sink, detach
}

func provideDeps(eng *incentive.Engine, storage engine.Storage, st stores, board leaderboard.Board, metrics *analytics.Aggregator, hub *realtime.Hub) httpapi.Deps {
	return httpapi.Deps{
		Processor: eng.Processor,
		Collector: eng.Collector,
		Admin:     eng.Admin,
		Users:     storage,
		Catalog:   st.catalog,
		Board:     board,
		Metrics:   metrics,
		Hub:       hub,
	}
}

func provideHandler(deps httpapi.Deps, cfg *config.Config) http.Handler {
	return httpapi.NewMux(deps, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupStorage creates the storage adapter based on configuration.
func setupStorage(cfg *config.Config) (engine.Storage, func(), error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), func() {}, nil
	case "sql":
		store, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, nil, fmt.Errorf("open sql storage: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
