package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"userinfo-gateway/config"
	"userinfo-gateway/gateway"
	"userinfo-gateway/middleware/clientid"
	"userinfo-gateway/middleware/ratelimit"
	rldomain "userinfo-gateway/middleware/ratelimit/domain"
	rlinfra "userinfo-gateway/middleware/ratelimit/infra"
	"userinfo-gateway/middleware/security"
	"userinfo-gateway/middleware/security/application"
	secdomain "userinfo-gateway/middleware/security/domain"
	secinfra "userinfo-gateway/middleware/security/infra"
	"userinfo-gateway/middleware/stats"
)

const (
	serviceName = "userinfo-gateway"
	version     = "1.0.0"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfgMgr := config.NewManager(configPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.Server)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if needsRedis(cfg) {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	keyStore, closeStore, err := openKeyStore(ctx, cfg.Security, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	manager, err := application.NewManager(ctx, application.Options{
		Store:              keyStore,
		Enabled:            cfg.Security.Enabled,
		AllowedIPs:         cfg.Security.AllowedIPs,
		Seeds:              seedKeys(cfg.Security.APIKeys),
		UsageFlushInterval: cfg.Security.UsageFlushInterval,
		OnEnabledChange:    cfgMgr.SetSecurityEnabled,
		Logger:             logger.With("component", "security"),
	})
	if err != nil {
		return err
	}

	statsStore, memStats, err := openStats(cfg.Stats, rdb)
	if err != nil {
		return err
	}

	resolver := clientid.Resolver{TrustXForwardedFor: cfg.Server.TrustXForwardedFor}

	windows := rlinfra.NewWindowStore(
		rlinfra.WithSweepEvery(cfg.RateLimit.SweepInterval),
		rlinfra.WithLogger(logger.With("component", "ratelimit")),
	)
	windows.StartJanitor(ctx)

	limiter := ratelimit.New(ratelimit.Options{
		Store: windows,
		Policy: rldomain.Policy{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			RequestsPerHour:   cfg.RateLimit.RequestsPerHour,
		},
		Stats:               statsStore,
		Resolver:            resolver,
		Logger:              logger.With("component", "ratelimit"),
		AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
	})
	guard := security.New(security.Options{
		Auth:     manager,
		Stats:    statsStore,
		Resolver: resolver,
		Logger:   logger.With("component", "security"),
	})

	d := gateway.NewDispatcher(gateway.Options{
		RateLimit: limiter,
		Security:  guard,
		Resolver:  resolver,
		Logger:    logger,
	})
	busy := ratelimit.NewConcurrencyLimiter(ratelimit.ConcurrencyOptions{
		Max:            cfg.Server.MaxConcurrent,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Server.ConcurrencyTimeout,
		RetryAfter:     time.Second,
		Logger:         logger.With("component", "concurrency"),
	})
	d.HandlePublic("/api/status", gateway.StatusHandler(serviceName, version, busy), http.MethodGet)
	d.Handle("/api/security/info", gateway.SecurityInfoHandler(manager), http.MethodGet)
	d.Handle("/api/ratelimit/usage", usageHandler(limiter.Service(), resolver), http.MethodGet)
	if memStats != nil {
		d.Handle("/api/stats", statsHandler(memStats), http.MethodGet)
	}

	if cfg.Server.UpstreamURL != "" {
		proxy, err := gateway.NewProxy(cfg.Server.UpstreamURL, logger.With("component", "proxy"))
		if err != nil {
			return err
		}
		d.HandlePrefix("/", proxy)
	}

	h := busy.Wrap(d)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownServer(srv, cfg.Server.ShutdownTimeout, logger)
	}()

	logger.Info("gateway listening", "addr", cfg.Server.ListenAddr, "upstream", cfg.Server.UpstreamURL, "config", cfgMgr.Path())
	logger.Info("rate limit", "enabled", cfg.RateLimit.Enabled, "rpm", cfg.RateLimit.RequestsPerMinute,
		"rph", cfg.RateLimit.RequestsPerHour, "sweep", cfg.RateLimit.SweepInterval, "trustXFF", cfg.Server.TrustXForwardedFor)
	logger.Info("security", "enabled", cfg.Security.Enabled, "keyStore", cfg.Security.KeyStore,
		"keys", manager.SecurityInfo().TotalAPIKeys, "allowedIPs", len(cfg.Security.AllowedIPs))
	logger.Info("stats", "enabled", cfg.Stats.Enabled, "backend", cfg.Stats.Backend, "trackKeys", cfg.Stats.TrackKeys)
	logger.Info("concurrency", "max", cfg.Server.MaxConcurrent, "acquireTimeout", cfg.Server.ConcurrencyTimeout)

	serveErr := srv.ListenAndServe()
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", serveErr)
	}
	// espera as requisições em andamento antes do flush final
	<-shutdownDone

	closeCtx, cancelClose := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelClose()
	if err := manager.Close(closeCtx); err != nil {
		logger.Warn("flush key table on shutdown", "error", err)
	}
	logger.Info("gateway stopped")
	return nil
}

// shutdownServer para de aceitar conexões e espera as requisições em andamento até timeout;
// depois disso fecha à força as que sobraram.
func shutdownServer(srv *http.Server, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("forced shutdown", "error", err)
		_ = srv.Close()
	}
}

func newLogger(w io.Writer, cfg config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Security.KeyStore == "redis" || (cfg.Stats.Enabled && cfg.Stats.Backend == "redis")
}

func openKeyStore(ctx context.Context, cfg config.SecurityConfig, rdb *redis.Client) (secdomain.KeyStore, func(), error) {
	switch cfg.KeyStore {
	case "sqlite":
		s, err := secinfra.OpenSQLiteKeyStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		return secinfra.NewRedisKeyStore(rdb, cfg.RedisKey), func() {}, nil
	default:
		return secinfra.NewFileKeyStore(cfg.KeyFile), func() {}, nil
	}
}

// openStats monta o sink de decisões. Com stats ligado há sempre um contador em memória
// (servido em /api/stats); redis e otel recebem os mesmos eventos.
func openStats(cfg config.StatsConfig, rdb *redis.Client) (stats.Store, *stats.MemoryStore, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	mem := stats.NewMemoryStore(stats.WithTrackKeys(cfg.TrackKeys))
	switch cfg.Backend {
	case "redis":
		return stats.Multi(mem, stats.NewRedisStore(rdb,
			stats.WithPrefix(cfg.Prefix),
			stats.WithTTL(cfg.TTL),
			stats.WithBucket(cfg.Bucket),
			stats.WithRedisTrackKeys(cfg.TrackKeys),
		)), mem, nil
	case "otel":
		s, err := stats.NewOTelStore(otel.Meter(serviceName))
		if err != nil {
			return nil, nil, fmt.Errorf("otel stats: %w", err)
		}
		return stats.Multi(mem, s), mem, nil
	default:
		return mem, mem, nil
	}
}

func seedKeys(seeds []config.SeedKey) []secdomain.APIKey {
	out := make([]secdomain.APIKey, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, secdomain.APIKey{
			Key:         s.Key,
			Name:        s.Name,
			Description: s.Description,
			Active:      s.IsActive(),
		})
	}
	return out
}

type usageSource interface {
	Stats(key rldomain.Key, now time.Time) rldomain.Snapshot
}

// usageHandler devolve o uso do próprio cliente nas duas janelas.
func usageHandler(svc usageSource, resolver clientid.Resolver) gateway.Handler {
	return gateway.HandlerFunc(func(r *http.Request) (*gateway.Response, error) {
		return gateway.OK(svc.Stats(rldomain.Key(resolver.ClientID(r)), time.Now())), nil
	})
}

type statsBody struct {
	Total  stats.Counters            `json:"total"`
	Routes map[string]stats.Counters `json:"routes"`
	Keys   map[string]stats.Counters `json:"keys,omitempty"`
}

func statsHandler(mem *stats.MemoryStore) gateway.Handler {
	return gateway.HandlerFunc(func(*http.Request) (*gateway.Response, error) {
		return gateway.OK(statsBody{Total: mem.Total(), Routes: mem.ByRoute(), Keys: mem.ByKey()}), nil
	})
}
