package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"userinfo-gateway/gateway"
	"userinfo-gateway/middleware/ratelimit"
	"userinfo-gateway/middleware/ratelimit/domain"
	"userinfo-gateway/middleware/ratelimit/infra"
	"userinfo-gateway/middleware/security"
	"userinfo-gateway/middleware/security/application"
)

func main() {
	// Exemplo: o dispatcher embutido no seu servidor, com um handler em processo (sem proxy)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewWindowStore(infra.WithLogger(logger))
	store.StartJanitor(ctx)

	// sem Store: chaves só em memória; segurança ligada com uma chave gerada na partida
	manager, err := application.NewManager(ctx, application.Options{Enabled: true, Logger: logger})
	if err != nil {
		logger.Error("security manager", "error", err)
		os.Exit(1)
	}
	key, err := manager.GenerateKey(ctx, "example", "generated at startup")
	if err != nil {
		logger.Error("generate key", "error", err)
		os.Exit(1)
	}
	logger.Info("use this key in X-API-Key", "key", key)

	d := gateway.NewDispatcher(gateway.Options{
		RateLimit: ratelimit.New(ratelimit.Options{
			Store:               store,
			Policy:              domain.Policy{Enabled: true, RequestsPerMinute: 5, RequestsPerHour: 100},
			AddRateLimitHeaders: true,
			Logger:              logger,
		}),
		Security: security.New(security.Options{Auth: manager, Logger: logger}),
		Logger:   logger,
	})
	busy := ratelimit.NewConcurrencyLimiter(ratelimit.ConcurrencyOptions{Max: 50, Logger: logger})
	d.HandlePublic("/api/status", gateway.StatusHandler("example-server", "dev", busy), http.MethodGet)
	d.Handle("/api/hello", gateway.HandlerFunc(func(r *http.Request) (*gateway.Response, error) {
		name := r.URL.Query().Get("name")
		if name == "" {
			return nil, gateway.Errorf(http.StatusBadRequest, "missing name parameter")
		}
		return gateway.OK(map[string]string{"hello": name}), nil
	}), http.MethodGet)

	h := busy.Wrap(d)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
