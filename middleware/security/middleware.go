package security

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"userinfo-gateway/middleware/clientid"
	"userinfo-gateway/middleware/render"
	"userinfo-gateway/middleware/stats"
)

// Authenticator é o que a camada precisa do gerenciador de credenciais.
type Authenticator interface {
	Validate(key string) bool
	ValidateIP(address string) bool
	RecordUsage(ctx context.Context, key string)
}

type Options struct {
	Auth     Authenticator
	Stats    stats.Store
	Resolver clientid.Resolver
	Logger   *slog.Logger
}

// Interceptor faz autenticação (API key) e autorização (IP) antes do handler.
//
// OPTIONS é respondido aqui mesmo, sem checar credencial nem IP.
type Interceptor struct {
	opts Options
}

func New(opts Options) *Interceptor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Interceptor{opts: opts}
}

func (i *Interceptor) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if r.Method == http.MethodOptions {
		render.Preflight(w)
		return
	}

	ip := i.opts.Resolver.IP(r)
	key := i.opts.Resolver.APIKey(r)

	if i.opts.Auth != nil {
		if !i.opts.Auth.ValidateIP(ip) {
			i.record(r, key, ip, stats.Forbidden)
			i.opts.Logger.Info("ip denied", "ip", ip, "path", r.URL.Path)
			render.Error(w, http.StatusForbidden, "ip address not allowed")
			return
		}
		if !i.opts.Auth.Validate(key) {
			i.record(r, key, ip, stats.Unauthorized)
			msg := "invalid api key"
			if key == "" {
				msg = "missing api key"
			}
			i.opts.Logger.Info("authentication failed", "ip", ip, "path", r.URL.Path, "reason", msg)
			render.Error(w, http.StatusUnauthorized, msg)
			return
		}
		if key != "" {
			i.opts.Auth.RecordUsage(r.Context(), key)
		}
	}

	i.record(r, key, ip, stats.Allowed)
	next.ServeHTTP(w, r)
}

// Middleware adapta o Interceptor ao formato func(next) http.Handler.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	i := New(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			i.Intercept(w, r, next)
		})
	}
}

func (i *Interceptor) record(r *http.Request, key, ip string, outcome stats.Outcome) {
	if i.opts.Stats == nil {
		return
	}
	id := clientid.FromIP(ip)
	if key != "" {
		id = clientid.FromKey(key)
	}
	ev := stats.NewEvent(r, stats.LayerSecurity, outcome, id)
	ev.At = time.Now()
	_ = i.opts.Stats.Record(r.Context(), ev)
}
