package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"userinfo-gateway/middleware/ratelimit/application"
	"userinfo-gateway/middleware/ratelimit/domain"
	"userinfo-gateway/middleware/ratelimit/infra"
	"userinfo-gateway/middleware/render"
)

type ConcurrencyOptions struct {
	// Max <= 0 desliga o limite.
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter > 0 vira o header Retry-After (segundos, arredondado pra cima) no 503.
	RetryAfter time.Duration
	Logger     *slog.Logger
}

// ConcurrencyLimiter limita quantas requisições o servidor atende simultaneamente.
// Fica fora da cadeia das rotas: envolve o dispatcher inteiro.
type ConcurrencyLimiter struct {
	svc    application.ConcurrencyService
	opts   ConcurrencyOptions
	logger *slog.Logger
}

func NewConcurrencyLimiter(opts ConcurrencyOptions) *ConcurrencyLimiter {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	l := &ConcurrencyLimiter{opts: opts, logger: opts.Logger}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if opts.Max > 0 {
		l.svc = application.ConcurrencyService{
			Pool:           infra.NewChanPool(opts.Max),
			AcquireTimeout: opts.AcquireTimeout,
		}
	}
	return l
}

// Load devolve a ocupação atual; zero quando o limite está desligado.
func (l *ConcurrencyLimiter) Load() domain.PoolLoad { return l.svc.Load() }

func (l *ConcurrencyLimiter) Wrap(next http.Handler) http.Handler {
	if l.svc.Pool == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, ok := l.svc.Acquire(r.Context())
		if !ok {
			l.logger.Warn("no free slot", "method", r.Method, "path", r.URL.Path, "max", l.opts.Max)
			if l.opts.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(l.opts.RetryAfter.Seconds()))))
			}
			render.Error(w, l.opts.RejectStatus, "server busy")
			return
		}
		defer release()

		next.ServeHTTP(w, r)
	})
}

// ConcurrencyMiddleware é o atalho para quem não precisa do Load.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	return NewConcurrencyLimiter(opts).Wrap
}
