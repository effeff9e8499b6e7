package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"userinfo-gateway/middleware/clientid"
	"userinfo-gateway/middleware/ratelimit/application"
	"userinfo-gateway/middleware/ratelimit/domain"
	"userinfo-gateway/middleware/render"
	"userinfo-gateway/middleware/stats"
)

type Options struct {
	Store    domain.WindowStore
	Policy   domain.Policy
	Stats    stats.Store
	Resolver clientid.Resolver
	// Clock é o relógio das decisões; time.Now por padrão.
	Clock  func() time.Time
	Logger *slog.Logger
	// AddRateLimitHeaders inclui X-RateLimit-* também nas respostas permitidas.
	AddRateLimitHeaders bool
}

// Interceptor é a camada mais externa da cadeia de cada rota.
//
// OPTIONS também passa por aqui e consome orçamento: o preflight só é tratado à parte na
// camada de segurança, que fica dentro desta.
type Interceptor struct {
	svc     application.Service
	opts    Options
	enabled bool
}

// ThrottledBody é o corpo de uma resposta 429.
type ThrottledBody struct {
	Error             string `json:"error"`
	Code              int    `json:"code"`
	RetryAfter        int64  `json:"retryAfter"`
	MinuteRequests    int    `json:"minuteRequests"`
	HourRequests      int    `json:"hourRequests"`
	RequestsPerMinute int    `json:"requestsPerMinute"`
	RequestsPerHour   int    `json:"requestsPerHour"`
}

func New(opts Options) *Interceptor {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Interceptor{
		svc:     application.Service{Store: opts.Store, Policy: opts.Policy},
		opts:    opts,
		enabled: opts.Policy.Enabled && opts.Store != nil,
	}
}

// Service expõe a regra de aplicação, por exemplo para consultar Stats de um cliente.
func (i *Interceptor) Service() application.Service { return i.svc }

func (i *Interceptor) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if !i.enabled {
		next.ServeHTTP(w, r)
		return
	}

	key := i.opts.Resolver.ClientID(r)
	dec := i.svc.Decide(domain.Key(key), i.opts.Clock())

	if i.opts.Stats != nil {
		outcome := stats.Allowed
		if !dec.Allowed {
			outcome = stats.Throttled
		}
		ev := stats.NewEvent(r, stats.LayerRateLimit, outcome, key)
		ev.At = time.Now()
		_ = i.opts.Stats.Record(r.Context(), ev)
	}

	if !dec.Allowed {
		i.opts.Logger.Debug("request throttled",
			"client", key, "path", r.URL.Path,
			"minute", dec.MinuteCount, "hour", dec.HourCount, "retry_after", dec.RetryAfter)
		i.reject(w, dec)
		return
	}

	if i.opts.AddRateLimitHeaders {
		i.setHeaders(w.Header(), dec)
	}
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

func (i *Interceptor) reject(w http.ResponseWriter, dec domain.Decision) {
	p := i.opts.Policy
	retry := int64(dec.RetryAfter / time.Second)

	i.setHeaders(w.Header(), dec)
	w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	render.JSON(w, http.StatusTooManyRequests, ThrottledBody{
		Error:             "too many requests",
		Code:              http.StatusTooManyRequests,
		RetryAfter:        retry,
		MinuteRequests:    dec.MinuteCount,
		HourRequests:      dec.HourCount,
		RequestsPerMinute: p.RequestsPerMinute,
		RequestsPerHour:   p.RequestsPerHour,
	})
}

func (i *Interceptor) setHeaders(h http.Header, dec domain.Decision) {
	p := i.opts.Policy
	u := domain.Usage{MinuteCount: dec.MinuteCount, HourCount: dec.HourCount}

	h.Set("X-RateLimit-Limit-Minute", strconv.Itoa(p.RequestsPerMinute))
	h.Set("X-RateLimit-Limit-Hour", strconv.Itoa(p.RequestsPerHour))
	h.Set("X-RateLimit-Remaining-Minute", strconv.Itoa(p.RemainingMinute(u)))
	h.Set("X-RateLimit-Remaining-Hour", strconv.Itoa(p.RemainingHour(u)))
}
