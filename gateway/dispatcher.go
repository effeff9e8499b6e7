package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"userinfo-gateway/middleware/clientid"
	"userinfo-gateway/middleware/render"
)

const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID devolve o id da requisição gravado pelo Dispatcher, ou "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type Options struct {
	// RateLimit e Security compõem a cadeia fixa de toda rota protegida, nessa ordem.
	// Nil pula a camada.
	RateLimit Interceptor
	Security  Interceptor

	Resolver clientid.Resolver
	Logger   *slog.Logger
}

// Dispatcher registra as rotas e monta a cadeia Rate Limit -> Segurança -> handler uma vez
// por rota, no registro. Toda resposta sai com CORS.
type Dispatcher struct {
	router *mux.Router
	chain  Chain
	opts   Options
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Dispatcher{
		router: mux.NewRouter(),
		opts:   opts,
	}
	if opts.RateLimit != nil {
		d.chain = append(d.chain, opts.RateLimit)
	}
	if opts.Security != nil {
		d.chain = append(d.chain, opts.Security)
	}

	d.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.Error(w, http.StatusNotFound, "not found")
	})
	d.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return d
}

// Handle registra um handler de negócio atrás da cadeia. OPTIONS entra sempre na lista de
// métodos para o preflight chegar na camada de segurança.
func (d *Dispatcher) Handle(path string, h Handler, methods ...string) {
	d.HandleHTTP(path, adapt(h, d.opts.Logger), methods...)
}

// HandleHTTP é como Handle, para um http.Handler já pronto (ex.: proxy reverso).
func (d *Dispatcher) HandleHTTP(path string, h http.Handler, methods ...string) {
	route := d.router.Handle(path, d.chain.Then(h))
	if len(methods) > 0 {
		route.Methods(withOptions(methods)...)
	}
}

// HandlePrefix registra h atrás da cadeia para tudo que começa com prefix.
func (d *Dispatcher) HandlePrefix(prefix string, h http.Handler) {
	d.router.PathPrefix(prefix).Handler(d.chain.Then(h))
}

// HandlePublic registra um handler de negócio fora da cadeia (sem rate limit e sem
// autenticação), como /api/status.
func (d *Dispatcher) HandlePublic(path string, h Handler, methods ...string) {
	route := d.router.Handle(path, adapt(h, d.opts.Logger))
	if len(methods) > 0 {
		route.Methods(methods...)
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))
	w.Header().Set(RequestIDHeader, id)

	sw := &statusWriter{ResponseWriter: w}
	defer func() {
		if rec := recover(); rec != nil {
			d.opts.Logger.Error("panic in middleware chain", "request_id", id, "path", r.URL.Path, "panic", rec)
			if !sw.wrote {
				render.Error(sw, http.StatusInternalServerError, internalErrorMessage)
			}
		}
		level := slog.LevelDebug
		if sw.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		d.opts.Logger.Log(r.Context(), level, "request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.statusCode(),
			"duration", time.Since(start),
			"client", d.opts.Resolver.ClientID(r),
		)
	}()

	d.router.ServeHTTP(sw, r)
}

func withOptions(methods []string) []string {
	for _, m := range methods {
		if m == http.MethodOptions {
			return methods
		}
	}
	return append(append([]string(nil), methods...), http.MethodOptions)
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.status = http.StatusOK
		w.wrote = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Flush repassa para o writer de baixo (streaming do proxy).
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
