package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"userinfo-gateway/middleware/ratelimit"
	rldomain "userinfo-gateway/middleware/ratelimit/domain"
	rlinfra "userinfo-gateway/middleware/ratelimit/infra"
	"userinfo-gateway/middleware/security"
	"userinfo-gateway/middleware/security/application"
	secdomain "userinfo-gateway/middleware/security/domain"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func do(h http.Handler, method, target, remote, apiKey string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = remote
	if apiKey != "" {
		r.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestChain_OrderIsOuterFirst(t *testing.T) {
	var trace []string
	mk := func(name string) Interceptor {
		return InterceptorFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) {
			trace = append(trace, name)
			next.ServeHTTP(w, r)
		})
	}
	h := Chain{mk("ratelimit"), nil, mk("security")}.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = append(trace, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(trace, ",") != "ratelimit,security,handler" {
		t.Fatalf("unexpected order: %v", trace)
	}
}

func TestChain_ShortCircuitSkipsDownstream(t *testing.T) {
	called := false
	stop := InterceptorFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Chain{stop}.Then(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if called || w.Code != http.StatusTeapot {
		t.Fatalf("expected short-circuit, got called=%v code=%d", called, w.Code)
	}
}

func TestDispatcher_HandlerErrorIs500Generic(t *testing.T) {
	d := NewDispatcher(Options{Logger: quietLogger})
	d.Handle("/api/fail", HandlerFunc(func(*http.Request) (*Response, error) {
		return nil, errors.New("db password leaked in message")
	}), http.MethodGet)

	w := do(d, http.MethodGet, "/api/fail", "10.0.0.1:1", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("expected generic message, got %s", w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS on 500")
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestDispatcher_PanicIs500(t *testing.T) {
	d := NewDispatcher(Options{Logger: quietLogger})
	d.Handle("/api/panic", HandlerFunc(func(*http.Request) (*Response, error) {
		panic("boom")
	}))

	w := do(d, http.MethodGet, "/api/panic", "10.0.0.1:1", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

// brokenWriter quebra no meio da escrita do corpo, depois do WriteHeader.
type brokenWriter struct {
	*httptest.ResponseRecorder
	headers int
}

func (w *brokenWriter) WriteHeader(code int) {
	w.headers++
	w.ResponseRecorder.WriteHeader(code)
}

func (w *brokenWriter) Write([]byte) (int, error) { panic("connection reset") }

func TestAdapt_PanicAfterWriteDoesNotRenderAgain(t *testing.T) {
	h := adapt(HandlerFunc(func(*http.Request) (*Response, error) {
		return OK(map[string]string{"username": "steve"}), nil
	}), quietLogger)

	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder()}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user/info", nil))

	if w.headers != 1 {
		t.Fatalf("expected a single WriteHeader, got %d", w.headers)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected original status kept, got %d", w.Code)
	}
}

func TestDispatcher_StatusErrorKeepsStatus(t *testing.T) {
	d := NewDispatcher(Options{Logger: quietLogger})
	d.Handle("/api/user/info", HandlerFunc(func(r *http.Request) (*Response, error) {
		if r.URL.Query().Get("username") == "" {
			return nil, Errorf(http.StatusBadRequest, "missing username")
		}
		return OK(map[string]string{"username": r.URL.Query().Get("username")}), nil
	}))

	w := do(d, http.MethodGet, "/api/user/info", "10.0.0.1:1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "missing username" || body.Code != 400 {
		t.Fatalf("unexpected body %+v", body)
	}

	w = do(d, http.MethodGet, "/api/user/info?username=steve", "10.0.0.1:1", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "steve") {
		t.Fatalf("unexpected success response %d %s", w.Code, w.Body.String())
	}
}

func TestDispatcher_NotFoundIsJSONWithCORS(t *testing.T) {
	d := NewDispatcher(Options{Logger: quietLogger})
	w := do(d, http.MethodGet, "/nope", "10.0.0.1:1", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS on 404")
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("expected JSON 404, got %q", w.Header().Get("Content-Type"))
	}
}

func TestDispatcher_KeepsIncomingRequestID(t *testing.T) {
	var seen string
	d := NewDispatcher(Options{Logger: quietLogger})
	d.HandlePublic("/api/status", HandlerFunc(func(r *http.Request) (*Response, error) {
		seen = RequestID(r.Context())
		return OK(nil), nil
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if seen != "abc-123" || w.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected request id propagated, got ctx=%q header=%q", seen, w.Header().Get(RequestIDHeader))
	}
}

// gateway monta o servidor completo com relógio controlado.
type gatewayFixture struct {
	handler http.Handler
	manager *application.Manager
	now     time.Time
}

func newGateway(t *testing.T, policy rldomain.Policy, secEnabled bool, allowed []string) *gatewayFixture {
	t.Helper()
	f := &gatewayFixture{now: time.UnixMilli(1_700_000_000_000)}
	clock := func() time.Time { return f.now }

	m, err := application.NewManager(context.Background(), application.Options{
		Enabled:    secEnabled,
		AllowedIPs: allowed,
		Logger:     quietLogger,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.manager = m

	rl := ratelimit.New(ratelimit.Options{
		Store:  rlinfra.NewWindowStore(rlinfra.WithSweepEvery(0)),
		Policy: policy,
		Clock:  clock,
		Logger: quietLogger,
	})
	sec := security.New(security.Options{Auth: m, Logger: quietLogger})

	d := NewDispatcher(Options{RateLimit: rl, Security: sec, Logger: quietLogger})
	d.Handle("/api/user/info", HandlerFunc(func(*http.Request) (*Response, error) {
		return OK(map[string]string{"username": "steve"}), nil
	}), http.MethodGet)
	d.Handle("/api/security/info", SecurityInfoHandler(m), http.MethodGet)
	d.HandlePublic("/api/status", StatusHandler("userinfo-gateway", "test", fixedLoad{InFlight: 1, Capacity: 10}), http.MethodGet)
	f.handler = d
	return f
}

func TestGateway_ThrottlesThirdRequestInWindow(t *testing.T) {
	f := newGateway(t, rldomain.Policy{Enabled: true, RequestsPerMinute: 2, RequestsPerHour: 100}, false, nil)

	var codes []int
	var last *httptest.ResponseRecorder
	for i := range 3 {
		f.now = f.now.Add(time.Duration(i) * 300 * time.Millisecond)
		last = do(f.handler, http.MethodGet, "/api/user/info", "10.0.0.1:5555", "")
		codes = append(codes, last.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != 429 {
		t.Fatalf("expected 200,200,429 got %v", codes)
	}

	retry, err := strconv.Atoi(last.Header().Get("Retry-After"))
	if err != nil || retry <= 0 {
		t.Fatalf("expected positive Retry-After, got %q", last.Header().Get("Retry-After"))
	}
	if last.Header().Get("X-RateLimit-Remaining-Minute") != "0" {
		t.Fatalf("expected remaining minute 0, got %q", last.Header().Get("X-RateLimit-Remaining-Minute"))
	}
	if last.Header().Get("X-RateLimit-Limit-Hour") != "100" {
		t.Fatalf("unexpected hour limit header %q", last.Header().Get("X-RateLimit-Limit-Hour"))
	}
	if last.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS on 429")
	}
}

func TestGateway_RateLimitWrapsSecurity(t *testing.T) {
	f := newGateway(t, rldomain.Policy{Enabled: true, RequestsPerMinute: 2, RequestsPerHour: 100}, true, nil)

	// 401 também consome orçamento: o rate limit fica por fora
	for range 2 {
		if w := do(f.handler, http.MethodGet, "/api/user/info", "10.0.0.1:1", ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	}
	if w := do(f.handler, http.MethodGet, "/api/user/info", "10.0.0.1:1", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before security runs, got %d", w.Code)
	}
}

func TestGateway_PreflightCountedByRateLimit(t *testing.T) {
	f := newGateway(t, rldomain.Policy{Enabled: true, RequestsPerMinute: 1, RequestsPerHour: 100}, true, []string{"127.0.0.1"})

	w := do(f.handler, http.MethodOptions, "/api/user/info", "10.9.9.9:1", "")
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Max-Age") != "86400" {
		t.Fatalf("expected preflight 200, got %d", w.Code)
	}
	w = do(f.handler, http.MethodOptions, "/api/user/info", "10.9.9.9:1", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second preflight throttled, got %d", w.Code)
	}
}

func TestGateway_AuthenticatedFlowAndSecurityInfo(t *testing.T) {
	f := newGateway(t, rldomain.Policy{Enabled: true, RequestsPerMinute: 60, RequestsPerHour: 1000}, true, []string{"192.168.1.0/24"})
	key, err := f.manager.GenerateKey(context.Background(), "dashboard", "")
	if err != nil {
		t.Fatal(err)
	}

	if w := do(f.handler, http.MethodGet, "/api/user/info", "192.168.2.5:1", key); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for IP outside allow-list, got %d", w.Code)
	}
	if w := do(f.handler, http.MethodGet, "/api/user/info", "192.168.1.5:1", "bad"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", w.Code)
	}

	w := do(f.handler, http.MethodGet, "/api/security/info", "192.168.1.5:1", key)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var info secdomain.SecurityInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if !info.SecurityEnabled || info.TotalAPIKeys != 1 || info.ActiveAPIKeys != 1 || info.AllowedIPs != 1 {
		t.Fatalf("unexpected security info %+v", info)
	}

	if !f.manager.RevokeKey(context.Background(), key) {
		t.Fatal("expected revoke")
	}
	if w := do(f.handler, http.MethodGet, "/api/user/info", "192.168.1.5:1", key); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got %d", w.Code)
	}
}

type fixedLoad rldomain.PoolLoad

func (l fixedLoad) Load() rldomain.PoolLoad { return rldomain.PoolLoad(l) }

func TestGateway_StatusIsPublic(t *testing.T) {
	f := newGateway(t, rldomain.Policy{Enabled: true, RequestsPerMinute: 1, RequestsPerHour: 1}, true, []string{"127.0.0.1"})

	for range 3 {
		w := do(f.handler, http.MethodGet, "/api/status", "203.0.113.1:1", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected public status 200, got %d", w.Code)
		}
		var body StatusBody
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Status != "online" || body.Load == nil || body.Load.Capacity != 10 {
			t.Fatalf("unexpected status body %+v", body)
		}
	}
}

func TestGateway_SecurityDisabledRateLimitStillApplies(t *testing.T) {
	f := newGateway(t, rldomain.Policy{Enabled: true, RequestsPerMinute: 1, RequestsPerHour: 10}, false, []string{"127.0.0.1"})

	if w := do(f.handler, http.MethodGet, "/api/user/info", "203.0.113.1:1", "whatever"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with security off, got %d", w.Code)
	}
	if w := do(f.handler, http.MethodGet, "/api/user/info", "203.0.113.1:1", "whatever"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// outra chave, outro orçamento
	if w := do(f.handler, http.MethodGet, "/api/user/info", "203.0.113.1:1", "other"); w.Code != http.StatusOK {
		t.Fatalf("expected separate budget per key, got %d", w.Code)
	}
}

func TestGateway_ProxyReplacesUpstreamCORS(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "https://upstream.example")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"from":"upstream","path":"`+r.URL.Path+`"}`)
	}))
	defer upstream.Close()

	proxy, err := NewProxy(upstream.URL, quietLogger)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(Options{Logger: quietLogger})
	d.HandlePrefix("/api/", proxy)

	w := do(d, http.MethodGet, "/api/user/level", "10.0.0.1:1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Values("Access-Control-Allow-Origin"); len(got) != 1 || got[0] != "*" {
		t.Fatalf("expected gateway CORS only, got %v", got)
	}
	if !strings.Contains(w.Body.String(), "/api/user/level") {
		t.Fatalf("unexpected proxied body %s", w.Body.String())
	}
}

func TestNewProxy_RejectsBadURL(t *testing.T) {
	if _, err := NewProxy("not a url", nil); err == nil {
		t.Fatal("expected error for url without scheme/host")
	}
}
