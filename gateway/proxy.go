package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"userinfo-gateway/middleware/render"
)

var corsHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Methods",
	"Access-Control-Allow-Headers",
	"Access-Control-Max-Age",
}

// NewProxy encaminha as requisições admitidas para o upstream. Os headers de CORS do
// upstream são trocados pelos do gateway.
func NewProxy(upstream string, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q: scheme and host required", upstream)
	}
	if logger == nil {
		logger = slog.Default()
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ModifyResponse = func(resp *http.Response) error {
		for _, h := range corsHeaders {
			resp.Header.Del(h)
		}
		render.CORS(resp.Header)
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", "request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
		render.Error(w, http.StatusBadGateway, "bad gateway")
	}
	return proxy, nil
}
