package gateway

import (
	"net/http"
	"time"

	rldomain "userinfo-gateway/middleware/ratelimit/domain"
	"userinfo-gateway/middleware/security/domain"
)

type StatusBody struct {
	Status  string             `json:"status"`
	Service string             `json:"service"`
	Version string             `json:"version"`
	Time    time.Time          `json:"time"`
	Load    *rldomain.PoolLoad `json:"load,omitempty"`
}

// LoadSource é quem sabe a ocupação do servidor (ratelimit.ConcurrencyLimiter).
type LoadSource interface {
	Load() rldomain.PoolLoad
}

// StatusHandler responde o health check público. load pode ser nil.
func StatusHandler(service, version string, load LoadSource) Handler {
	return HandlerFunc(func(*http.Request) (*Response, error) {
		body := StatusBody{
			Status:  "online",
			Service: service,
			Version: version,
			Time:    time.Now().UTC(),
		}
		if load != nil {
			l := load.Load()
			body.Load = &l
		}
		return OK(body), nil
	})
}

type SecurityInfoSource interface {
	SecurityInfo() domain.SecurityInfo
}

// SecurityInfoHandler expõe os contadores da camada de segurança.
func SecurityInfoHandler(src SecurityInfoSource) Handler {
	return HandlerFunc(func(*http.Request) (*Response, error) {
		return OK(src.SecurityInfo()), nil
	})
}
