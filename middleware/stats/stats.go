// Package stats registra as decisões das camadas do gateway (rate limit e segurança).
//
// É best-effort: o middleware ignora erros de Record e nunca derruba a requisição por causa
// deles. Implementações: memória (testes/dev), Redis e OpenTelemetry.
package stats

import (
	"context"
	"errors"
	"time"
)

type Outcome string

const (
	Allowed      Outcome = "allowed"
	Throttled    Outcome = "throttled"
	Unauthorized Outcome = "unauthorized"
	Forbidden    Outcome = "forbidden"
)

const (
	LayerRateLimit = "ratelimit"
	LayerSecurity  = "security"
)

// Event representa uma decisão de uma camada.
//
// Cuidado com cardinalidade: salvar Key/Path sem controle pode explodir o número de
// séries/chaves em Redis ou no backend de métricas.
type Event struct {
	Key     string
	Layer   string
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// Store é a estratégia de persistência das estatísticas.
type Store interface {
	Record(ctx context.Context, ev Event) error
}

// Multi repassa o evento para todos os stores não nulos.
func Multi(stores ...Store) Store {
	out := make(multi, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Store

func (m multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
