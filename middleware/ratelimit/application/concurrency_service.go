package application

import (
	"context"
	"time"

	"userinfo-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService controla as vagas de atendimento do gateway (o pool fixo de workers do
// servidor). Sem Pool não há limite.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire ocupa uma vaga. Com AcquireTimeout <= 0 espera enquanto o ctx da requisição viver;
// com ok=false nada foi ocupado e release é nil.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), ok bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}
	return s.Pool.Acquire(ctx)
}

func (s ConcurrencyService) Load() domain.PoolLoad {
	if s.Pool == nil {
		return domain.PoolLoad{}
	}
	return domain.PoolLoad{InFlight: s.Pool.InUse(), Capacity: s.Pool.Cap()}
}
