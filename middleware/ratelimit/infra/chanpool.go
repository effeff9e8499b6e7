package infra

import (
	"context"
	"sync/atomic"

	"userinfo-gateway/middleware/ratelimit/domain"
)

// chanPool usa um channel bufferizado como semáforo: cada vaga ocupada é um item no buffer.
type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria o pool de atendimento simultâneo com `max` vagas.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	// ctx já cancelado não ganha vaga nem se houver sobra
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, false
	}

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			<-p.sem
		}
	}, true
}

func (p *chanPool) InUse() int { return len(p.sem) }

func (p *chanPool) Cap() int { return cap(p.sem) }
