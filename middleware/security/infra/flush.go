package infra

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FlushScheduler agrupa pedidos de persistência: vários Trigger seguidos viram no máximo
// um flush por intervalo. Close executa o flush pendente antes de voltar.
type FlushScheduler struct {
	flush   func(context.Context) error
	limiter *rate.Limiter
	logger  *slog.Logger

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}

	mu    sync.Mutex
	dirty bool
	once  sync.Once
}

func NewFlushScheduler(every time.Duration, flush func(context.Context) error, logger *slog.Logger) *FlushScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	f := &FlushScheduler{
		flush:   flush,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go f.loop()
	return f
}

// Trigger marca a tabela como suja. Nunca bloqueia.
func (f *FlushScheduler) Trigger() {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *FlushScheduler) loop() {
	defer close(f.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-f.stop
		cancel()
	}()

	for {
		select {
		case <-f.stop:
			return
		case <-f.signal:
		}
		if err := f.limiter.Wait(ctx); err != nil {
			// cancelado pelo Close; o flush final fica com ele
			return
		}
		f.run(ctx)
	}
}

func (f *FlushScheduler) run(ctx context.Context) {
	f.mu.Lock()
	if !f.dirty {
		f.mu.Unlock()
		return
	}
	f.dirty = false
	f.mu.Unlock()

	if err := f.flush(ctx); err != nil {
		f.logger.Warn("key table flush failed", "error", err)
		f.mu.Lock()
		f.dirty = true
		f.mu.Unlock()
	}
}

// Close para o loop e faz o último flush, se houver algo pendente.
func (f *FlushScheduler) Close(ctx context.Context) error {
	f.once.Do(func() { close(f.stop) })

	select {
	case <-f.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	f.mu.Lock()
	pending := f.dirty
	f.dirty = false
	f.mu.Unlock()

	if !pending {
		return nil
	}
	return f.flush(ctx)
}
