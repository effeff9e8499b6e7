package infra

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"userinfo-gateway/middleware/ratelimit/domain"
)

const (
	minuteMillis = int64(domain.MinuteWindow / time.Millisecond)
	hourMillis   = int64(domain.HourWindow / time.Millisecond)
)

// WindowStore é a implementação em memória de domain.WindowStore: um log ordenado de
// timestamps (epoch ms) por cliente, podado para a última hora.
//
// O mapa externo é um sync.Map (insert-if-absent / remove-if-empty atômicos) e cada cliente
// tem seu próprio mutex, assim clientes diferentes não disputam o mesmo lock.
type WindowStore struct {
	clients    sync.Map // domain.Key -> *clientLog
	sweepEvery time.Duration
	clock      func() time.Time
	logger     *slog.Logger
}

type clientLog struct {
	mu    sync.Mutex
	times []int64
	// evicted marca um log já removido do mapa pelo janitor; quem ainda tiver o ponteiro
	// precisa buscar (ou criar) a entrada nova.
	evicted bool
}

type StoreOption func(*WindowStore)

// WithSweepEvery define o intervalo do janitor. <= 0 desliga a limpeza periódica.
func WithSweepEvery(d time.Duration) StoreOption {
	return func(s *WindowStore) { s.sweepEvery = d }
}

// WithClock troca o relógio usado pelo janitor (útil em testes).
func WithClock(fn func() time.Time) StoreOption {
	return func(s *WindowStore) { s.clock = fn }
}

func WithLogger(l *slog.Logger) StoreOption {
	return func(s *WindowStore) { s.logger = l }
}

func NewWindowStore(opts ...StoreOption) *WindowStore {
	s := &WindowStore{
		sweepEvery: time.Minute,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *WindowStore) SweepEvery() time.Duration { return s.sweepEvery }

// Usage implementa domain.WindowStore. Não cria entrada para cliente desconhecido.
func (s *WindowStore) Usage(key domain.Key, now time.Time) domain.Usage {
	ms := now.UnixMilli()
	v, ok := s.clients.Load(key)
	if !ok {
		return emptyUsage(ms)
	}
	l := v.(*clientLog)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(ms)
	return l.usage(ms)
}

// Record implementa domain.WindowStore.
func (s *WindowStore) Record(key domain.Key, now time.Time) {
	s.Admit(key, now, func(domain.Usage) bool { return true })
}

// Admit implementa domain.WindowStore.
func (s *WindowStore) Admit(key domain.Key, now time.Time, allow func(domain.Usage) bool) (domain.Usage, bool) {
	ms := now.UnixMilli()
	for {
		v, _ := s.clients.LoadOrStore(key, &clientLog{})
		l := v.(*clientLog)

		l.mu.Lock()
		if l.evicted {
			l.mu.Unlock()
			continue
		}

		l.prune(ms)
		u := l.usage(ms)
		ok := allow(u)
		if ok {
			l.append(ms)
		} else if len(l.times) == 0 {
			// rejeição não cria estado: o cliente continua "desconhecido"
			l.evicted = true
			s.clients.CompareAndDelete(key, l)
		}
		l.mu.Unlock()
		return u, ok
	}
}

// Sweep poda todos os logs e remove os clientes que ficaram vazios.
// Retorna quantos clientes foram removidos.
func (s *WindowStore) Sweep(now time.Time) int {
	ms := now.UnixMilli()
	removed := 0
	s.clients.Range(func(k, v any) bool {
		l := v.(*clientLog)
		l.mu.Lock()
		l.prune(ms)
		if len(l.times) == 0 && !l.evicted {
			l.evicted = true
			if s.clients.CompareAndDelete(k, l) {
				removed++
			}
		}
		l.mu.Unlock()
		return true
	})
	return removed
}

// Len devolve quantos clientes estão sendo rastreados.
func (s *WindowStore) Len() int {
	n := 0
	s.clients.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// StartJanitor inicia uma goroutine que remove clientes ociosos periodicamente.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx DoneContext) {
	if s.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(s.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Sweep(s.clock()); n > 0 {
					s.logger.Debug("rate limit sweep", "evicted", n, "tracked", s.Len())
				}
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}

func emptyUsage(now int64) domain.Usage {
	return domain.Usage{Now: now, OldestInMinute: now, OldestInHour: now}
}

// append mantém o log ordenado: um timestamp "atrasado" (relógios lidos antes do lock) é
// nivelado ao último registrado.
func (l *clientLog) append(ms int64) {
	if n := len(l.times); n > 0 && ms < l.times[n-1] {
		ms = l.times[n-1]
	}
	l.times = append(l.times, ms)
}

// prune descarta entradas com mais de uma hora em relação a now.
func (l *clientLog) prune(now int64) {
	cutoff := now - hourMillis
	i := sort.Search(len(l.times), func(i int) bool { return l.times[i] > cutoff })
	if i == 0 {
		return
	}
	if i == len(l.times) {
		l.times = l.times[:0]
		return
	}
	l.times = append(l.times[:0], l.times[i:]...)
}

func (l *clientLog) usage(now int64) domain.Usage {
	u := emptyUsage(now)

	hourStart := sort.Search(len(l.times), func(i int) bool { return l.times[i] > now-hourMillis })
	minuteStart := sort.Search(len(l.times), func(i int) bool { return l.times[i] > now-minuteMillis })

	u.HourCount = len(l.times) - hourStart
	u.MinuteCount = len(l.times) - minuteStart
	if u.HourCount > 0 {
		u.OldestInHour = l.times[hourStart]
	}
	if u.MinuteCount > 0 {
		u.OldestInMinute = l.times[minuteStart]
	}
	return u
}
