package stats

import (
	"context"
	"maps"
	"sync"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(o Outcome) {
	if o == Allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// DefaultMaxKeys é quantos clientes distintos a MemoryStore acompanha antes de agrupar o
// resto em OtherKeyLabel.
const DefaultMaxKeys = 1000

// MemoryStore é uma implementação simples em memória.
// Não faz expiração; com stats ligado o binário sempre mantém uma para servir /api/stats.
// Rotas são rótulos de template (limitados pelas rotas registradas) e clientes têm teto.
type MemoryStore struct {
	mu        sync.Mutex
	total     Counters
	byOutcome map[Outcome]int64
	byRoute   map[string]Counters
	byKey     map[string]Counters

	trackKeys bool
	maxKeys   int
}

type MemoryOption func(*MemoryStore)

func WithTrackKeys(track bool) MemoryOption {
	return func(s *MemoryStore) { s.trackKeys = track }
}

// WithMaxKeys limita os clientes acompanhados; n <= 0 volta ao padrão.
func WithMaxKeys(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		byOutcome: make(map[Outcome]int64),
		byRoute:   make(map[string]Counters),
		byKey:     make(map[string]Counters),
		maxKeys:   DefaultMaxKeys,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Record(_ context.Context, ev Event) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)
	s.byOutcome[ev.Outcome]++

	c := s.byRoute[route]
	c.add(ev.Outcome)
	s.byRoute[route] = c

	if s.trackKeys && perKey(ev) {
		label := ev.Key
		if _, seen := s.byKey[label]; !seen && len(s.byKey) >= s.maxKeys {
			label = OtherKeyLabel
		}
		k := s.byKey[label]
		k.add(ev.Outcome)
		s.byKey[label] = k
	}
	return nil
}

func (s *MemoryStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStore) Count(o Outcome) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byOutcome[o]
}

func (s *MemoryStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}
