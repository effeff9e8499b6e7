package application

import (
	"time"

	"userinfo-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Com a política desligada (ou sem Store) tudo é permitido e nenhum estado é tocado.
type Service struct {
	Store  domain.WindowStore
	Policy domain.Policy
}

func (s Service) bypass() bool { return s.Store == nil || !s.Policy.Enabled }

// Decide verifica e, se permitido, registra a requisição de forma atômica.
// Uma requisição rejeitada nunca é registrada.
func (s Service) Decide(key domain.Key, now time.Time) domain.Decision {
	if s.bypass() {
		return domain.Decision{Allowed: true}
	}

	u, ok := s.Store.Admit(key, now, func(u domain.Usage) bool { return !s.Policy.Throttled(u) })
	if ok {
		return domain.Decision{Allowed: true, MinuteCount: u.MinuteCount + 1, HourCount: u.HourCount + 1}
	}
	return s.throttled(u)
}

// Check só consulta: não cria estado nem registra.
func (s Service) Check(key domain.Key, now time.Time) domain.Decision {
	if s.bypass() {
		return domain.Decision{Allowed: true}
	}

	u := s.Store.Usage(key, now)
	if s.Policy.Throttled(u) {
		return s.throttled(u)
	}
	return domain.Decision{Allowed: true, MinuteCount: u.MinuteCount, HourCount: u.HourCount}
}

// Record registra a requisição. Deve ser chamado apenas depois de um Check permitido.
func (s Service) Record(key domain.Key, now time.Time) {
	if s.bypass() {
		return
	}
	s.Store.Record(key, now)
}

// Stats devolve o uso atual do cliente frente aos limites.
func (s Service) Stats(key domain.Key, now time.Time) domain.Snapshot {
	snap := domain.Snapshot{
		MinuteLimit: s.Policy.RequestsPerMinute,
		HourLimit:   s.Policy.RequestsPerHour,
	}
	var u domain.Usage
	if s.Store != nil {
		u = s.Store.Usage(key, now)
	}
	snap.MinuteRequests = u.MinuteCount
	snap.HourRequests = u.HourCount
	snap.MinuteRemaining = s.Policy.RemainingMinute(u)
	snap.HourRemaining = s.Policy.RemainingHour(u)
	return snap
}

func (s Service) throttled(u domain.Usage) domain.Decision {
	return domain.Decision{
		Allowed:     false,
		RetryAfter:  s.Policy.RetryAfter(u),
		MinuteCount: u.MinuteCount,
		HourCount:   u.HourCount,
	}
}
