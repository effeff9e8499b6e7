package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key é o identificador de cliente ("key:<api-key>" ou "ip:<endereço>").
type Key string

const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour

	minuteMillis = int64(MinuteWindow / time.Millisecond)
	hourMillis   = int64(HourWindow / time.Millisecond)
)

// Policy é fixa durante a vida de uma instância do gateway.
type Policy struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
}

// Usage é a foto do log de um cliente em um instante, já podado.
//
// Timestamps em epoch ms. Quando a janela está vazia, o "mais antigo" é o próprio instante
// de referência.
type Usage struct {
	Now            int64
	MinuteCount    int
	HourCount      int
	OldestInMinute int64
	OldestInHour   int64
}

// Throttled é verdadeiro se qualquer uma das janelas atingiu o limite.
func (p Policy) Throttled(u Usage) bool {
	return u.MinuteCount >= p.RequestsPerMinute || u.HourCount >= p.RequestsPerHour
}

// RetryAfter calcula a espera recomendada, em segundos inteiros, a partir da requisição mais
// antiga de cada janela. Soma 1s para garantir que a janela já tenha deslizado.
func (p Policy) RetryAfter(u Usage) time.Duration {
	minuteWait := max(0, minuteMillis-(u.Now-u.OldestInMinute)) / 1000
	hourWait := max(0, hourMillis-(u.Now-u.OldestInHour)) / 1000
	return time.Duration(min(minuteWait, hourWait)+1) * time.Second
}

// RemainingMinute nunca é negativo.
func (p Policy) RemainingMinute(u Usage) int { return max(0, p.RequestsPerMinute-u.MinuteCount) }

// RemainingHour nunca é negativo.
func (p Policy) RemainingHour(u Usage) int { return max(0, p.RequestsPerHour-u.HourCount) }

// WindowStore guarda o log de timestamps por cliente.
//
// Implementações não retornam erro: cliente desconhecido equivale a log vazio.
type WindowStore interface {
	// Usage lê o log sem criar estado para clientes desconhecidos.
	Usage(key Key, now time.Time) Usage
	// Record acrescenta um timestamp ao log do cliente.
	Record(key Key, now time.Time)
	// Admit verifica e registra de forma atômica para o cliente: allow recebe o uso atual e,
	// se devolver true, o timestamp é acrescentado.
	Admit(key Key, now time.Time, allow func(Usage) bool) (Usage, bool)
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	RetryAfter time.Duration
	// Contagens nas janelas. Em uma decisão permitida já incluem a requisição atual.
	MinuteCount int
	HourCount   int
}

// Snapshot é a visão de consulta do uso de um cliente.
type Snapshot struct {
	MinuteRequests  int `json:"minuteRequests"`
	HourRequests    int `json:"hourRequests"`
	MinuteLimit     int `json:"minuteLimit"`
	HourLimit       int `json:"hourLimit"`
	MinuteRemaining int `json:"minuteRemaining"`
	HourRemaining   int `json:"hourRemaining"`
}
