package domain

import "context"

// SlotPool limita quantas requisições o servidor atende ao mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. Ao adquirir, retorna uma
// função de release; chamadas extras de release são ignoradas.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
	Cap() int
}

// PoolLoad é a ocupação do pool num instante, exposta no /api/status.
type PoolLoad struct {
	InFlight int `json:"inFlight"`
	Capacity int `json:"maxConcurrent"`
}
