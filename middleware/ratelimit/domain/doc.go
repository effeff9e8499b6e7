// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A política (limites por minuto/hora, cálculo de Retry-After) mora aqui como funções
// puras sobre Usage, o que permite testar a regra sem relógio real.
package domain
