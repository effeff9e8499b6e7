// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janela deslizante por cliente (minuto/hora) com janitor periódico
//   - ChanPool: semáforo simples para limite de concorrência
package infra
