// Package domain define os registros de API key, a visão pública deles e o contrato de
// persistência da tabela de credenciais. Sem net/http e sem implementações concretas.
package domain
