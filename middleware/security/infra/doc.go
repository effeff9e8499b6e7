// Package infra contém as implementações concretas da camada de segurança: allowlist de IPs
// (literais e CIDR IPv4), geração de chaves, backends da tabela de credenciais (arquivo JSON,
// SQLite, Redis) e o agendador que agrupa gravações de uso.
package infra
