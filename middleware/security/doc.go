// Package security é o adapter HTTP da camada de autenticação e autorização do gateway.
//
// Camadas:
//
//   - domain: registro de API key, visão pública, contrato do KeyStore
//   - application: Manager (gerar, validar, revogar, registrar uso, allowlist)
//   - infra: allowlist CIDR, gerador de chaves, backends arquivo/SQLite/Redis
//   - security (este pacote): Interceptor HTTP
//
// Ordem das checagens: OPTIONS responde preflight direto; IP fora da allowlist dá 403;
// chave ausente ou inválida dá 401; senão registra o uso e chama o próximo.
package security
