// Package ratelimit fornece os adapters HTTP (net/http) para rate limit e limite de
// concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e política (janelas de minuto/hora, Retry-After), sem net/http
//   - application: casos de uso (decidir/registrar, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela deslizante com janitor, semáforo)
//   - ratelimit (este pacote): Interceptor HTTP + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Resolve o identificador do cliente (key:<api-key> ou ip:<endereço>)
//  2. Chama a camada application para obter a decisão (que já registra se permitido)
//  3. Se bloqueado, responde 429 com X-RateLimit-* e Retry-After
//  4. Se permitido, chama o próximo elo da cadeia (segurança, depois o handler)
package ratelimit
