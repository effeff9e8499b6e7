// Package clientid resolve a identidade de quem faz a requisição.
//
// A mesma regra é usada pelo rate limit e pela camada de segurança:
// API key explícita (header, depois query string) ou, na falta dela, o IP de origem.
package clientid

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

const (
	DefaultKeyHeader     = "X-API-Key"
	DefaultKeyQueryParam = "api_key"

	keyPrefix = "key:"
	ipPrefix  = "ip:"
)

// Resolver extrai API key, IP e identificador de cliente de uma requisição.
// O valor zero usa X-API-Key / api_key e RemoteAddr.
type Resolver struct {
	KeyHeader          string
	KeyQueryParam      string
	TrustXForwardedFor bool
}

func (r Resolver) keyHeader() string {
	if r.KeyHeader == "" {
		return DefaultKeyHeader
	}
	return r.KeyHeader
}

func (r Resolver) keyQueryParam() string {
	if r.KeyQueryParam == "" {
		return DefaultKeyQueryParam
	}
	return r.KeyQueryParam
}

// APIKey devolve a chave do header e, se vazio, a do parâmetro de query.
// Retorna "" quando nenhuma foi enviada.
func (r Resolver) APIKey(req *http.Request) string {
	if v := strings.TrimSpace(req.Header.Get(r.keyHeader())); v != "" {
		return v
	}
	if req.URL != nil {
		if v := strings.TrimSpace(req.URL.Query().Get(r.keyQueryParam())); v != "" {
			return v
		}
	}
	return ""
}

// IP devolve o endereço de origem da requisição.
func (r Resolver) IP(req *http.Request) string {
	if r.TrustXForwardedFor {
		// primeiro IP do X-Forwarded-For (cliente original)
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	addr := strings.TrimSpace(req.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}

// ClientID devolve "key:<api-key>" quando há chave, senão "ip:<endereço>".
func (r Resolver) ClientID(req *http.Request) string {
	if key := r.APIKey(req); key != "" {
		return keyPrefix + key
	}
	return ipPrefix + r.IP(req)
}

// FromKey monta o identificador de um cliente autenticado por chave.
func FromKey(key string) string { return keyPrefix + key }

// FromIP monta o identificador de um cliente anônimo.
func FromIP(ip string) string { return ipPrefix + ip }

// Redact troca a chave de um identificador "key:<api-key>" pelos primeiros 12 dígitos hex do
// seu sha256. Identificadores de IP voltam iguais. É o formato usado em logs de
// estatística e em nomes de chave no Redis: a chave crua nunca sai do processo.
func Redact(id string) string {
	key, ok := strings.CutPrefix(id, keyPrefix)
	if !ok {
		return id
	}
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + hex.EncodeToString(sum[:6])
}
