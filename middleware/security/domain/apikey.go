package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyNotFound      = errors.New("api key not found")
	ErrStoreUnavailable = errors.New("key store unavailable")
)

// APIKey é um registro imutável da tabela de credenciais.
// Alterações (uso, revogação) produzem um novo valor que substitui o anterior.
type APIKey struct {
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	Active      bool       `json:"active"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

// WithLastUsed devolve uma cópia com lastUsedAt = t.
func (k APIKey) WithLastUsed(t time.Time) APIKey {
	k.LastUsedAt = &t
	return k
}

// Info é a visão pública de um registro: nunca inclui o valor da chave.
func (k APIKey) Info() KeyInfo {
	return KeyInfo{
		Name:        k.Name,
		Description: k.Description,
		CreatedAt:   k.CreatedAt,
		Active:      k.Active,
		LastUsedAt:  k.LastUsedAt,
	}
}

type KeyInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	Active      bool       `json:"active"`
	LastUsedAt  *time.Time `json:"lastUsedAt"`
}

// SecurityInfo resume o estado da camada de segurança.
type SecurityInfo struct {
	SecurityEnabled bool `json:"securityEnabled"`
	TotalAPIKeys    int  `json:"totalApiKeys"`
	ActiveAPIKeys   int  `json:"activeApiKeys"`
	AllowedIPs      int  `json:"allowedIPs"`
}

// KeyStore persiste a tabela inteira de credenciais.
//
// Save sempre reescreve a tabela completa; Load de um destino ainda vazio devolve tabela vazia.
type KeyStore interface {
	Load(ctx context.Context) (map[string]APIKey, error)
	Save(ctx context.Context, keys map[string]APIKey) error
}
