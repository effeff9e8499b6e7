package infra

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"userinfo-gateway/middleware/security/domain"
)

// RedisKeyStore guarda a tabela em um único hash: campo = chave, valor = registro em JSON.
type RedisKeyStore struct {
	rdb  *redis.Client
	hash string
}

func NewRedisKeyStore(rdb *redis.Client, hash string) *RedisKeyStore {
	if hash == "" {
		hash = "gateway:api_keys"
	}
	return &RedisKeyStore{rdb: rdb, hash: hash}
}

func (s *RedisKeyStore) Load(ctx context.Context) (map[string]domain.APIKey, error) {
	raw, err := s.rdb.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	keys := make(map[string]domain.APIKey, len(raw))
	for k, v := range raw {
		var rec domain.APIKey
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", MaskKey(k), err)
		}
		rec.Key = k
		keys[k] = rec
	}
	return keys, nil
}

// Save apaga e regrava o hash em uma transação MULTI/EXEC.
func (s *RedisKeyStore) Save(ctx context.Context, keys map[string]domain.APIKey) error {
	fields := make([]any, 0, len(keys)*2)
	for k, rec := range keys {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", MaskKey(k), err)
		}
		fields = append(fields, k, string(b))
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.hash)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.hash, fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
