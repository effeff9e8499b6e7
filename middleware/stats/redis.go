package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore soma as decisões das camadas em hashes do Redis, um pipeline por evento.
//
// Layout (prefixo padrão gateway:stats):
//
//	<prefix>:outcomes                 campo <outcome>, cumulativo
//	<prefix>:layers                   campo <layer>:<outcome>, cumulativo
//	<prefix>:minute:<yyyymmddhhmm>    campo <layer>:<outcome>, expira em ttl
//	<prefix>:routes                   campo <METHOD> <template>|<outcome>
//	<prefix>:client:<rótulo>          campo <outcome>, expira em ttl (só com trackKeys)
//
// Rotas chegam como template e clientes com a chave em hash (NewEvent), então nenhum nome
// de chave depende do path cru nem carrega uma API key.
type RedisStore struct {
	rdb *redis.Client

	prefix    string
	ttl       time.Duration
	perMinute bool
	trackKeys bool
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithTTL vale para as séries por minuto e por cliente; os cumulativos não expiram.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithBucket aceita "minute" (padrão) ou "none".
func WithBucket(bucket string) RedisOption {
	return func(s *RedisStore) {
		s.perMinute = strings.ToLower(strings.TrimSpace(bucket)) != "none"
	}
}

func WithRedisTrackKeys(track bool) RedisOption {
	return func(s *RedisStore) { s.trackKeys = track }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		prefix:    "gateway:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := string(ev.Outcome)
	if outcome == "" {
		outcome = string(Allowed)
	}
	layer := ev.Layer
	if layer == "" {
		layer = "gateway"
	}
	layerField := layer + ":" + outcome

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":outcomes", outcome, 1)
	pipe.HIncrBy(ctx, s.prefix+":layers", layerField, 1)

	if s.perMinute {
		minute := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		s.incrExpiring(ctx, pipe, minute, layerField)
	}

	if ev.Method != "" || ev.Path != "" {
		route := strings.TrimSpace(ev.Method + " " + ev.Path)
		pipe.HIncrBy(ctx, s.prefix+":routes", route+"|"+outcome, 1)
	}

	if s.trackKeys && perKey(ev) {
		s.incrExpiring(ctx, pipe, s.prefix+":client:"+ev.Key, outcome)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stats: %w", err)
	}
	return nil
}

func (s *RedisStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}
