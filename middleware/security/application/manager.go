package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"userinfo-gateway/middleware/security/domain"
	"userinfo-gateway/middleware/security/infra"
)

type Options struct {
	Store      domain.KeyStore
	Enabled    bool
	AllowedIPs []string
	// Seeds são mescladas na tabela carregada; em conflito vale o registro persistido.
	Seeds []domain.APIKey

	// UsageFlushInterval > 0 agrupa as gravações de RecordUsage (no máximo uma por
	// intervalo). Zero grava a tabela inteira a cada uso.
	UsageFlushInterval time.Duration

	// OnEnabledChange é chamado por SetSecurityEnabled, por exemplo para salvar o config.
	OnEnabledChange func(enabled bool) error

	Clock        func() time.Time
	KeyGenerator func() (string, error)
	Logger       *slog.Logger
}

// Manager guarda a tabela de credenciais em memória e a allowlist de IPs.
//
// Os registros são valores imutáveis: uso e revogação trocam o ponteiro inteiro no mapa.
// A memória é autoritativa; falha ao persistir é logada e engolida.
type Manager struct {
	store domain.KeyStore
	keys  sync.Map // string -> *domain.APIKey

	enabled atomic.Bool
	allow   *infra.AllowList

	// serializa snapshot + Save para a última gravação refletir o estado mais novo
	persistMu sync.Mutex
	flusher   *infra.FlushScheduler

	onEnabledChange func(bool) error
	now             func() time.Time
	generate        func() (string, error)
	logger          *slog.Logger
}

// NewManager carrega a tabela do store e aplica as seeds. Erro de leitura na partida é
// devolvido: sobrescrever uma tabela ilegível apagaria credenciais.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	m := &Manager{
		store:           opts.Store,
		allow:           infra.NewAllowList(opts.AllowedIPs),
		onEnabledChange: opts.OnEnabledChange,
		now:             opts.Clock,
		generate:        opts.KeyGenerator,
		logger:          opts.Logger,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.generate == nil {
		m.generate = infra.GenerateKey
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.enabled.Store(opts.Enabled)

	if m.store != nil {
		loaded, err := m.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load key table: %w", err)
		}
		for k, rec := range loaded {
			m.keys.Store(k, &rec)
		}
	}

	added := 0
	for _, seed := range opts.Seeds {
		k := strings.TrimSpace(seed.Key)
		if k == "" {
			continue
		}
		seed.Key = k
		if seed.CreatedAt.IsZero() {
			seed.CreatedAt = m.now()
		}
		if _, loaded := m.keys.LoadOrStore(k, &seed); !loaded {
			added++
		}
	}
	if added > 0 {
		m.persist(ctx)
	}

	if opts.UsageFlushInterval > 0 && m.store != nil {
		m.flusher = infra.NewFlushScheduler(opts.UsageFlushInterval, m.save, m.logger)
	}
	return m, nil
}

func (m *Manager) Enabled() bool { return m.enabled.Load() }

// GenerateKey cria um registro ativo e devolve a chave. Só aqui ela é devolvida em claro.
func (m *Manager) GenerateKey(ctx context.Context, name, description string) (string, error) {
	for {
		key, err := m.generate()
		if err != nil {
			return "", err
		}
		rec := &domain.APIKey{
			Key:         key,
			Name:        name,
			Description: description,
			CreatedAt:   m.now(),
			Active:      true,
		}
		if _, loaded := m.keys.LoadOrStore(key, rec); loaded {
			// colisão: sorteia de novo
			continue
		}
		m.persist(ctx)
		m.logger.Info("api key generated", "name", name, "key", infra.MaskKey(key))
		return key, nil
	}
}

// Validate aceita tudo com a segurança desligada; senão exige registro ativo.
func (m *Manager) Validate(key string) bool {
	if !m.Enabled() {
		return true
	}
	rec, ok := m.lookup(key)
	return ok && rec.Active
}

// ValidateIP aceita tudo com a segurança desligada ou com a allowlist vazia.
func (m *Manager) ValidateIP(address string) bool {
	if !m.Enabled() || m.allow.Empty() {
		return true
	}
	return m.allow.Contains(address)
}

// RevokeKey remove o registro. Devolve false se a chave não existia.
func (m *Manager) RevokeKey(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	_, loaded := m.keys.LoadAndDelete(key)
	if !loaded {
		return false
	}
	m.persist(ctx)
	m.logger.Info("api key revoked", "key", infra.MaskKey(key))
	return true
}

// RecordUsage atualiza lastUsedAt. Em memória o valor já vale quando a função retorna; a
// gravação é síncrona ou agendada conforme UsageFlushInterval.
func (m *Manager) RecordUsage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	for {
		v, ok := m.keys.Load(key)
		if !ok {
			return
		}
		old := v.(*domain.APIKey)
		next := old.WithLastUsed(m.now())
		if m.keys.CompareAndSwap(key, old, &next) {
			break
		}
	}

	if m.flusher != nil {
		m.flusher.Trigger()
		return
	}
	m.persist(ctx)
}

// Lookup devolve a visão pública de um registro.
func (m *Manager) Lookup(key string) (domain.KeyInfo, error) {
	rec, ok := m.lookup(key)
	if !ok {
		return domain.KeyInfo{}, domain.ErrKeyNotFound
	}
	return rec.Info(), nil
}

// ListKeys devolve todos os registros sem o valor da chave, do mais antigo ao mais novo.
func (m *Manager) ListKeys() []domain.KeyInfo {
	recs := m.snapshotRecords()
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].Name < recs[j].Name
	})
	out := make([]domain.KeyInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Info())
	}
	return out
}

// SetSecurityEnabled troca o flag na hora. Erro do hook é devolvido, mas o flag em memória
// já mudou.
func (m *Manager) SetSecurityEnabled(enabled bool) error {
	m.enabled.Store(enabled)
	m.logger.Info("security toggled", "enabled", enabled)
	if m.onEnabledChange == nil {
		return nil
	}
	if err := m.onEnabledChange(enabled); err != nil {
		m.logger.Warn("persist security flag failed", "error", err)
		return err
	}
	return nil
}

func (m *Manager) SecurityInfo() domain.SecurityInfo {
	info := domain.SecurityInfo{
		SecurityEnabled: m.Enabled(),
		AllowedIPs:      m.allow.Len(),
	}
	m.keys.Range(func(_, v any) bool {
		info.TotalAPIKeys++
		if v.(*domain.APIKey).Active {
			info.ActiveAPIKeys++
		}
		return true
	})
	return info
}

// Close grava o que o agendador ainda tiver pendente.
func (m *Manager) Close(ctx context.Context) error {
	if m.flusher == nil {
		return nil
	}
	return m.flusher.Close(ctx)
}

func (m *Manager) lookup(key string) (domain.APIKey, bool) {
	if key == "" {
		return domain.APIKey{}, false
	}
	v, ok := m.keys.Load(key)
	if !ok {
		return domain.APIKey{}, false
	}
	return *v.(*domain.APIKey), true
}

func (m *Manager) snapshotRecords() []domain.APIKey {
	var recs []domain.APIKey
	m.keys.Range(func(_, v any) bool {
		recs = append(recs, *v.(*domain.APIKey))
		return true
	})
	return recs
}

func (m *Manager) snapshot() map[string]domain.APIKey {
	out := map[string]domain.APIKey{}
	m.keys.Range(func(k, v any) bool {
		out[k.(string)] = *v.(*domain.APIKey)
		return true
	})
	return out
}

func (m *Manager) save(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	return m.store.Save(ctx, m.snapshot())
}

func (m *Manager) persist(ctx context.Context) {
	if err := m.save(ctx); err != nil {
		m.logger.Warn("persist key table failed", "error", err)
	}
}
