package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	yaml "gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("invalid config")

// Manager lê e grava o arquivo de configuração.
//
// Guarda duas versões: a do arquivo (o que Save grava) e a efetiva, com as variáveis de
// ambiente aplicadas (o que Get devolve). Assim um Save nunca grava valores vindos do
// ambiente.
type Manager struct {
	path string

	mu        sync.RWMutex
	file      *Config
	effective *Config
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) Path() string { return m.path }

// Load lê o arquivo, cria um com os padrões se não existir, aplica o ambiente e valida.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.readFile()
	if err != nil {
		return nil, err
	}

	effective := file.clone()
	applyEnv(effective)
	if err := Validate(effective); err != nil {
		return nil, err
	}

	m.file = file
	m.effective = effective
	return effective.clone(), nil
}

func (m *Manager) readFile() (*Config, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := m.write(cfg); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// o arquivo é aplicado por cima dos padrões: chave ausente mantém o padrão
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, m.path, err)
	}
	return cfg, nil
}

// Save valida e grava cfg como o novo conteúdo do arquivo.
func (m *Manager) Save(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.write(cfg); err != nil {
		return err
	}
	m.file = cfg.clone()
	effective := cfg.clone()
	applyEnv(effective)
	m.effective = effective
	return nil
}

// Get devolve uma cópia da configuração efetiva; nil antes do primeiro Load.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.effective == nil {
		return nil
	}
	return m.effective.clone()
}

// SetSecurityEnabled grava security.enabled no arquivo, preservando o resto.
func (m *Manager) SetSecurityEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return errors.New("config not loaded")
	}
	next := m.file.clone()
	next.Security.Enabled = enabled
	if err := m.write(next); err != nil {
		return err
	}
	m.file = next
	if m.effective != nil {
		m.effective.Security.Enabled = enabled
	}
	return nil
}

func (m *Manager) write(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
