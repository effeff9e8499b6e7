// Package config carrega a configuração do gateway: arquivo YAML, sobrescrita por variáveis
// de ambiente e validação.
package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Security  SecurityConfig  `yaml:"security"`
	Redis     RedisConfig     `yaml:"redis"`
	Stats     StatsConfig     `yaml:"stats"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr" validate:"required"`
	// UpstreamURL vazio: sem proxy, só as rotas embutidas.
	UpstreamURL        string        `yaml:"upstreamURL" validate:"omitempty,url"`
	MaxConcurrent      int           `yaml:"maxConcurrent" validate:"gte=0"`
	ConcurrencyTimeout time.Duration `yaml:"concurrencyTimeout" validate:"gte=0"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
	TrustXForwardedFor bool          `yaml:"trustXForwardedFor"`
	LogLevel           string        `yaml:"logLevel" validate:"oneof=debug info warn error"`
	LogFormat          string        `yaml:"logFormat" validate:"oneof=text json"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerMinute int           `yaml:"requestsPerMinute" validate:"gt=0"`
	RequestsPerHour   int           `yaml:"requestsPerHour" validate:"gt=0"`
	AddHeaders        bool          `yaml:"addHeaders"`
	SweepInterval     time.Duration `yaml:"sweepInterval" validate:"gte=0"`
}

type SecurityConfig struct {
	Enabled    bool      `yaml:"enabled"`
	AllowedIPs []string  `yaml:"allowedIPs"`
	APIKeys    []SeedKey `yaml:"apiKeys" validate:"dive"`

	KeyStore   string `yaml:"keyStore" validate:"oneof=file sqlite redis"`
	KeyFile    string `yaml:"keyFile"`
	SQLitePath string `yaml:"sqlitePath"`
	RedisKey   string `yaml:"redisKey"`
	// 0: grava a tabela a cada uso de chave.
	UsageFlushInterval time.Duration `yaml:"usageFlushInterval" validate:"gte=0"`
}

// SeedKey é uma chave declarada no arquivo de configuração.
type SeedKey struct {
	Key         string `yaml:"key" validate:"required"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// ausente = ativa
	Active *bool `yaml:"active,omitempty"`
}

func (k SeedKey) IsActive() bool { return k.Active == nil || *k.Active }

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type StatsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Backend   string        `yaml:"backend" validate:"oneof=memory redis otel"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
	Bucket    string        `yaml:"bucket" validate:"oneof=minute none"`
	TrackKeys bool          `yaml:"trackKeys"`
}

// Default devolve a configuração usada quando não há arquivo.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxConcurrent:   10,
			ShutdownTimeout: 5 * time.Second,
			LogLevel:        "info",
			LogFormat:       "text",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			SweepInterval:     time.Minute,
		},
		Security: SecurityConfig{
			Enabled:    false,
			AllowedIPs: []string{},
			APIKeys:    []SeedKey{},
			KeyStore:   "file",
			KeyFile:    "data/api_keys.json",
			SQLitePath: "data/api_keys.db",
			RedisKey:   "gateway:api_keys",
		},
		Stats: StatsConfig{
			Enabled: false,
			Backend: "memory",
			Prefix:  "gateway:stats",
			TTL:     24 * time.Hour,
			Bucket:  "minute",
		},
	}
}

func (c *Config) clone() *Config {
	out := *c
	out.Security.AllowedIPs = append([]string(nil), c.Security.AllowedIPs...)
	out.Security.APIKeys = append([]SeedKey(nil), c.Security.APIKeys...)
	return &out
}
