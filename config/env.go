package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv sobrescreve o que veio do arquivo com as variáveis de ambiente definidas.
func applyEnv(c *Config) {
	c.Server.ListenAddr = getenvDefault("LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.UpstreamURL = getenvDefault("UPSTREAM_URL", c.Server.UpstreamURL)
	c.Server.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", c.Server.LogLevel))
	c.Server.ShutdownTimeout = getenvDurationDefault("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", c.Server.ConcurrencyTimeout)

	c.RateLimit.Enabled = getenvBoolDefault("RATE_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerMinute = getenvIntDefault("RATE_PER_MINUTE", c.RateLimit.RequestsPerMinute)
	c.RateLimit.RequestsPerHour = getenvIntDefault("RATE_PER_HOUR", c.RateLimit.RequestsPerHour)

	c.Security.Enabled = getenvBoolDefault("SECURITY_ENABLED", c.Security.Enabled)
	if v, ok := os.LookupEnv("SECURITY_ALLOWED_IPS"); ok {
		c.Security.AllowedIPs = splitList(v)
	}
	c.Security.KeyStore = strings.ToLower(getenvDefault("KEY_STORE", c.Security.KeyStore))
	c.Security.UsageFlushInterval = getenvDurationDefault("USAGE_FLUSH_INTERVAL", c.Security.UsageFlushInterval)

	c.Redis.Addr = getenvDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getenvDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getenvIntDefault("REDIS_DB", c.Redis.DB)

	c.Stats.Enabled = getenvBoolDefault("STATS_ENABLED", c.Stats.Enabled)
	c.Stats.Backend = strings.ToLower(getenvDefault("STATS_BACKEND", c.Stats.Backend))
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
