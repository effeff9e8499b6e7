package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checa as tags dos campos e as regras entre campos. Todo erro embrulha
// ErrInvalidConfig.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var problems []string
	if c.RateLimit.RequestsPerHour < c.RateLimit.RequestsPerMinute {
		problems = append(problems, "rateLimit.requestsPerHour must be >= requestsPerMinute")
	}
	needsRedis := c.Security.KeyStore == "redis" || (c.Stats.Enabled && c.Stats.Backend == "redis")
	if needsRedis && strings.TrimSpace(c.Redis.Addr) == "" {
		problems = append(problems, "redis.addr is required by the selected key store or stats backend")
	}
	switch c.Security.KeyStore {
	case "file":
		if strings.TrimSpace(c.Security.KeyFile) == "" {
			problems = append(problems, "security.keyFile is required for the file key store")
		}
	case "sqlite":
		if strings.TrimSpace(c.Security.SQLitePath) == "" {
			problems = append(problems, "security.sqlitePath is required for the sqlite key store")
		}
	}
	seen := map[string]bool{}
	for i, k := range c.Security.APIKeys {
		if seen[k.Key] {
			problems = append(problems, fmt.Sprintf("security.apiKeys[%d] repeats an earlier key", i))
		}
		seen[k.Key] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
