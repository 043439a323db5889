package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shortontech/botgate/internal/classify"
)

type Config struct {
	ServerAddr   string
	TrustProxy   bool
	MaxBodyBytes int64    // bytes for /classify payload
	IPHashSecret string   // if empty, events carry no IP hash
	Outputs      []string // enabled sinks: log, kafka
	LogLevel     string

	RedirectURL      string
	BotPatterns      []string
	BotPatternsFile  string
	BotContentOrigin string // optional upstream serving bot content

	ConsentStore     string // memory, redis, postgres
	ConsentKeyPrefix string
	ConsentTTL       time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	PGDSN            string
	PGTable          string
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}
func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func Load() Config {
	patterns := getStringSlice("BOT_PATTERNS", "")
	if patterns == nil {
		patterns = append([]string(nil), classify.DefaultBotPatterns...)
	}
	return Config{
		ServerAddr:   getOr("SERVER_ADDR", ":19890"),
		TrustProxy:   getBool("TRUST_PROXY", false),
		MaxBodyBytes: getInt64("MAX_BODY_BYTES", 64<<10),
		IPHashSecret: getOr("IP_HASH_SECRET", ""),
		Outputs:      getStringSlice("OUTPUTS", "log"),
		LogLevel:     getOr("LOG_LEVEL", "info"),

		RedirectURL:      getOr("REDIRECT_URL", "https://example.com/"),
		BotPatterns:      patterns,
		BotPatternsFile:  getOr("BOT_PATTERNS_FILE", ""),
		BotContentOrigin: getOr("BOT_CONTENT_ORIGIN", ""),

		ConsentStore:     strings.ToLower(getOr("CONSENT_STORE", "memory")),
		ConsentKeyPrefix: getOr("CONSENT_KEY_PREFIX", "botgate_"),
		ConsentTTL:       getDuration("CONSENT_TTL", 0),
		RedisAddr:        getOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getOr("REDIS_PASSWORD", ""),
		RedisDB:          int(getInt64("REDIS_DB", 0)),
		PGDSN:            getOr("PG_DSN", ""),
		PGTable:          getOr("PG_TABLE", "consent_flags"),
	}
}

// LoadPatternsFile reads a bot_patterns list from a YAML, JSON or TOML file.
func LoadPatternsFile(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}
	patterns := v.GetStringSlice("bot_patterns")
	if len(patterns) == 0 {
		return nil, fmt.Errorf("patterns file %s: bot_patterns is empty", path)
	}
	return patterns, nil
}

// Resolve applies BotPatternsFile, when set, over the env pattern list.
func (c *Config) Resolve() error {
	if c.BotPatternsFile == "" {
		return nil
	}
	patterns, err := LoadPatternsFile(c.BotPatternsFile)
	if err != nil {
		return err
	}
	c.BotPatterns = patterns
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if len(c.BotPatterns) == 0 {
		errs = append(errs, errors.New("bot pattern list is empty"))
	}
	if u, err := url.Parse(c.RedirectURL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("REDIRECT_URL %q must be an absolute URL", c.RedirectURL))
	}
	if c.BotContentOrigin != "" {
		if u, err := url.Parse(c.BotContentOrigin); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("BOT_CONTENT_ORIGIN %q must be an absolute URL", c.BotContentOrigin))
		}
	}
	switch c.ConsentStore {
	case "memory", "redis":
	case "postgres":
		if c.PGDSN == "" {
			errs = append(errs, errors.New("CONSENT_STORE=postgres requires PG_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CONSENT_STORE %q", c.ConsentStore))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	return errors.Join(errs...)
}
