package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gumboard-api/notify"
)

// DedupBackend selects where notification dedup state lives.
type DedupBackend string

const (
	DedupMemory DedupBackend = "memory"
	DedupRedis  DedupBackend = "redis"
)

type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	DedupBackend   DedupBackend
	DedupWindow    time.Duration
	DebounceWindow time.Duration

	WebhookTimeout  time.Duration
	DispatchWorkers int
	DispatchBuffer  int
	DispatchHandoff time.Duration

	NoteCacheTTL  time.Duration
	PublicBaseURL string

	Auth0Domain     string
	Auth0Audience   string
	LocalAuthMode   string
	LocalAuthSecret string

	Debug     bool
	LogFormat string
}

// LocalAuth reports whether tokens are verified with the shared HS256 secret
// instead of the Auth0 JWKS.
func (c Config) LocalAuth() bool {
	return strings.EqualFold(c.LocalAuthMode, "hs256")
}

// Load reads the configuration from the environment. Malformed values are
// reported rather than replaced by defaults.
func Load() (Config, error) {
	var errs []string
	r := reader{errs: &errs}

	cfg := Config{
		Addr:        getenv("API_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		DedupBackend:   DedupBackend(strings.ToLower(getenv("DEDUP_BACKEND", string(DedupMemory)))),
		DedupWindow:    r.duration("DEDUP_WINDOW", notify.DefaultDedupWindow),
		DebounceWindow: r.duration("DEBOUNCE_WINDOW", notify.DefaultDebounceWindow),

		WebhookTimeout:  r.duration("WEBHOOK_TIMEOUT", notify.DefaultWebhookTimeout),
		DispatchWorkers: r.positiveInt("DISPATCH_WORKERS", 4),
		DispatchBuffer:  r.positiveInt("DISPATCH_BUFFER", 256),
		DispatchHandoff: r.duration("DISPATCH_HANDOFF_TIMEOUT", 10*time.Millisecond),

		NoteCacheTTL:  r.duration("NOTE_CACHE_TTL", 5*time.Minute),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		Auth0Domain:     os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:   os.Getenv("AUTH0_AUDIENCE"),
		LocalAuthMode:   os.Getenv("LOCAL_AUTH_MODE"),
		LocalAuthSecret: os.Getenv("LOCAL_AUTH_SHARED_SECRET"),

		Debug:     r.boolean("DEBUG", false),
		LogFormat: strings.ToLower(getenv("LOG_FORMAT", "text")),
	}

	if cfg.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	switch cfg.DedupBackend {
	case DedupMemory:
	case DedupRedis:
		if cfg.RedisURL == "" {
			errs = append(errs, "DEDUP_BACKEND=redis requires REDIS_URL")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid DEDUP_BACKEND %q", cfg.DedupBackend))
	}
	if cfg.LocalAuth() {
		if cfg.LocalAuthSecret == "" {
			errs = append(errs, "LOCAL_AUTH_MODE=hs256 requires LOCAL_AUTH_SHARED_SECRET")
		}
	} else if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
		errs = append(errs, "missing Auth0 config")
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// RedisOptions parses REDIS_URL. Besides redis:// URLs it accepts the
// "host:port,password=...,ssl=True" connection string format.
func RedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

type reader struct {
	errs *[]string
}

func (r reader) fail(key string, err error) {
	*r.errs = append(*r.errs, fmt.Sprintf("invalid %s: %v", key, err))
}

func (r reader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err == nil && d <= 0 {
		err = fmt.Errorf("must be greater than zero")
	}
	if err != nil {
		r.fail(key, err)
		return fallback
	}
	return d
}

func (r reader) positiveInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err == nil && n <= 0 {
		err = fmt.Errorf("must be greater than zero")
	}
	if err != nil {
		r.fail(key, err)
		return fallback
	}
	return n
}

func (r reader) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return fallback
	}
	return b
}
