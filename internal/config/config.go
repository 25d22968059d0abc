package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends selectable at startup.
const (
	BackendRedis   = "redis"
	BackendMemory  = "memory"
	BackendSharded = "sharded"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request timeout (ex: 5s)

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Backend        string        // "redis" | "memory" | "sharded"
	RegistryFile   string        // optional YAML file with nodes, patterns and ToS URLs
	ReloadInterval time.Duration // interval to reload the registry file (default: 5m)
	ClaimRetries   int           // selections attempted when node claims conflict (default: 3)

	// Redis
	RedisAddr             string            // ex: "localhost:6379"
	RedisUser             string            // optional
	RedisPassword         string            // optional
	RedisPasswordRequired bool              // true => require password, false => allow empty password
	RedisDB               int               // Redis DB number
	RedisShards           map[string]string // service -> redis URL (sharded backend only)
	RedisDT               time.Duration     // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration     // Redis read timeout (ex: 3s)
	RedisWT               time.Duration     // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration     // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration     // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int               // Redis connection pool size
	RedisConnectTimeout   time.Duration     // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration     // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int               // warn after this many attempts

	// Allocation endpoint rate limit
	RateLimitBurst  int // tokens per client IP
	RateLimitPerMin int // refill per client IP per minute

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("NODEKEEPER_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("NODEKEEPER_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("NODEKEEPER_REQUEST_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("NODEKEEPER_LOG_LEVEL", "info"),
		PrettyLog: mustBool("NODEKEEPER_PRETTY_LOG", false),

		// Storage & allocation
		Backend:        strings.ToLower(getenv("NODEKEEPER_BACKEND", BackendRedis)),
		RegistryFile:   getenv("NODEKEEPER_REGISTRY_FILE", ""), // Optional, empty = no registry reload
		ReloadInterval: mustDuration("NODEKEEPER_RELOAD_INTERVAL", 5*time.Minute),
		ClaimRetries:   getenvInt("NODEKEEPER_CLAIM_RETRIES", 3),

		// Redis settings
		RedisUser:             getenv("NODEKEEPER_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("NODEKEEPER_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("NODEKEEPER_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("NODEKEEPER_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Rate limiting
		RateLimitBurst:  getenvInt("NODEKEEPER_RATE_LIMIT_BURST", 20),
		RateLimitPerMin: getenvInt("NODEKEEPER_RATE_LIMIT_PER_MIN", 60),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("NODEKEEPER_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("NODEKEEPER_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("NODEKEEPER_TRUST_PROXY", false),
	}

	switch cfg.Backend {
	case BackendRedis:
		cfg.RedisAddr = requireEnv("NODEKEEPER_REDIS_ADDR")
		// Validate Redis password configuration
		if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
			panic("❌ FATAL: NODEKEEPER_REDIS_PASSWORD is required when NODEKEEPER_REDIS_PASSWORD_REQUIRED=true")
		}
	case BackendSharded:
		cfg.RedisShards = parseShards(requireEnv("NODEKEEPER_REDIS_SHARDS"))
	case BackendMemory:
	default:
		panic(fmt.Sprintf("❌ FATAL: Unknown NODEKEEPER_BACKEND %q (want redis, memory or sharded)", cfg.Backend))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		if len(cfg.RedisShards) > 0 {
			cfgCopy.RedisShards = make(map[string]string, len(cfg.RedisShards))
			for service := range cfg.RedisShards {
				cfgCopy.RedisShards[service] = "***REDACTED***"
			}
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// parseShards reads "service;url,service;url".
// Example: "sync;redis://10.0.0.1:6379/0,queuey;redis://10.0.0.2:6379/0"
func parseShards(raw string) map[string]string {
	shards := make(map[string]string)
	for _, entry := range splitAndTrim(raw) {
		service, url, ok := strings.Cut(entry, ";")
		service = strings.TrimSpace(service)
		url = strings.TrimSpace(url)
		if !ok || service == "" || url == "" {
			panic(fmt.Sprintf("❌ FATAL: Invalid shard entry %q (want service;redis-url)", entry))
		}
		shards[service] = url
	}
	if len(shards) == 0 {
		panic("❌ FATAL: NODEKEEPER_REDIS_SHARDS has no entries")
	}
	return shards
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
