// Package config loads the checkout host configuration from a .env file, an
// optional YAML file and the environment. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultPort              = "8080"
	DefaultRedisURL          = "redis://localhost:6379/0"
	DefaultQueueName         = "checkout_jobs"
	DefaultWorkerConcurrency = 2
	DefaultBackendTimeout    = 30 * time.Second
	DefaultTokenTTL          = 30 * time.Minute
	DefaultSessionMaxAge     = 24 * 60 * 60
	DefaultMerchantName      = "We Will Fix Your PC"
	DefaultRegion            = "GB"
	DefaultSubmitLimit       = 10
	DefaultSubmitWindow      = time.Minute
	DefaultServiceName       = "worldpay-checkout"
)

var (
	ErrMissingAPIRoot       = errors.New("API_ROOT is required")
	ErrMissingSessionSecret = errors.New("SESSION_SECRET is required")
	ErrMissingTokenSecret   = errors.New("BRIDGE_TOKEN_SECRET is required")
	ErrInvalidSamplingRate  = errors.New("OTEL_SAMPLING_RATE must be between 0 and 1")
)

type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Redis     RedisConfig
	Session   SessionConfig
	Bridge    BridgeConfig
	Checkout  CheckoutConfig
	Reporting ReportingConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type BackendConfig struct {
	APIRoot string
	Timeout time.Duration
}

type RedisConfig struct {
	URL               string
	QueueName         string
	WorkerConcurrency int
	// BridgePubSub routes bridge messages over Redis so any instance can accept them.
	BridgePubSub bool
}

type SessionConfig struct {
	Secret string
	Secure bool
	MaxAge int
}

type BridgeConfig struct {
	TokenSecret string
	Issuer      string
	TokenTTL    time.Duration
}

type CheckoutConfig struct {
	MerchantName string
	Region       string
	SubmitLimit  int
	SubmitWindow time.Duration
}

type ReportingConfig struct {
	SentryDSN   string
	Environment string
}

type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	Endpoint     string
	SamplingRate float64
	Insecure     bool
}

// Load reads .env (if present), then configFilePath (if set), then the
// environment. All problems found are returned together.
func Load(configFilePath string) (*Config, []error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	k := koanf.New(".")
	var errs []error
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			errs = append(errs, fmt.Errorf("failed to load config file %s: %w", configFilePath, err))
		}
	}

	l := loader{k: k}
	cfg := &Config{
		Server: ServerConfig{
			Port:           l.str("SERVER_PORT", "server.port", DefaultPort),
			AllowedOrigins: l.list("ALLOWED_ORIGINS", "server.allowed_origins"),
		},
		Backend: BackendConfig{
			APIRoot: l.str("API_ROOT", "backend.api_root", ""),
			Timeout: l.duration("BACKEND_TIMEOUT", "backend.timeout", DefaultBackendTimeout),
		},
		Redis: RedisConfig{
			URL:               l.str("REDIS_URL", "redis.url", DefaultRedisURL),
			QueueName:         l.str("REDIS_QUEUE", "redis.queue", DefaultQueueName),
			WorkerConcurrency: l.int("WORKER_CONCURRENCY", "redis.worker_concurrency", DefaultWorkerConcurrency),
			BridgePubSub:      l.bool("BRIDGE_PUBSUB", "redis.bridge_pubsub", false),
		},
		Session: SessionConfig{
			Secret: l.str("SESSION_SECRET", "session.secret", ""),
			Secure: l.bool("SESSION_SECURE", "session.secure", true),
			MaxAge: l.int("SESSION_MAX_AGE", "session.max_age", DefaultSessionMaxAge),
		},
		Bridge: BridgeConfig{
			TokenSecret: l.str("BRIDGE_TOKEN_SECRET", "bridge.token_secret", ""),
			Issuer:      l.str("BRIDGE_TOKEN_ISSUER", "bridge.issuer", DefaultServiceName),
			TokenTTL:    l.duration("BRIDGE_TOKEN_TTL", "bridge.token_ttl", DefaultTokenTTL),
		},
		Checkout: CheckoutConfig{
			MerchantName: l.str("MERCHANT_NAME", "checkout.merchant_name", DefaultMerchantName),
			Region:       l.str("PHONE_REGION", "checkout.region", DefaultRegion),
			SubmitLimit:  l.int("SUBMIT_RATE_LIMIT", "checkout.submit_limit", DefaultSubmitLimit),
			SubmitWindow: l.duration("SUBMIT_RATE_WINDOW", "checkout.submit_window", DefaultSubmitWindow),
		},
		Reporting: ReportingConfig{
			SentryDSN:   l.str("SENTRY_DSN", "reporting.sentry_dsn", ""),
			Environment: l.str("SENTRY_ENVIRONMENT", "reporting.environment", "development"),
		},
		Tracing: TracingConfig{
			Enabled:      l.bool("OTEL_ENABLED", "tracing.enabled", false),
			ServiceName:  l.str("OTEL_SERVICE_NAME", "tracing.service_name", DefaultServiceName),
			Endpoint:     l.str("OTEL_EXPORTER_OTLP_ENDPOINT", "tracing.endpoint", ""),
			SamplingRate: l.float("OTEL_SAMPLING_RATE", "tracing.sampling_rate", 1.0),
			Insecure:     l.bool("OTEL_INSECURE", "tracing.insecure", false),
		},
	}

	errs = append(errs, l.errs...)
	errs = append(errs, cfg.Validate()...)
	return cfg, errs
}

// Validate checks the required settings.
func (c *Config) Validate() []error {
	var errs []error
	if c.Backend.APIRoot == "" {
		errs = append(errs, ErrMissingAPIRoot)
	}
	if c.Session.Secret == "" {
		errs = append(errs, ErrMissingSessionSecret)
	}
	if c.Bridge.TokenSecret == "" {
		errs = append(errs, ErrMissingTokenSecret)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}
	return errs
}

// loader resolves each setting from the environment, then koanf, then a default,
// collecting parse errors as it goes.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) str(envKey, koanfKey, def string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if val := l.k.String(koanfKey); val != "" {
		return val
	}
	return def
}

func (l *loader) list(envKey, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return l.k.Strings(koanfKey)
}

func (l *loader) int(envKey, koanfKey string, def int) int {
	if val := os.Getenv(envKey); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", envKey, err))
			return def
		}
		return n
	}
	if l.k.Exists(koanfKey) {
		return l.k.Int(koanfKey)
	}
	return def
}

func (l *loader) bool(envKey, koanfKey string, def bool) bool {
	if val := os.Getenv(envKey); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", envKey, err))
			return def
		}
		return b
	}
	if l.k.Exists(koanfKey) {
		return l.k.Bool(koanfKey)
	}
	return def
}

func (l *loader) float(envKey, koanfKey string, def float64) float64 {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", envKey, err))
			return def
		}
		return f
	}
	if l.k.Exists(koanfKey) {
		return l.k.Float64(koanfKey)
	}
	return def
}

func (l *loader) duration(envKey, koanfKey string, def time.Duration) time.Duration {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", envKey, err))
			return def
		}
		return d
	}
	if l.k.Exists(koanfKey) {
		return l.k.Duration(koanfKey)
	}
	return def
}
