package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	placeholderSessionSecret = "YOUR_SECRET"
	placeholderStripeSecret  = "YOUR_STRIPE_SECRET_KEY"
	placeholderStripePublic  = "YOUR_STRIPE_PUBLISHABLE_KEY"
	placeholderStripeClient  = "YOUR_STRIPE_CLIENT_ID"
)

// ServerConfig captures all tunable parameters for the web process.
// Values are loaded from environment variables with defaults that let the
// binary run locally against Stripe test mode.
type ServerConfig struct {
	AppName          string
	PublicDomain     string
	RegisterWebhooks bool
	Environment      string

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SessionSecret string
	SessionMaxAge time.Duration

	StripeSecretKey      string
	StripePublishableKey string
	StripeClientID       string
	StripeWebhookSecret  string

	DatabaseURI string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	LoginRateLimit int
	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For header is believed. Empty means none.
	TrustedProxies []string

	GCloudProjectID string

	LogLevel      string
	LogFormat     string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		AppName:              "Rocket Deliveries",
		PublicDomain:         "http://localhost:3000",
		RegisterWebhooks:     true,
		Environment:          EnvDevelopment,
		HTTPAddr:             ":3000",
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         10 * time.Second,
		IdleTimeout:          120 * time.Second,
		ShutdownTimeout:      15 * time.Second,
		SessionSecret:        placeholderSessionSecret,
		SessionMaxAge:        24 * time.Hour,
		StripeSecretKey:      placeholderStripeSecret,
		StripePublishableKey: placeholderStripePublic,
		StripeClientID:       placeholderStripeClient,
		DatabaseURI:          "mongodb://localhost/rocketdeliveries",
		KafkaTopic:           "pilot-events",
		LoginRateLimit:       20,
		GCloudProjectID:      "YOUR_PROJECT_ID",
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.AppName, "APP_NAME")
	setStringFromEnv(&cfg.PublicDomain, "PUBLIC_DOMAIN")
	cfg.PublicDomain = strings.TrimRight(cfg.PublicDomain, "/")
	setBoolFromEnv(&cfg.RegisterWebhooks, "REGISTER_WEBHOOKS", &errs)
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = strings.ToLower(strings.TrimSpace(v))
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.HTTPAddr = ":" + port
	}
	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setStringFromEnv(&cfg.SessionSecret, "SESSION_SECRET")
	setDurationFromEnv(&cfg.SessionMaxAge, "SESSION_MAX_AGE", &errs)

	setStringFromEnv(&cfg.StripeSecretKey, "STRIPE_SECRET_KEY")
	setStringFromEnv(&cfg.StripePublishableKey, "STRIPE_PUBLISHABLE_KEY")
	setStringFromEnv(&cfg.StripeClientID, "STRIPE_CLIENT_ID")
	cfg.StripeWebhookSecret = strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))

	setStringFromEnv(&cfg.DatabaseURI, "MONGO_URI")
	setStringFromEnv(&cfg.DatabaseURI, "DATABASE_URI")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setIntFromEnv(&cfg.LoginRateLimit, "LOGIN_RATE_LIMIT", &errs)
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		cfg.TrustedProxies = splitAndTrim(proxies)
	}
	setStringFromEnv(&cfg.GCloudProjectID, "GCLOUD_PROJECT_ID")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

func (c ServerConfig) Production() bool {
	return c.Environment == EnvProduction
}

// WebhookURL is the public URL Stripe delivers Connect events to.
func (c ServerConfig) WebhookURL() string {
	return c.PublicDomain + "/pilots/stripe/webhooks"
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is treated as
// a single-host range.
func (c ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, v := range c.TrustedProxies {
		if strings.Contains(v, "/") {
			pfx, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, pfx.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Validate checks ranges and, in production, that no placeholder secret is
// still in use.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.LoginRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("LOGIN_RATE_LIMIT must be > 0"))
	}
	if c.SessionMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_AGE must be > 0"))
	}
	if !strings.HasPrefix(c.PublicDomain, "http://") && !strings.HasPrefix(c.PublicDomain, "https://") {
		errs = append(errs, fmt.Errorf("PUBLIC_DOMAIN must be an http(s) URL"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.Production() {
		secrets := []struct{ key, value, placeholder string }{
			{"SESSION_SECRET", c.SessionSecret, placeholderSessionSecret},
			{"STRIPE_SECRET_KEY", c.StripeSecretKey, placeholderStripeSecret},
			{"STRIPE_PUBLISHABLE_KEY", c.StripePublishableKey, placeholderStripePublic},
		}
		for _, s := range secrets {
			if s.value == "" || s.value == s.placeholder {
				errs = append(errs, fmt.Errorf("%s must be set in production", s.key))
			}
		}
	}
	return errors.Join(errs...)
}

// ConsumerConfig configures the pilot activity consumer.
type ConsumerConfig struct {
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
	RedisAddr     string
	RedisPassword string
	StatsTTL      time.Duration
	LogLevel      string
	LogFormat     string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "pilot-events",
		KafkaGroupID: "pilot-stats",
		RedisAddr:    "localhost:6379",
		StatsTTL:     30 * 24 * time.Hour,
		LogLevel:     "info",
		LogFormat:    "json",
	}
	var errs []error
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroupID, "KAFKA_GROUP_ID")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setDurationFromEnv(&cfg.StatsTTL, "PILOT_STATS_TTL", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must not be empty"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
