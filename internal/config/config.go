// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory session store (dev only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// PlatformTokenSecret is a hex-encoded HMAC secret for HS256 platform tokens.
	// Mutually exclusive with the PEM keypair below; exactly one must be set.
	PlatformTokenSecret string `mapstructure:"PLATFORM_TOKEN_SECRET"`
	// PlatformTokenPrivateKey is a PEM-encoded private key (RSA or ECDSA) or a path to one.
	PlatformTokenPrivateKey string `mapstructure:"PLATFORM_TOKEN_PRIVATE_KEY"`
	// PlatformTokenPublicKey is the matching PEM-encoded public key or a path to one.
	PlatformTokenPublicKey string `mapstructure:"PLATFORM_TOKEN_PUBLIC_KEY"`
	// PlatformTokenIssuer is the iss claim on platform tokens.
	PlatformTokenIssuer string `mapstructure:"PLATFORM_TOKEN_ISSUER"`

	// SessionTTLRaw is the session lifetime (e.g. "30m").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// SessionRetentionRaw is how long expired sessions are kept before the sweeper deletes them (e.g. "1h").
	SessionRetentionRaw string `mapstructure:"SESSION_RETENTION"`
	// TokenTTLRaw is the default platform token lifetime (e.g. "2m").
	TokenTTLRaw string `mapstructure:"TOKEN_TTL"`
	// FetchTokenTTLRaw overrides the fetch_attributes token lifetime; empty uses TOKEN_TTL.
	FetchTokenTTLRaw string `mapstructure:"FETCH_TOKEN_TTL"`
	// ReportTokenTTLRaw overrides the report capabilities' token lifetime; empty uses TOKEN_TTL.
	ReportTokenTTLRaw string `mapstructure:"REPORT_TOKEN_TTL"`
	// FetchSingleUse makes the first successful attribute fetch consume the session's fetch.
	FetchSingleUse bool `mapstructure:"FETCH_SINGLE_USE"`

	// ProviderStartURL is the authentication provider's start endpoint users are redirected to.
	ProviderStartURL string `mapstructure:"PROVIDER_START_URL"`
	// ProviderVerifyURL is the provider's assertion verification endpoint.
	ProviderVerifyURL string `mapstructure:"PROVIDER_VERIFY_URL"`
	// ProviderReturnURL is where the provider sends the user back after authentication.
	ProviderReturnURL string `mapstructure:"PROVIDER_RETURN_URL"`
	// RequestSigningKey is the PEM private key (or path) used to sign start requests for the provider.
	RequestSigningKey string `mapstructure:"REQUEST_SIGNING_KEY"`
	// RequestSigningPublicKey is the matching public key, published to the provider.
	RequestSigningPublicKey string `mapstructure:"REQUEST_SIGNING_PUBLIC_KEY"`
	// RequestKeyID is the kid header on signed start requests.
	RequestKeyID string `mapstructure:"REQUEST_KEY_ID"`

	// ScopePolicyRego optionally replaces the built-in attestation-scope policy.
	ScopePolicyRego string `mapstructure:"SCOPE_POLICY_REGO"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables event emission.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for lifecycle events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the telemetry worker pushes to.
	LokiURL string `mapstructure:"LOKI_URL"`
	// OTLPEndpoint enables OTel export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// SweepInterval is how often the sweeper runs (e.g. "10m").
	SweepIntervalRaw string `mapstructure:"SWEEP_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("PLATFORM_TOKEN_SECRET", "")
	v.SetDefault("PLATFORM_TOKEN_PRIVATE_KEY", "")
	v.SetDefault("PLATFORM_TOKEN_PUBLIC_KEY", "")
	v.SetDefault("PLATFORM_TOKEN_ISSUER", "attex-trustcore")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("SESSION_RETENTION", "1h")
	v.SetDefault("TOKEN_TTL", "2m")
	v.SetDefault("FETCH_TOKEN_TTL", "")
	v.SetDefault("REPORT_TOKEN_TTL", "")
	v.SetDefault("FETCH_SINGLE_USE", true)
	v.SetDefault("PROVIDER_START_URL", "")
	v.SetDefault("PROVIDER_VERIFY_URL", "")
	v.SetDefault("PROVIDER_RETURN_URL", "")
	v.SetDefault("REQUEST_SIGNING_KEY", "")
	v.SetDefault("REQUEST_SIGNING_PUBLIC_KEY", "")
	v.SetDefault("REQUEST_KEY_ID", "trustcore-1")
	v.SetDefault("SCOPE_POLICY_REGO", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "attex-session-events")
	v.SetDefault("KAFKA_GROUP_ID", "attex-telemetry-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("SWEEP_INTERVAL", "10m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	hasSecret := cfg.PlatformTokenSecret != ""
	hasKeypair := cfg.PlatformTokenPrivateKey != "" || cfg.PlatformTokenPublicKey != ""
	if hasSecret && hasKeypair {
		return nil, errors.New("config: set either PLATFORM_TOKEN_SECRET or the PEM keypair, not both")
	}
	if !hasSecret && !hasKeypair {
		return nil, errors.New("config: platform token key material is required")
	}
	if cfg.PlatformTokenIssuer == "" {
		return nil, errors.New("config: PLATFORM_TOKEN_ISSUER must be set")
	}

	return &cfg, nil
}

// SessionTTL parses SESSION_TTL. Returns 30m if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, 30*time.Minute)
}

// SessionRetention parses SESSION_RETENTION. Returns 1h if unset or invalid.
func (c *Config) SessionRetention() time.Duration {
	return parseDuration(c.SessionRetentionRaw, time.Hour)
}

// TokenTTL parses TOKEN_TTL. Returns 2m if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	return parseDuration(c.TokenTTLRaw, 2*time.Minute)
}

// FetchTokenTTL parses FETCH_TOKEN_TTL, falling back to TokenTTL.
func (c *Config) FetchTokenTTL() time.Duration {
	return parseDuration(c.FetchTokenTTLRaw, c.TokenTTL())
}

// ReportTokenTTL parses REPORT_TOKEN_TTL, falling back to TokenTTL.
func (c *Config) ReportTokenTTL() time.Duration {
	return parseDuration(c.ReportTokenTTLRaw, c.TokenTTL())
}

// SweepInterval parses SWEEP_INTERVAL. Returns 10m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SweepIntervalRaw, 10*time.Minute)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the
// comma-separated config. A non-empty list means telemetry is enabled.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
