package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_SecretRequired(t *testing.T) {
	t.Setenv("PLATFORM_TOKEN_SECRET", "")
	t.Setenv("PLATFORM_TOKEN_PRIVATE_KEY", "")
	t.Setenv("PLATFORM_TOKEN_PUBLIC_KEY", "")
	if _, err := Load(); err == nil {
		t.Error("Load() without key material should return error")
	}
}

func TestLoad_SecretFromEnv(t *testing.T) {
	t.Setenv("PLATFORM_TOKEN_SECRET", "deadbeef")
	t.Setenv("DATABASE_URL", "postgres://localhost/attex")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PlatformTokenSecret != "deadbeef" {
		t.Errorf("PlatformTokenSecret = %q", cfg.PlatformTokenSecret)
	}
	if cfg.DatabaseURL != "postgres://localhost/attex" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.PlatformTokenIssuer != "attex-trustcore" {
		t.Errorf("default issuer = %q", cfg.PlatformTokenIssuer)
	}
	if !cfg.FetchSingleUse {
		t.Error("FetchSingleUse should default to true")
	}
	if cfg.TelemetryKafkaTopic != "attex-session-events" {
		t.Errorf("default topic = %q", cfg.TelemetryKafkaTopic)
	}
	if cfg.RequestKeyID != "trustcore-1" {
		t.Errorf("default RequestKeyID = %q", cfg.RequestKeyID)
	}
}

func TestLoad_SecretAndKeypairConflict(t *testing.T) {
	t.Setenv("PLATFORM_TOKEN_SECRET", "deadbeef")
	t.Setenv("PLATFORM_TOKEN_PUBLIC_KEY", "-----BEGIN PUBLIC KEY-----")

	if _, err := Load(); err == nil {
		t.Error("Load() with both secret and keypair should return error")
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		SessionTTLRaw:       "45m",
		SessionRetentionRaw: "2h",
		TokenTTLRaw:         "90s",
		SweepIntervalRaw:    "5m",
	}
	if got := cfg.SessionTTL(); got != 45*time.Minute {
		t.Errorf("SessionTTL() = %v", got)
	}
	if got := cfg.SessionRetention(); got != 2*time.Hour {
		t.Errorf("SessionRetention() = %v", got)
	}
	if got := cfg.TokenTTL(); got != 90*time.Second {
		t.Errorf("TokenTTL() = %v", got)
	}
	if got := cfg.SweepInterval(); got != 5*time.Minute {
		t.Errorf("SweepInterval() = %v", got)
	}
}

func TestConfig_Durations_Fallbacks(t *testing.T) {
	cfg := &Config{SessionTTLRaw: "garbage", TokenTTLRaw: "-1m"}
	if got := cfg.SessionTTL(); got != 30*time.Minute {
		t.Errorf("SessionTTL() fallback = %v, want 30m", got)
	}
	if got := cfg.SessionRetention(); got != time.Hour {
		t.Errorf("SessionRetention() fallback = %v, want 1h", got)
	}
	if got := cfg.TokenTTL(); got != 2*time.Minute {
		t.Errorf("TokenTTL() for negative raw = %v, want 2m", got)
	}
}

func TestConfig_TokenTTLOverrides(t *testing.T) {
	cfg := &Config{TokenTTLRaw: "2m", FetchTokenTTLRaw: "1m"}
	if got := cfg.FetchTokenTTL(); got != time.Minute {
		t.Errorf("FetchTokenTTL() = %v, want 1m", got)
	}
	// Unset report TTL falls back to the default token TTL.
	if got := cfg.ReportTokenTTL(); got != 2*time.Minute {
		t.Errorf("ReportTokenTTL() = %v, want 2m", got)
	}
}

func TestConfig_TelemetryKafkaBrokersList(t *testing.T) {
	testCases := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{"a:9092, b:9092 ,", []string{"a:9092", "b:9092"}},
	}
	for _, tc := range testCases {
		cfg := &Config{TelemetryKafkaBrokers: tc.raw}
		if got := cfg.TelemetryKafkaBrokersList(); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("TelemetryKafkaBrokersList(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
