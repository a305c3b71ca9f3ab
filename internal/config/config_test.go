package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T, env string) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "DATA_STORE", "DATABASE_URL", "JWT_SECRET", "SERVICE_ROLE_KEY",
		"AUTH_GOOGLE_CLIENT_ID", "AUTH_GOOGLE_CLIENT_SECRET", "AUTH_GOOGLE_ALLOWED_DOMAINS",
		"AUTH_GOOGLE_ALLOWED_EMAILS", "ALLOWED_ORIGINS", "REDIS_URL", "KAFKA_BROKERS",
		"SESSION_TTL", "PROFILE_POLL_ATTEMPTS", "PROFILE_POLL_INTERVAL", "AUTH_AUTO_CONFIRM",
		"HTTP_PORT", "SITE_URL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("APP_ENV", env)
	t.Setenv("PORT", "8080")
}

func setProductionSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("AUTH_GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("ALLOWED_ORIGINS", "https://hoodgram.example")
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	setBaseEnv(t, "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.UseInMemoryStore() {
		t.Fatalf("expected memory store by default, got %q", cfg.DataStore)
	}
	if cfg.JWTSecret != DevelopmentJWTSecret {
		t.Fatalf("expected development secret, got %q", cfg.JWTSecret)
	}
	if cfg.ProfilePollAttempts != 5 || cfg.ProfilePollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected poll settings %d/%s", cfg.ProfilePollAttempts, cfg.ProfilePollInterval)
	}
	if cfg.CallbackURL() != "http://localhost:8080/auth/callback" {
		t.Fatalf("unexpected callback URL %q", cfg.CallbackURL())
	}
	if cfg.OAuthEnabled() {
		t.Fatal("expected OAuth to be disabled without credentials")
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t, "development")
	t.Setenv("DATA_STORE", "postgres")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Fatalf("expected missing DATABASE_URL error, got %v", err)
	}
}

func TestLoadRejectsUnknownDataStore(t *testing.T) {
	setBaseEnv(t, "development")
	t.Setenv("DATA_STORE", "sqlite")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown data store")
	}
}

func TestLoadRequiresOAuthOutsideDevelopment(t *testing.T) {
	setBaseEnv(t, "production")
	setProductionSecrets(t)
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_GOOGLE_CLIENT_ID is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresJWTSecretOutsideDevelopment(t *testing.T) {
	setBaseEnv(t, "production")
	setProductionSecrets(t)
	t.Setenv("JWT_SECRET", DevelopmentJWTSecret)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadAcceptsProductionConfig(t *testing.T) {
	setBaseEnv(t, "production")
	setProductionSecrets(t)
	t.Setenv("AUTH_GOOGLE_ALLOWED_DOMAINS", "hoodgram.example, Example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.OAuthEnabled() {
		t.Fatal("expected OAuthEnabled() to return true")
	}
	if len(cfg.GoogleAllowedDomains) != 2 || cfg.GoogleAllowedDomains[1] != "Example.org" {
		t.Fatalf("unexpected allowed domains %v", cfg.GoogleAllowedDomains)
	}
}

func TestLoadRejectsWildcardOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t, "production")
	setProductionSecrets(t)
	t.Setenv("ALLOWED_ORIGINS", "https://hoodgram.example,*")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "cannot contain wildcard") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresAllowedOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t, "production")
	setProductionSecrets(t)
	t.Setenv("ALLOWED_ORIGINS", "   ")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "must define at least one origin") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadReadsSecretFiles(t *testing.T) {
	setBaseEnv(t, "development")
	path := filepath.Join(t.TempDir(), "jwt")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.JWTSecret != "from-file" {
		t.Fatalf("expected secret from file, got %q", cfg.JWTSecret)
	}
}

func TestLoadRejectsEmptySecretFile(t *testing.T) {
	setBaseEnv(t, "development")
	path := filepath.Join(t.TempDir(), "jwt")
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("JWT_SECRET_FILE", path)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty secret error, got %v", err)
	}
}

func TestLoadLayersFileUnderEnvironment(t *testing.T) {
	setBaseEnv(t, "development")
	path := filepath.Join(t.TempDir(), "hoodgram.yaml")
	file := `
http:
  port: 9000
  site_url: https://hood.example
storage:
  redis_url: redis://cache:6379/0
  profile_cache_ttl: 30s
kafka:
  brokers: [kafka-1:9092, kafka-2:9092]
profiles:
  poll_attempts: 8
  poll_interval: 250ms
auth:
  auto_confirm: true
`
	if err := os.WriteFile(path, []byte(file), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")
	t.Setenv("PROFILE_POLL_ATTEMPTS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.HTTPPort != 9000 || cfg.SiteURL != "https://hood.example" {
		t.Fatalf("expected file values, got port=%d site=%q", cfg.HTTPPort, cfg.SiteURL)
	}
	if cfg.ProfilePollAttempts != 3 {
		t.Fatalf("expected env to override file, got %d attempts", cfg.ProfilePollAttempts)
	}
	if cfg.ProfilePollInterval != 250*time.Millisecond || cfg.ProfileCacheTTL != 30*time.Second {
		t.Fatalf("unexpected durations %s/%s", cfg.ProfilePollInterval, cfg.ProfileCacheTTL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.RedisURL != "redis://cache:6379/0" || !cfg.AutoConfirm {
		t.Fatalf("unexpected layered config %+v", cfg)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	setBaseEnv(t, "development")
	t.Setenv("SESSION_TTL", "soon")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SESSION_TTL") {
		t.Fatalf("expected SESSION_TTL error, got %v", err)
	}
}
