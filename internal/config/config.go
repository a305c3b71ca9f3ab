package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DevelopmentJWTSecret signs session tokens when JWT_SECRET is unset. It is
// rejected outside development.
const DevelopmentJWTSecret = "hoodgram-development-secret"

// Config aggregates runtime configuration for the Hoodgram services.
type Config struct {
	Environment    string
	HTTPPort       int
	DatabaseURL    string
	DataStore      string
	LogLevel       string
	AllowedOrigins []string
	SiteURL        string

	JWTSecret      string
	ServiceRoleKey string
	SessionTTL     time.Duration
	AutoConfirm    bool

	GoogleClientID       string
	GoogleClientSecret   string
	GoogleAllowedDomains []string
	GoogleAllowedEmails  []string

	RedisURL        string
	ProfileCacheTTL time.Duration
	KafkaBrokers    []string
	KafkaTopic      string

	AuthRateLimit       int
	ProfilePollAttempts int
	ProfilePollInterval time.Duration

	SessionFile string
}

// fileConfig mirrors the optional YAML file named by CONFIG_FILE.
type fileConfig struct {
	Environment string `yaml:"environment"`
	HTTP        struct {
		Port           int      `yaml:"port"`
		SiteURL        string   `yaml:"site_url"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		AuthRateLimit  int      `yaml:"auth_rate_limit"`
	} `yaml:"http"`
	Storage struct {
		DataStore   string `yaml:"data_store"`
		DatabaseURL string `yaml:"database_url"`
		RedisURL    string `yaml:"redis_url"`
		CacheTTL    string `yaml:"profile_cache_ttl"`
	} `yaml:"storage"`
	Auth struct {
		SessionTTL  string `yaml:"session_ttl"`
		AutoConfirm *bool  `yaml:"auto_confirm"`
		Google      struct {
			ClientID       string   `yaml:"client_id"`
			AllowedDomains []string `yaml:"allowed_domains"`
			AllowedEmails  []string `yaml:"allowed_emails"`
		} `yaml:"google"`
	} `yaml:"auth"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Profiles struct {
		PollAttempts int    `yaml:"poll_attempts"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"profiles"`
	LogLevel string `yaml:"log_level"`
}

// Load resolves configuration in priority order: defaults, then the file
// named by CONFIG_FILE, then environment variables.
func Load() (Config, error) {
	cfg := Config{
		Environment:         "development",
		HTTPPort:            8080,
		DataStore:           "memory",
		LogLevel:            "info",
		AllowedOrigins:      []string{"http://localhost:3000", "http://localhost:8080"},
		SiteURL:             "http://localhost:8080",
		SessionTTL:          12 * time.Hour,
		ProfileCacheTTL:     time.Minute,
		KafkaTopic:          "hoodgram.auth.sessions",
		AuthRateLimit:       30,
		ProfilePollAttempts: 5,
		ProfilePollInterval: 500 * time.Millisecond,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/hoodgram_database_url")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := getEnvOrFile("JWT_SECRET", "/run/secrets/hoodgram_jwt_secret")
	if err != nil {
		return Config{}, err
	}
	serviceRoleKey, err := getEnvOrFile("SERVICE_ROLE_KEY", "/run/secrets/hoodgram_service_role_key")
	if err != nil {
		return Config{}, err
	}
	googleSecret, err := getEnvOrFile("AUTH_GOOGLE_CLIENT_SECRET", "")
	if err != nil {
		return Config{}, err
	}

	cfg.Environment = strings.ToLower(getEnv("APP_ENV", cfg.Environment))
	cfg.DataStore = strings.ToLower(getEnv("DATA_STORE", cfg.DataStore))
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.SiteURL = strings.TrimRight(getEnv("SITE_URL", cfg.SiteURL), "/")
	cfg.AllowedOrigins = getEnvCSV("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	cfg.JWTSecret = strings.TrimSpace(jwtSecret)
	cfg.ServiceRoleKey = strings.TrimSpace(serviceRoleKey)
	cfg.GoogleClientID = getEnv("AUTH_GOOGLE_CLIENT_ID", cfg.GoogleClientID)
	cfg.GoogleClientSecret = strings.TrimSpace(googleSecret)
	cfg.GoogleAllowedDomains = getEnvCSV("AUTH_GOOGLE_ALLOWED_DOMAINS", cfg.GoogleAllowedDomains)
	cfg.GoogleAllowedEmails = getEnvCSV("AUTH_GOOGLE_ALLOWED_EMAILS", cfg.GoogleAllowedEmails)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = getEnvCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.SessionFile = getEnv("SESSION_FILE", cfg.SessionFile)

	portValue := getEnv("PORT", getEnv("HTTP_PORT", strconv.Itoa(cfg.HTTPPort)))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	if cfg.AuthRateLimit, err = getEnvInt("AUTH_RATE_LIMIT", cfg.AuthRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.ProfilePollAttempts, err = getEnvInt("PROFILE_POLL_ATTEMPTS", cfg.ProfilePollAttempts); err != nil {
		return Config{}, err
	}
	if cfg.ProfilePollInterval, err = getEnvDuration("PROFILE_POLL_INTERVAL", cfg.ProfilePollInterval); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = getEnvDuration("SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.ProfileCacheTTL, err = getEnvDuration("PROFILE_CACHE_TTL", cfg.ProfileCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.AutoConfirm, err = getEnvBool("AUTH_AUTO_CONFIRM", cfg.AutoConfirm); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = DevelopmentJWTSecret
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DataStore != "memory" && c.DataStore != "postgres" {
		return fmt.Errorf("DATA_STORE must be memory or postgres, got %q", c.DataStore)
	}
	if c.DataStore == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
	}
	if c.ProfilePollAttempts < 1 {
		return fmt.Errorf("PROFILE_POLL_ATTEMPTS must be at least 1")
	}
	if c.AuthRateLimit < 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT must not be negative")
	}

	if c.IsDevelopment() {
		return nil
	}

	if c.JWTSecret == "" || c.JWTSecret == DevelopmentJWTSecret {
		return fmt.Errorf("JWT_SECRET is required when APP_ENV=%s", c.Environment)
	}
	if c.GoogleClientID == "" {
		return fmt.Errorf("AUTH_GOOGLE_CLIENT_ID is required when APP_ENV=%s", c.Environment)
	}
	if c.GoogleClientSecret == "" {
		return fmt.Errorf("AUTH_GOOGLE_CLIENT_SECRET is required when APP_ENV=%s", c.Environment)
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must define at least one origin when APP_ENV=%s", c.Environment)
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("ALLOWED_ORIGINS cannot contain wildcard when APP_ENV=%s", c.Environment)
		}
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if the in-memory repositories should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// IsDevelopment reports whether the app runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// OAuthEnabled reports whether the Google sign-in leg is configured.
func (c Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// CallbackURL is where the app receives OAuth and confirmation codes.
func (c Config) CallbackURL() string {
	return c.SiteURL + "/auth/callback"
}

// GoogleRedirectURL is where Google returns to the provider leg.
func (c Config) GoogleRedirectURL() string {
	return c.SiteURL + "/auth/v1/callback"
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if f.Environment != "" {
		cfg.Environment = f.Environment
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.HTTP.Port > 0 {
		cfg.HTTPPort = f.HTTP.Port
	}
	if f.HTTP.SiteURL != "" {
		cfg.SiteURL = f.HTTP.SiteURL
	}
	if len(f.HTTP.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = f.HTTP.AllowedOrigins
	}
	if f.HTTP.AuthRateLimit > 0 {
		cfg.AuthRateLimit = f.HTTP.AuthRateLimit
	}
	if f.Storage.DataStore != "" {
		cfg.DataStore = f.Storage.DataStore
	}
	if f.Storage.DatabaseURL != "" {
		cfg.DatabaseURL = f.Storage.DatabaseURL
	}
	if f.Storage.RedisURL != "" {
		cfg.RedisURL = f.Storage.RedisURL
	}
	if f.Auth.AutoConfirm != nil {
		cfg.AutoConfirm = *f.Auth.AutoConfirm
	}
	if f.Auth.Google.ClientID != "" {
		cfg.GoogleClientID = f.Auth.Google.ClientID
	}
	if len(f.Auth.Google.AllowedDomains) > 0 {
		cfg.GoogleAllowedDomains = f.Auth.Google.AllowedDomains
	}
	if len(f.Auth.Google.AllowedEmails) > 0 {
		cfg.GoogleAllowedEmails = f.Auth.Google.AllowedEmails
	}
	if len(f.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = f.Kafka.Brokers
	}
	if f.Kafka.Topic != "" {
		cfg.KafkaTopic = f.Kafka.Topic
	}
	if f.Profiles.PollAttempts > 0 {
		cfg.ProfilePollAttempts = f.Profiles.PollAttempts
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"storage.profile_cache_ttl", f.Storage.CacheTTL, &cfg.ProfileCacheTTL},
		{"auth.session_ttl", f.Auth.SessionTTL, &cfg.SessionTTL},
		{"profiles.poll_interval", f.Profiles.PollInterval, &cfg.ProfilePollInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvCSV(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return parseCSV(value)
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
