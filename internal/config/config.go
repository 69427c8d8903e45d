package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	OAuth        OAuthConfig
	Ticketing    TicketingConfig
	LLM          LLMConfig
	Chat         ChatConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSAllowedOrigins    []string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// PingTimeoutSeconds bounds the start-up and readiness pings.
	PingTimeoutSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is "json" (default) or "console".
	Format  string
	Service string
	Env     string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	// TokenEncryptionKey seals provider tokens at rest.
	TokenEncryptionKey string
}

// OAuthConfig describes the identity provider used for the ticketing connection.
type OAuthConfig struct {
	ClientID            string
	ClientSecret        string
	AuthorizeURL        string
	TokenURL            string
	ResourcesURL        string
	Audience            string
	Scopes              []string
	RedirectURL         string
	HandshakeTTLMinutes int
	HTTPTimeoutSeconds  int
}

// TicketingConfig selects and configures the ticket provider.
type TicketingConfig struct {
	Provider       string
	APIBaseURL     string
	ProjectKey     string
	IssueType      string
	HelpdeskURL    string
	TimeoutSeconds int
}

// LLMConfig configures the text completion backend.
type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float64
	MaxTokens      int
	TimeoutSeconds int
}

// ChatConfig bounds the chat entry point.
type ChatConfig struct {
	TimeoutSeconds   int
	RateLimitPerSec  float64
	RateLimitBurst   int
	MaxMessageLength int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	temperature, err := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.7"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-assistant"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSAllowedOrigins:    parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:               getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:           os.Getenv("REDIS_PASSWORD"),
			DB:                 redisDB,
			PingTimeoutSeconds: getEnvAsInt("REDIS_PING_TIMEOUT_SECONDS", 2),
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: getEnv("APP_NAME", "helpdesk-assistant"),
			Env:     getEnv("APP_ENV", "development"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			TokenEncryptionKey:    getEnv("TOKEN_ENCRYPTION_KEY", "dev-token-key"),
		},
		OAuth: OAuthConfig{
			ClientID:            os.Getenv("OAUTH_CLIENT_ID"),
			ClientSecret:        os.Getenv("OAUTH_CLIENT_SECRET"),
			AuthorizeURL:        getEnv("OAUTH_AUTHORIZE_URL", "https://auth.atlassian.com/authorize"),
			TokenURL:            getEnv("OAUTH_TOKEN_URL", "https://auth.atlassian.com/oauth/token"),
			ResourcesURL:        getEnv("OAUTH_RESOURCES_URL", "https://api.atlassian.com/oauth/token/accessible-resources"),
			Audience:            getEnv("OAUTH_AUDIENCE", "api.atlassian.com"),
			Scopes:              strings.Fields(getEnv("OAUTH_SCOPES", "read:jira-work write:jira-work offline_access")),
			RedirectURL:         getEnv("OAUTH_REDIRECT_URL", "http://localhost:8080/oauth/callback"),
			HandshakeTTLMinutes: getEnvAsInt("OAUTH_HANDSHAKE_TTL_MINUTES", 15),
			HTTPTimeoutSeconds:  getEnvAsInt("OAUTH_HTTP_TIMEOUT_SECONDS", 15),
		},
		Ticketing: TicketingConfig{
			Provider:       strings.ToLower(getEnv("TICKETING_PROVIDER", "jira")),
			APIBaseURL:     getEnv("TICKETING_API_BASE_URL", "https://api.atlassian.com"),
			ProjectKey:     getEnv("JIRA_PROJECT_KEY", "SUP"),
			IssueType:      getEnv("JIRA_ISSUE_TYPE", "Task"),
			HelpdeskURL:    os.Getenv("HELPDESK_API_URL"),
			TimeoutSeconds: getEnvAsInt("TICKETING_TIMEOUT_SECONDS", 15),
		},
		LLM: LLMConfig{
			Provider:       strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			APIKey:         os.Getenv("LLM_API_KEY"),
			BaseURL:        os.Getenv("LLM_BASE_URL"),
			Temperature:    temperature,
			MaxTokens:      getEnvAsInt("LLM_MAX_TOKENS", 800),
			TimeoutSeconds: getEnvAsInt("LLM_TIMEOUT_SECONDS", 15),
		},
		Chat: ChatConfig{
			TimeoutSeconds:   getEnvAsInt("CHAT_TIMEOUT_SECONDS", 90),
			RateLimitPerSec:  getEnvAsFloat("CHAT_RATE_LIMIT_PER_SEC", 1),
			RateLimitBurst:   getEnvAsInt("CHAT_RATE_LIMIT_BURST", 5),
			MaxMessageLength: getEnvAsInt("CHAT_MAX_MESSAGE_LENGTH", 4000),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	switch cfg.Ticketing.Provider {
	case "jira", "helpdesk":
	default:
		return nil, fmt.Errorf("unsupported TICKETING_PROVIDER %q", cfg.Ticketing.Provider)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// HandshakeTTL returns the handshake validity window.
func (o OAuthConfig) HandshakeTTL() time.Duration {
	if o.HandshakeTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(o.HandshakeTTLMinutes) * time.Minute
}

func (o OAuthConfig) HTTPTimeout() time.Duration {
	return seconds(o.HTTPTimeoutSeconds)
}

func (r RedisConfig) PingTimeout() time.Duration {
	if r.PingTimeoutSeconds <= 0 {
		return 2 * time.Second
	}
	return seconds(r.PingTimeoutSeconds)
}

func (t TicketingConfig) Timeout() time.Duration {
	return seconds(t.TimeoutSeconds)
}

func (l LLMConfig) Timeout() time.Duration {
	return seconds(l.TimeoutSeconds)
}

func (c ChatConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
