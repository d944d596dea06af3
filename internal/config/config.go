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
	App           AppConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Logger        LoggerConfig
	Tracing       TracingConfig
	Auth          AuthConfig
	Tickets       TicketConfig
	IssueTracker  IssueTrackerConfig
	Notification  NotificationConfig
	Frontend      FrontendConfig
	Orchestration OrchestrationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Endpoint string
	Insecure bool
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	Enabled         bool
	JWTSecret       string
	TokenTTLMinutes int
}

// TicketConfig holds ticket defaults.
type TicketConfig struct {
	DefaultPriority string
}

// IssueTrackerConfig configures the external issue tracker integration.
type IssueTrackerConfig struct {
	Enabled         bool
	BaseURL         string
	Username        string
	APIToken        string
	ProjectKey      string
	IssueType       string
	DefaultPriority string
	TimeoutSeconds  int
	MaxAttempts     int
	RetryBackoffMS  int
}

// NotificationConfig configures the outbound chat webhook.
type NotificationConfig struct {
	Enabled        bool
	WebhookURL     string
	DefaultChannel string
	TimeoutSeconds int
}

// FrontendConfig is used to build human-facing links.
type FrontendConfig struct {
	BaseURL string
}

// OrchestrationConfig controls the run-once guard.
type OrchestrationConfig struct {
	GuardTTLMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	issuePriority := getEnv("ISSUE_TRACKER_DEFAULT_PRIORITY", "Medium")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-orchestrator"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Tracing: TracingConfig{
			Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
		Auth: AuthConfig{
			Enabled:         getEnvAsBool("AUTH_ENABLED", false),
			JWTSecret:       getEnv("AUTH_JWT_SECRET", ""),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60),
		},
		Tickets: TicketConfig{
			DefaultPriority: getEnv("TICKET_DEFAULT_PRIORITY", issuePriority),
		},
		IssueTracker: IssueTrackerConfig{
			Enabled:         getEnvAsBool("ISSUE_TRACKER_ENABLED", false),
			BaseURL:         strings.TrimRight(os.Getenv("ISSUE_TRACKER_BASE_URL"), "/"),
			Username:        os.Getenv("ISSUE_TRACKER_USERNAME"),
			APIToken:        os.Getenv("ISSUE_TRACKER_API_TOKEN"),
			ProjectKey:      os.Getenv("ISSUE_TRACKER_PROJECT_KEY"),
			IssueType:       getEnv("ISSUE_TRACKER_ISSUE_TYPE", "Task"),
			DefaultPriority: issuePriority,
			TimeoutSeconds:  getEnvAsInt("ISSUE_TRACKER_TIMEOUT_SECONDS", 5),
			MaxAttempts:     getEnvAsInt("ISSUE_TRACKER_MAX_ATTEMPTS", 3),
			RetryBackoffMS:  getEnvAsInt("ISSUE_TRACKER_RETRY_BACKOFF_MS", 500),
		},
		Notification: NotificationConfig{
			Enabled:        getEnvAsBool("NOTIFICATION_ENABLED", false),
			WebhookURL:     os.Getenv("NOTIFICATION_WEBHOOK_URL"),
			DefaultChannel: os.Getenv("NOTIFICATION_DEFAULT_CHANNEL"),
			TimeoutSeconds: getEnvAsInt("NOTIFICATION_TIMEOUT_SECONDS", 5),
		},
		Frontend: FrontendConfig{
			BaseURL: strings.TrimRight(os.Getenv("FRONTEND_BASE_URL"), "/"),
		},
		Orchestration: OrchestrationConfig{
			GuardTTLMinutes: getEnvAsInt("ORCHESTRATION_GUARD_TTL_MINUTES", 24*60),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects enabled integrations that are missing required settings.
func (c *Config) Validate() error {
	if c.IssueTracker.Enabled {
		missing := []string{}
		if c.IssueTracker.BaseURL == "" {
			missing = append(missing, "ISSUE_TRACKER_BASE_URL")
		}
		if c.IssueTracker.ProjectKey == "" {
			missing = append(missing, "ISSUE_TRACKER_PROJECT_KEY")
		}
		if c.IssueTracker.Username == "" || c.IssueTracker.APIToken == "" {
			missing = append(missing, "ISSUE_TRACKER_USERNAME/ISSUE_TRACKER_API_TOKEN")
		}
		if len(missing) > 0 {
			return fmt.Errorf("issue tracker enabled but missing %s", strings.Join(missing, ", "))
		}
	}
	if c.Notification.Enabled && c.Notification.WebhookURL == "" {
		return fmt.Errorf("notification enabled but missing NOTIFICATION_WEBHOOK_URL")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but missing AUTH_JWT_SECRET")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout bounds a single outbound call.
func (c IssueTrackerConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 5)
}

// RetryBackoff is the fixed wait between attempts.
func (c IssueTrackerConfig) RetryBackoff() time.Duration {
	if c.RetryBackoffMS < 0 {
		return 0
	}
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// Timeout bounds a single webhook delivery.
func (c NotificationConfig) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 5)
}

// GuardTTL is how long an orchestration claim is held.
func (c OrchestrationConfig) GuardTTL() time.Duration {
	if c.GuardTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.GuardTTLMinutes) * time.Minute
}

func secondsOr(val, fallback int) time.Duration {
	if val <= 0 {
		val = fallback
	}
	return time.Duration(val) * time.Second
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
