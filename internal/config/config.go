package config

import (
	"errors"
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
	Registration RegistrationConfig
	Notification NotificationConfig
	Storage      StorageConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	BodyLimitBytes        int
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
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// Credential modes for accounts created by a registration.
const (
	CredentialModePattern = "pattern"
	CredentialModeRandom  = "random"
)

// RegistrationConfig controls identifier issuance and initial credentials.
type RegistrationConfig struct {
	IDPrefix              string
	IDWidth               int
	MaxAllocationAttempts int
	MaxSubmitAttempts     int
	CredentialMode        string
	CredentialPrefix      string
	CredentialSuffix      string
}

// SMTPConfig describes one outbound mail provider.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NotificationConfig holds queue, worker and provider settings.
type NotificationConfig struct {
	SenderName      string
	DefaultProvider string
	Providers       map[string]SMTPConfig
	QueueBackend    string
	QueueKey        string
	Workers         int
	RatePerSecond   float64
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	// PayloadKey seals credentials inside queued notifications.
	PayloadKey string
}

// StorageConfig selects the artifact backend.
type StorageConfig struct {
	Backend         string
	LocalDir        string
	GCSBucket       string
	GCSPrefix       string
	CredentialsFile string
	MaxUploadBytes  int64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "kmun-registration"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			BodyLimitBytes:        getEnvAsInt("HTTP_BODY_LIMIT_BYTES", 12*1024*1024),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Registration: RegistrationConfig{
			IDPrefix:              getEnv("REGISTRATION_ID_PREFIX", "KMUN25"),
			IDWidth:               getEnvAsInt("REGISTRATION_ID_WIDTH", 3),
			MaxAllocationAttempts: getEnvAsInt("REGISTRATION_MAX_ALLOCATION_ATTEMPTS", 5),
			MaxSubmitAttempts:     getEnvAsInt("REGISTRATION_MAX_SUBMIT_ATTEMPTS", 5),
			CredentialMode:        strings.ToLower(getEnv("REGISTRATION_CREDENTIAL_MODE", CredentialModePattern)),
			CredentialPrefix:      getEnv("REGISTRATION_CREDENTIAL_PREFIX", "Iam"),
			CredentialSuffix:      getEnv("REGISTRATION_CREDENTIAL_SUFFIX", "!@#"),
		},
		Notification: NotificationConfig{
			SenderName:      getEnv("NOTIFY_SENDER_NAME", "Kumaraguru MUN 2025"),
			DefaultProvider: strings.ToLower(getEnv("NOTIFY_DEFAULT_PROVIDER", "outlook")),
			Providers: map[string]SMTPConfig{
				"gmail":   loadSMTP("GMAIL", "smtp.gmail.com"),
				"outlook": loadSMTP("OUTLOOK", "smtp-mail.outlook.com"),
			},
			QueueBackend:   strings.ToLower(getEnv("NOTIFY_QUEUE_BACKEND", "redis")),
			QueueKey:       getEnv("NOTIFY_QUEUE_KEY", "kmun:notifications"),
			Workers:        getEnvAsInt("NOTIFY_WORKERS", 2),
			RatePerSecond:  getEnvAsFloat("NOTIFY_RATE_PER_SECOND", 5),
			MaxAttempts:    getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 8),
			RetryBaseDelay: time.Duration(getEnvAsInt("NOTIFY_RETRY_BASE_SECONDS", 30)) * time.Second,
			RetryMaxDelay:  time.Duration(getEnvAsInt("NOTIFY_RETRY_MAX_SECONDS", 1800)) * time.Second,
			PayloadKey:     os.Getenv("NOTIFY_PAYLOAD_KEY"),
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(getEnv("ARTIFACT_BACKEND", "local")),
			LocalDir:        getEnv("ARTIFACT_LOCAL_DIR", "uploads"),
			GCSBucket:       os.Getenv("ARTIFACT_GCS_BUCKET"),
			GCSPrefix:       getEnv("ARTIFACT_GCS_PREFIX", "registrations"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			MaxUploadBytes:  int64(getEnvAsInt("ARTIFACT_MAX_UPLOAD_BYTES", 5*1024*1024)),
		},
	}

	if cfg.Notification.PayloadKey == "" {
		cfg.Notification.PayloadKey = cfg.Auth.JWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Registration.IDPrefix) == "" {
		errs = append(errs, errors.New("REGISTRATION_ID_PREFIX must not be empty"))
	}
	if c.Registration.IDWidth < 1 {
		errs = append(errs, errors.New("REGISTRATION_ID_WIDTH must be at least 1"))
	}
	switch c.Registration.CredentialMode {
	case CredentialModePattern, CredentialModeRandom:
	default:
		errs = append(errs, fmt.Errorf("unknown REGISTRATION_CREDENTIAL_MODE %q", c.Registration.CredentialMode))
	}
	switch c.Storage.Backend {
	case "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("ARTIFACT_GCS_BUCKET is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ARTIFACT_BACKEND %q", c.Storage.Backend))
	}
	switch c.Notification.QueueBackend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_QUEUE_BACKEND %q", c.Notification.QueueBackend))
	}
	if c.Notification.RetryBaseDelay < 0 || c.Notification.RetryMaxDelay < c.Notification.RetryBaseDelay {
		errs = append(errs, errors.New("NOTIFY_RETRY_MAX_SECONDS must not be below NOTIFY_RETRY_BASE_SECONDS"))
	}
	if _, ok := c.Notification.Providers[c.Notification.DefaultProvider]; !ok {
		errs = append(errs, fmt.Errorf("unknown NOTIFY_DEFAULT_PROVIDER %q", c.Notification.DefaultProvider))
	}
	return errors.Join(errs...)
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

func loadSMTP(prefix, defaultHost string) SMTPConfig {
	user := os.Getenv(prefix + "_SMTP_USER")
	return SMTPConfig{
		Host:     getEnv(prefix+"_SMTP_HOST", defaultHost),
		Port:     getEnvAsInt(prefix+"_SMTP_PORT", 587),
		Username: user,
		Password: os.Getenv(prefix + "_SMTP_PASS"),
		From:     getEnv(prefix+"_SMTP_FROM", user),
	}
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
