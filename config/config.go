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

type Config struct {
	ServerPort int
	// AppKey is the secret the token codec derives its keys from.
	AppKey    string
	BaseURL   string
	LangDir   string
	LogLevel  string
	LogFormat string
	// TrustProxy honours X-Forwarded-For and X-Real-IP. Enable it only
	// behind a proxy that overwrites those headers.
	TrustProxy bool
	Database   DatabaseConfig
	Auth       AuthConfig
	CSRF       CSRFConfig
	Redis      RedisConfig
	MQ         MQConfig
	Storage    StorageConfig
	Mail       MailConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret           string
	TokenTTL            time.Duration
	RequireVerified     bool
	VerificationHorizon time.Duration
	ResetHorizon        time.Duration
}

type CSRFConfig struct {
	TTL         time.Duration
	HeaderName  string
	ExemptPaths []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MQConfig struct {
	// Backend is one of "rabbitmq", "pubsub", "memory" or empty for none.
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	// Backend is one of "minio", "gcs" or empty for none.
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string
}

type MailConfig struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	From     string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "adminkit"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "adminkit_db"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	port := getEnvInt("SERVER_PORT", 8080)

	return Config{
		ServerPort: port,
		AppKey:     getEnv("APP_KEY", ""),
		BaseURL:    getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		LangDir:    getEnv("LANG_DIR", "resources/lang"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),
		TrustProxy: getEnvBool("TRUST_PROXY", false),
		Database:   dbConfig,
		Auth: AuthConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			TokenTTL:            getEnvDuration("AUTH_TOKEN_TTL", 72*time.Hour),
			RequireVerified:     getEnvBool("AUTH_REQUIRE_VERIFIED_EMAIL", true),
			VerificationHorizon: getEnvDuration("AUTH_VERIFICATION_TTL", 24*time.Hour),
			ResetHorizon:        getEnvDuration("AUTH_RESET_TTL", 24*time.Hour),
		},
		CSRF: CSRFConfig{
			TTL:         getEnvDuration("CSRF_TTL", time.Minute),
			HeaderName:  getEnv("CSRF_HEADER", "X-CSRF-Token"),
			ExemptPaths: getEnvList("CSRF_EXEMPT_PATHS", []string{"/csrf"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQ: MQConfig{
			Backend: strings.ToLower(getEnv("MQ_BACKEND", "")),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "")),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "adminkit"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				Bucket:          getEnv("GCS_BUCKET", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
		Mail: MailConfig{
			SMTPHost: getEnv("SMTP_HOST", ""),
			SMTPPort: getEnvInt("SMTP_PORT", 587),
			SMTPUser: getEnv("SMTP_USER", ""),
			SMTPPass: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "info@adminkit.local"),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if len(strings.TrimSpace(c.AppKey)) < 32 {
		errs = append(errs, errors.New("APP_KEY must be at least 32 characters"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.CSRF.TTL <= 0 {
		errs = append(errs, errors.New("CSRF_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
