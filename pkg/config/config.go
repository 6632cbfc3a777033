package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Cache         CacheConfig
	Payments      PaymentsConfig
	Certificates  CertificatesConfig
	Notifications NotificationsConfig
	Gateway       GatewayConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig controls the advisory seat-summary cache.
type CacheConfig struct {
	Enabled  bool
	SeatsTTL time.Duration
}

// PaymentsConfig configures proof storage and validation.
type PaymentsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	MaxProofSizeBytes int64
	AllowedMIMEs      []string
	ImageMaxDimension int
}

// CertificatesConfig tunes certificate numbering, rendering and the expiry sweep.
type CertificatesConfig struct {
	NumberDigits  int
	MaxAttempts   int
	SweepInterval time.Duration
	VerifyBaseURL string
	IssuerName    string
}

// NotificationsConfig wires outbound email and the admin Telegram channel.
type NotificationsConfig struct {
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	AdminEmails   []string
	TelegramToken string
	TelegramChat  int64
	Workers       int
	Retries       int
	RetryDelay    time.Duration
}

// GatewayConfig toggles Midtrans Snap checkout.
type GatewayConfig struct {
	Enabled    bool
	ServerKey  string
	Production bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:  v.GetBool("ENABLE_SEAT_CACHE"),
		SeatsTTL: parseDuration(v.GetString("CACHE_SEATS_TTL"), 30*time.Second),
	}

	maxProof := v.GetInt64("PAYMENT_PROOF_MAX_SIZE")
	if maxProof <= 0 {
		maxProof = 5 * 1024 * 1024
	}
	cfg.Payments = PaymentsConfig{
		StorageDir:        v.GetString("PAYMENT_PROOF_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("PAYMENT_PROOF_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("PAYMENT_PROOF_SIGNED_URL_TTL"), 15*time.Minute),
		MaxProofSizeBytes: maxProof,
		AllowedMIMEs:      splitAndTrim(v.GetString("PAYMENT_PROOF_ALLOWED_MIME_TYPES")),
		ImageMaxDimension: v.GetInt("PAYMENT_PROOF_IMAGE_MAX_DIMENSION"),
	}

	cfg.Certificates = CertificatesConfig{
		NumberDigits:  v.GetInt("CERT_NUMBER_DIGITS"),
		MaxAttempts:   v.GetInt("CERT_MAX_ATTEMPTS"),
		SweepInterval: parseDuration(v.GetString("CERT_SWEEP_INTERVAL"), time.Hour),
		VerifyBaseURL: v.GetString("CERT_VERIFY_BASE_URL"),
		IssuerName:    v.GetString("CERT_ISSUER_NAME"),
	}

	cfg.Notifications = NotificationsConfig{
		SMTPHost:      v.GetString("SMTP_HOST"),
		SMTPPort:      v.GetInt("SMTP_PORT"),
		SMTPUsername:  v.GetString("SMTP_USERNAME"),
		SMTPPassword:  v.GetString("SMTP_PASSWORD"),
		SMTPFrom:      v.GetString("SMTP_FROM"),
		AdminEmails:   splitAndTrim(v.GetString("ADMIN_NOTIFICATION_EMAILS")),
		TelegramToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChat:  v.GetInt64("TELEGRAM_ADMIN_CHAT_ID"),
		Workers:       v.GetInt("NOTIFY_WORKERS"),
		Retries:       v.GetInt("NOTIFY_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Gateway = GatewayConfig{
		Enabled:    v.GetBool("ENABLE_MIDTRANS"),
		ServerKey:  v.GetString("MIDTRANS_SERVER_KEY"),
		Production: v.GetBool("MIDTRANS_PRODUCTION"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "training_enrollment")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SEAT_CACHE", false)
	v.SetDefault("CACHE_SEATS_TTL", "30s")


	v.SetDefault("PAYMENT_PROOF_STORAGE_DIR", "./payment-proofs")
	v.SetDefault("PAYMENT_PROOF_SIGNED_URL_SECRET", "dev_proof_secret")
	v.SetDefault("PAYMENT_PROOF_SIGNED_URL_TTL", "15m")
	v.SetDefault("PAYMENT_PROOF_MAX_SIZE", 5*1024*1024)
	v.SetDefault("PAYMENT_PROOF_ALLOWED_MIME_TYPES", "image/jpeg,image/png,application/pdf")
	v.SetDefault("PAYMENT_PROOF_IMAGE_MAX_DIMENSION", 1600)

	v.SetDefault("CERT_NUMBER_DIGITS", 10)
	v.SetDefault("CERT_MAX_ATTEMPTS", 5)
	v.SetDefault("CERT_SWEEP_INTERVAL", "1h")
	v.SetDefault("CERT_VERIFY_BASE_URL", "http://localhost:8080/api/v1/certificates/verify")
	v.SetDefault("CERT_ISSUER_NAME", "Training Center")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")
	v.SetDefault("ADMIN_NOTIFICATION_EMAILS", "")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_ADMIN_CHAT_ID", 0)
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")

	v.SetDefault("ENABLE_MIDTRANS", false)
	v.SetDefault("MIDTRANS_SERVER_KEY", "")
	v.SetDefault("MIDTRANS_PRODUCTION", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
