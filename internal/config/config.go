package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	PublicBaseURL      string

	LogLevel  string
	LogFormat string

	MongoURI    string
	MongoDBName string

	RedisAddr       string
	RedisPassword   string
	ProductCacheTTL time.Duration
	CartIdleTTL     time.Duration

	JWTSecret       string
	SessionTTL      time.Duration
	FederatedIssuer string
	FederatedSecret string

	BlobDriver string // gridfs or fs
	UploadsDir string

	PaymentMode       string // simulated or redirect
	PaymentGatewayURL string
	Payments          *Credentials

	KafkaBrokers []string
	// InstanceID names this process's kafka consumer group. It must survive
	// restarts so the group's committed offsets are reused.
	InstanceID string
}

// Credentials for the payment session ledger. Nil when PAYMENTS_DB_HOST is unset.
type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		MaxRequestBodySize: 10 << 20, // 10MB, product images go through multipart
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:        getEnv("MONGO_DB_NAME", "storefront"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		FederatedIssuer:    getEnv("FEDERATED_ISSUER", "https://accounts.google.com"),
		FederatedSecret:    getEnv("FEDERATED_SECRET", ""),
		BlobDriver:         getEnv("BLOB_DRIVER", "gridfs"),
		UploadsDir:         getEnv("UPLOADS_DIR", "./uploads"),
		PaymentMode:        getEnv("PAYMENT_MODE", "simulated"),
		PaymentGatewayURL:  getEnv("PAYMENT_GATEWAY_URL", ""),
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProductCacheTTL, err = getDuration("PRODUCT_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CartIdleTTL, err = getDuration("CART_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.InstanceID = getEnv("INSTANCE_ID", defaultInstanceID())

	if host := getEnv("PAYMENTS_DB_HOST", ""); host != "" {
		port, err := strconv.Atoi(getEnv("PAYMENTS_DB_PORT", "5432"))
		if err != nil {
			return nil, fmt.Errorf("invalid PAYMENTS_DB_PORT: %w", err)
		}
		cfg.Payments = &Credentials{
			Host:              host,
			Port:              port,
			User:              getEnv("PAYMENTS_DB_USER", "postgres"),
			Password:          getEnv("PAYMENTS_DB_PASSWORD", "postgres"),
			DBName:            getEnv("PAYMENTS_DB_NAME", "payments"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/payment/migrations"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.BlobDriver {
	case "gridfs", "fs":
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}
	switch c.PaymentMode {
	case "simulated":
	case "redirect":
		if c.PaymentGatewayURL == "" {
			return fmt.Errorf("PAYMENT_GATEWAY_URL is required when PAYMENT_MODE=redirect")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_MODE %q", c.PaymentMode)
	}
	return nil
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "storefront"
	}
	return host
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
