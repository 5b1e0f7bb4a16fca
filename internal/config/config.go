package config

import (
	"os"
	"strconv"
	"time"
)

const (
	StoreBackendPostgres  = "postgres"
	StoreBackendFirestore = "firestore"

	FileBackendMinIO = "minio"
	FileBackendGCS   = "gcs"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// FirestoreConfig holds settings for the Firestore document store.
type FirestoreConfig struct {
	ProjectID          string
	AccountsCollection string
	OrdersCollection   string
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// GCSConfig holds settings for the Google Cloud Storage file backend.
type GCSConfig struct {
	Bucket string
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level    string
	Format   string
	Timezone string
}

// AuthConfig holds identity token verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// OrdersConfig holds the business constants of the order lifecycle.
type OrdersConfig struct {
	// AdvanceThreshold is the age after which a pending order moves to in_progress.
	AdvanceThreshold time.Duration
	// FileOpTimeout bounds every single upload or delete against the file backend.
	FileOpTimeout      time.Duration
	CleanupConcurrency int
	DefaultQuota       int
	ContainerPrefix    string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Env          string
	Port         string
	StoreBackend string
	FileBackend  string
	Log          LogConfig
	Database     DatabaseConfig
	Firestore    FirestoreConfig
	MinIO        MinIOConfig
	GCS          GCSConfig
	Auth         AuthConfig
	Orders       OrdersConfig
	// PushgatewayURL receives metrics from short-lived jobs. Empty disables pushing.
	PushgatewayURL string
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	return &AppConfig{
		Env:          getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		StoreBackend: getEnv("STORE_BACKEND", StoreBackendPostgres),
		FileBackend:  getEnv("FILE_BACKEND", FileBackendMinIO),
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", "json"),
			Timezone: getEnv("LOG_TIMEZONE", "UTC"),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Firestore: FirestoreConfig{
			ProjectID:          getEnv("FIRESTORE_PROJECT_ID", getEnv("GOOGLE_CLOUD_PROJECT", "")),
			AccountsCollection: getEnv("FIRESTORE_ACCOUNTS_COLLECTION", "users"),
			OrdersCollection:   getEnv("FIRESTORE_ORDERS_COLLECTION", "orders"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket: getEnv("GCS_BUCKET", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "assignly"),
			TokenTTL:  getEnvDuration("JWT_TTL", 72*time.Hour),
		},
		Orders: OrdersConfig{
			AdvanceThreshold:   getEnvDuration("ADVANCE_THRESHOLD", 150*time.Minute),
			FileOpTimeout:      getEnvDuration("FILE_OP_TIMEOUT", 10*time.Second),
			CleanupConcurrency: getEnvInt("CLEANUP_CONCURRENCY", 5),
			DefaultQuota:       getEnvInt("DEFAULT_PAGE_QUOTA", 40),
			ContainerPrefix:    getEnv("CONTAINER_PREFIX", "assignly/orders"),
		},
		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("2h30m") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
