package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// Config for the pneumodetect service.
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}

	// Model Gateway (external classifier service)
	Gateway struct {
		BaseURL string
		Timeout time.Duration
		Retries int
	}

	// Object storage for uploaded images and saliency maps.
	// When S3Bucket is set the S3 store is used, otherwise local files.
	Storage struct {
		LocalRoot string
		S3Bucket  string
		S3Region  string
	}

	// Session cookies. SameSite is "lax" for same-origin local development
	// or "none" for cross-origin deployments (which forces Secure).
	Session struct {
		TTL          time.Duration
		CookieSecure bool
		SameSite     string
	}

	// Login throttling: lock an account after MaxAttempts failures within
	// Window, for the remainder of the window.
	Login struct {
		MaxAttempts int
		Window      time.Duration
	}

	// Upload limits.
	Upload struct {
		MaxBytes    int64
		AllowedExts []string
	}

	// Review notes bounds (runes).
	Review struct {
		NotesMin int
		NotesMax int
	}

	// Pagination defaults (admin list views use PerPageAdmin).
	Page struct {
		PerPage      int
		PerPageAdmin int
		PerPageMax   int
	}
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "pneumodetect")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Gateway.BaseURL = getEnv("MODEL_GATEWAY_URL", "http://localhost:9000")
	cfg.Gateway.Timeout = parseDuration(getEnv("MODEL_GATEWAY_TIMEOUT", "30s"), 30*time.Second)
	cfg.Gateway.Retries = parseInt(getEnv("MODEL_GATEWAY_RETRIES", "2"), 2)

	cfg.Storage.LocalRoot = getEnv("UPLOAD_DIR", "./uploads")
	cfg.Storage.S3Bucket = getEnv("S3_BUCKET", "")
	cfg.Storage.S3Region = getEnv("S3_REGION", "us-east-1")

	cfg.Session.TTL = parseDuration(getEnv("SESSION_TTL", "24h"), 24*time.Hour)
	cfg.Session.SameSite = getEnv("SESSION_SAMESITE", "lax")
	// Browsers require Secure when SameSite=None.
	cfg.Session.CookieSecure = getEnv("SESSION_COOKIE_SECURE", "false") == "true" ||
		cfg.Session.SameSite == "none"

	cfg.Login.MaxAttempts = parseInt(getEnv("LOGIN_MAX_ATTEMPTS", "5"), 5)
	cfg.Login.Window = parseDuration(getEnv("LOGIN_WINDOW", "5m"), 5*time.Minute)

	cfg.Upload.MaxBytes = int64(parseInt(getEnv("UPLOAD_MAX_MB", "50"), 50)) * 1024 * 1024
	cfg.Upload.AllowedExts = []string{"jpg", "jpeg", "png", "gif", "dcm"}

	cfg.Review.NotesMin = 5
	cfg.Review.NotesMax = 5000

	cfg.Page.PerPage = 9
	cfg.Page.PerPageAdmin = 100
	cfg.Page.PerPageMax = 100

	return cfg
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
