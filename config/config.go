package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBDriver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	SQLitePath       string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	RetryBase      time.Duration
	RetryCap       time.Duration
	FetchTimeout   time.Duration
	ItemTimeout    time.Duration

	BrowserAttempts int
	BrowserSettle   time.Duration
	BrowserWait     time.Duration
	PageLoadTimeout time.Duration
	ChromeBin       string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyAPIURL       string
	SpotifyTokenURL     string

	CollectionsFile string
	CSVOutputDir    string
	RunHour         int
	RunMinute       int

	SMTPServer       string
	SMTPPort         int
	SenderEmail      string
	SenderPassword   string
	SummaryRecipient string

	LogDebug bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "postgres")),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "tracker"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "tracker123"),
		PostgresDB:       getEnv("POSTGRES_DB", "stream_tracker"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", "./stream_tracker.db"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 1),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBase:      getEnvMillis("RETRY_BASE_MS", 2000),
		RetryCap:       getEnvMillis("RETRY_CAP_MS", 10000),
		FetchTimeout:   getEnvMillis("FETCH_TIMEOUT_MS", 15000),
		ItemTimeout:    time.Duration(getEnvInt("ITEM_TIMEOUT_S", 300)) * time.Second,

		BrowserAttempts: getEnvInt("BROWSER_ATTEMPTS", 2),
		BrowserSettle:   getEnvMillis("BROWSER_SETTLE_MS", 2500),
		BrowserWait:     getEnvMillis("BROWSER_WAIT_MS", 5000),
		PageLoadTimeout: time.Duration(getEnvInt("PAGE_LOAD_TIMEOUT_S", 60)) * time.Second,
		ChromeBin:       getEnv("CHROME_BIN", ""),

		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		SpotifyAPIURL:       getEnv("SPOTIFY_API_URL", "https://api.spotify.com/v1"),
		SpotifyTokenURL:     getEnv("SPOTIFY_TOKEN_URL", "https://accounts.spotify.com/api/token"),

		CollectionsFile: getEnv("COLLECTIONS_FILE", "./collections.yaml"),
		CSVOutputDir:    getEnv("CSV_OUTPUT_DIR", "./output"),
		RunHour:         getEnvInt("RUN_HOUR", 3),
		RunMinute:       getEnvInt("RUN_MINUTE", 0),

		SMTPServer:       getEnv("SMTP_SERVER", "send.one.com"),
		SMTPPort:         getEnvInt("SMTP_PORT", 587),
		SenderEmail:      getEnv("SENDER_EMAIL", ""),
		SenderPassword:   getEnv("SENDER_PASSWORD", ""),
		SummaryRecipient: getEnv("SUMMARY_RECIPIENT", ""),

		LogDebug: getEnvBool("LOG_DEBUG", false),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// EmailEnabled reports whether SMTP credentials are present.
func (c *Config) EmailEnabled() bool {
	return c.SenderEmail != "" && c.SenderPassword != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
