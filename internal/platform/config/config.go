package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Settings is the server configuration read from the environment.
type Settings struct {
	Port               string        // PORT
	LogLevel           string        // LOG_LEVEL
	LogFormat          string        // LOG_FORMAT
	PlaylistWindowSize int           // PLAYLIST_WINDOW_SIZE
	PipelineTimeout    time.Duration // PIPELINE_HTTP_TIMEOUT
	RateLimitPerMinute int           // RATE_LIMIT_PER_MINUTE, 0 disables
	ShutdownTimeout    time.Duration // SHUTDOWN_TIMEOUT
	MetricsEnabled     bool          // METRICS_ENABLED
}

// FromEnv reads Settings, applying defaults for unset or invalid values.
func FromEnv() Settings {
	return Settings{
		Port:               GetEnv("PORT", "8080"),
		LogLevel:           GetEnv("LOG_LEVEL", "info"),
		LogFormat:          GetEnv("LOG_FORMAT", "json"),
		PlaylistWindowSize: GetEnvInt("PLAYLIST_WINDOW_SIZE", 6),
		PipelineTimeout:    GetEnvDuration("PIPELINE_HTTP_TIMEOUT", 10*time.Second),
		RateLimitPerMinute: GetEnvInt("RATE_LIMIT_PER_MINUTE", 600),
		ShutdownTimeout:    GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MetricsEnabled:     GetEnvBool("METRICS_ENABLED", true),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool is GetEnvInt for strconv.ParseBool values.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration returns a time.ParseDuration value ("15s", "2m"). A bare
// integer is read as seconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
