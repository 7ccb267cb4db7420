package config

import (
	"os"
	"time"

	"studygroup-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Local-development fallback when BACKEND_BASE_URL is not set.
const DefaultBackendBaseURL = "http://localhost:3001"

type Config struct {
	BackendBaseURL      string
	RiotAPIKey          string
	DBPath              string
	ServerPort          string
	LogLevel            string
	LiveRefreshInterval time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		BackendBaseURL:      getEnv("BACKEND_BASE_URL", DefaultBackendBaseURL),
		RiotAPIKey:          getEnv("RIOT_API_KEY", ""),
		DBPath:              getEnv("DB_PATH", "studygroups.db"),
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LiveRefreshInterval: getDuration("LIVE_REFRESH_INTERVAL", constants.LiveRefreshInterval),
	}

	logger.Info().
		Str("backend_base_url", cfg.BackendBaseURL).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Dur("live_refresh_interval", cfg.LiveRefreshInterval).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
