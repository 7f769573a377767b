package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DBDriver       string
	DBPath         string
	DatabaseURL    string
	CRMBaseURL     string
	CRMAPIKey      string
	CRMLocationID  string
	CRMAPIVersion  string
	LogLevel       string
	PollInterval   time.Duration
	LookupRPS      float64
	AllowedOrigins []string
}

// LoadConfig reads an optional .env file and then the process environment.
// A missing .env is not an error.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "1s"))
	if err != nil {
		return nil, fmt.Errorf("parse POLL_INTERVAL: %w", err)
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", pollInterval)
	}

	lookupRPS, err := strconv.ParseFloat(getEnv("LOOKUP_RPS", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("parse LOOKUP_RPS: %w", err)
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		DBDriver:       getEnv("DB_DRIVER", "sqlite"),
		DBPath:         getEnv("DB_PATH", "./crm-lookup.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		CRMBaseURL:     getEnv("CRM_BASE_URL", "https://services.leadconnectorhq.com"),
		CRMAPIKey:      getEnv("CRM_API_KEY", ""),
		CRMLocationID:  getEnv("CRM_LOCATION_ID", ""),
		CRMAPIVersion:  getEnv("CRM_API_VERSION", "2021-07-28"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		PollInterval:   pollInterval,
		LookupRPS:      lookupRPS,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "https://web.whatsapp.com")),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
