// Package config handles platform configuration
package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr         string
	ScreenshotDir    string
	HistoryDB        string
	BaselineURL      string
	CompareThreshold float64
	HashSize         int
	RetentionDays    int
	FetchTimeout     float64 // seconds
	FetchMaxRetries  int
	DiffFormats      []string
}

func Load() *Config {
	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),
		ScreenshotDir:    getEnv("SCREENSHOT_DIR", "reports/screenshots"),
		HistoryDB:        getEnv("HISTORY_DB", "reports/history.db"),
		BaselineURL:      getEnv("BASELINE_URL", ""),
		CompareThreshold: getEnvFloat("COMPARE_THRESHOLD", 0.95),
		HashSize:         getEnvInt("HASH_SIZE", 8),
		RetentionDays:    getEnvInt("RETENTION_DAYS", 7),
		FetchTimeout:     getEnvFloat("FETCH_TIMEOUT", 30.0),
		FetchMaxRetries:  getEnvInt("FETCH_MAX_RETRIES", 3),
		DiffFormats:      getEnvList("DIFF_FORMATS", []string{"png"}),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
