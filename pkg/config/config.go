// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/sirupsen/logrus"
)

// Config holds the settings shared by the API server and the CLI.
type Config struct {
	ServerPort         string
	DBPath             string
	LogLevel           logrus.Level
	Workers            int
	DefaultProductType models.ProductType
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (*Config, error) {
	level, err := logrus.ParseLevel(GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	workers, err := strconv.Atoi(GetEnv("WORKERS", "4"))
	if err != nil || workers <= 0 {
		return nil, fmt.Errorf("invalid WORKERS %q: must be a positive integer", GetEnv("WORKERS", ""))
	}

	product, ok := models.ParseProductType(GetEnv("DEFAULT_PRODUCT_TYPE", ""), models.ProductOther)
	if !ok {
		return nil, fmt.Errorf("invalid DEFAULT_PRODUCT_TYPE %q", GetEnv("DEFAULT_PRODUCT_TYPE", ""))
	}

	return &Config{
		ServerPort:         GetEnv("SERVER_PORT", "8080"),
		DBPath:             GetEnv("DB_PATH", "fredeir.db"),
		LogLevel:           level,
		Workers:            workers,
		DefaultProductType: product,
	}, nil
}

// GetEnv fetches the value of an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}
