// Package config loads the indexer's environment-variable configuration.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the values read from the environment at startup.
type Config struct {
	DatabaseURL    string
	BitcoinRESTURL string
}

// defaultBitcoinRESTURL is used when BITCOIN_REST_URL is unset.
const defaultBitcoinRESTURL = "http://127.0.0.1:8332"

// Load reads a .env file if present (missing files are not an error) and
// then reads the process environment. DATABASE_URL is required; its
// absence is immediately fatal per the startup error-handling policy.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] warning: failed to load .env: %v", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return Config{}, fmt.Errorf("config: required environment variable DATABASE_URL is not set")
	}

	return Config{
		DatabaseURL:    dbURL,
		BitcoinRESTURL: getEnvOrDefault("BITCOIN_REST_URL", defaultBitcoinRESTURL),
	}, nil
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
