package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Configuration is loaded once at startup from the process environment,
// optionally seeded from a .env file.
type Configuration struct {
	DatabasePath  string
	ListenAddress string

	// External ledger access.
	ElectionContractAddress string
	TonAPIToken             string
	LedgerTimeout           time.Duration

	TokenTTL time.Duration

	RateLimitPerMinute int
	RateLimitTTL       time.Duration

	LogFile   string
	ErrorFile string
	LogLevel  string
	Console   bool
}

func Load() (*Configuration, error) {
	// A missing .env file is fine in deployed environments where the
	// variables come from the process environment directly.
	_ = godotenv.Load()

	configuration := &Configuration{
		DatabasePath:            getEnv("DATABASE_PATH", "persistent.db"),
		ListenAddress:           getEnv("LISTEN_ADDRESS", ":8080"),
		ElectionContractAddress: os.Getenv("ELECTION_CONTRACT_ADDRESS"),
		TonAPIToken:             os.Getenv("TONAPI_TOKEN"),
		LogFile:                 os.Getenv("LOG_FILE"),
		ErrorFile:               os.Getenv("ERROR_FILE"),
		LogLevel:                getEnv("LOG_LEVEL", "debug"),
		Console:                 getEnv("LOG_CONSOLE", "true") == "true",
	}

	var err error
	configuration.LedgerTimeout, err = getEnvDuration("LEDGER_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	configuration.TokenTTL, err = getEnvDuration("VOTING_TOKEN_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	configuration.RateLimitTTL, err = getEnvDuration("RATE_LIMIT_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	configuration.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}

	if configuration.ElectionContractAddress == "" {
		return nil, fmt.Errorf("ELECTION_CONTRACT_ADDRESS is required")
	}

	return configuration, nil
}

func getEnv(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
