package config

import (
	"os"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnv returns the value of an environment variable or a default value if not set.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvironment returns the current environment, defaulting to development.
func GetEnvironment() string {
	return strings.ToLower(GetEnv("STOCKSCAN_SERVER_ENVIRONMENT", EnvDevelopment))
}

// IsDeployed reports whether env runs against shared infrastructure, where
// missing dependencies are fatal instead of degraded.
func IsDeployed(env string) bool {
	return env == EnvProduction || env == EnvStaging
}
