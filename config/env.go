package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCEndpoint = "RPC_ENDPOINT"
	EnvRelayURL    = "RELAY_URL"
	EnvPrivateKey  = "PRIVATE_KEY"
	EnvAuthKey     = "RELAY_AUTH_KEY"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnvOverrides lets environment variables win over file settings
// for the endpoints that differ between deployments.
func (c *Config) ApplyEnvOverrides() {
	c.RPCEndpoint = GetEnvWithDefault(EnvRPCEndpoint, c.RPCEndpoint)
	c.RelayURL = GetEnvWithDefault(EnvRelayURL, c.RelayURL)
}
