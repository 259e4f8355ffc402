package config

import (
	"os"
	"strings"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "AUTHCTL"

// GetEnv returns the environment variable or defaultValue when unset.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// EnvName maps a config key such as "token.secret" to AUTHCTL_TOKEN_SECRET.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")
