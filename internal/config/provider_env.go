package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider by reading environment variables.
// It backs local runs where secrets come from the shell or a .env file, and
// tests that want SSM-style resolution without AWS.
//
// Keys are environment variable names, not SSM paths.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Keys that are set,
// even to the empty string, appear in the result; unset keys are omitted so
// the caller can report them as missing.
//
// The context is accepted to satisfy SecretProvider. Environment lookups
// neither block nor fail, so the error is always nil.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
