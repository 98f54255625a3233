package config

import "context"

// SecretProvider resolves secret values by key.
//
// LoadConfig uses it to expand *_SSM_PARAM pointer variables: the value of
// DATABASE_URL_SSM_PARAM is a key, and the resolved secret becomes
// DATABASE_URL. SSMProvider treats keys as SSM parameter paths; EnvVarProvider
// treats them as environment variable names.
//
// Implementations must be safe to call once per load with every key in a
// single batch.
type SecretProvider interface {
	// GetParametersBatch returns the plaintext value of every key it could
	// resolve. Unresolved keys are absent from the map.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
