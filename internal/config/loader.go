package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"roofalert/internal/types"
)

// ConfigError is returned by LoadConfig for every failure. Type classifies
// the failure; Err holds the
// underlying cause (an envconfig, validator or SSM error) and is reachable
// through errors.Is and errors.As.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks pointer variables: DATABASE_URL_SSM_PARAM holds the
// SSM path of the DATABASE_URL secret.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

// loaderDeps holds the environment accessors so tests need not mutate the
// process environment.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
	dotenv    func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		dotenv:    func() error { return godotenv.Load() },
	}
}

// LoadOption adjusts how LoadConfig builds the Config. Options apply after
// the environment has been read and before validation, so they take
// precedence over environment variables without modifying the process
// environment.
type LoadOption func(*Config)

// WithDryRun forces Dispatch.DryRun on. Entry points use it to map a
// --dry-run flag onto the loaded configuration; with it set the SendGrid key
// is not required.
func WithDryRun() LoadOption {
	return func(cfg *Config) {
		cfg.Dispatch.DryRun = true
	}
}

// LoadConfig loads and validates the configuration:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present.
//  3. Outside APP_ENV=local, resolves *_SSM_PARAM variables through provider.
//  4. Populates Config from the environment with envconfig.
//  5. Applies opts in order.
//  6. Validates struct tags, then provider credentials.
//
// provider may be nil when no SSM parameters need resolving.
//
// All failures are *ConfigError values; use errors.As to inspect the
// ConfigErrorType. Missing credentials additionally carry an AppError with
// code types.ErrCodeConfigMissingCredential for types.CodeOf.
func LoadConfig(provider SecretProvider, opts ...LoadOption) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps(), opts...)
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps, opts ...LoadOption) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables that are already set.
	_ = deps.dotenv()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.Build = NewBuildInfo()
	for _, opt := range opts {
		opt(&cfg)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := checkCredentials(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkCredentials verifies that the selected providers have their keys.
func checkCredentials(cfg *Config) error {
	var missing []string
	if cfg.Analysis.Source == AnalysisSourceHTTP && cfg.Analysis.APIKey.IsZero() {
		missing = append(missing, "ANALYSIS_API_KEY (ANALYSIS_SOURCE=http)")
	}
	if cfg.Email.Provider == EmailProviderSendGrid && cfg.Email.SendGridAPIKey.IsZero() && !cfg.Dispatch.DryRun {
		missing = append(missing, "SENDGRID_API_KEY (EMAIL_PROVIDER=sendgrid)")
	}
	if len(missing) == 0 {
		return nil
	}
	msg := "missing credentials: " + strings.Join(missing, ", ")
	return &ConfigError{
		Type:    ErrMissingCredential,
		Message: msg,
		Err:     types.NewAppError(types.ErrCodeConfigMissingCredential, msg, nil),
	}
}

// ResolveSecrets runs only the SSM step of LoadConfig.
//
// Entry points that read individual variables with os.Getenv instead of the
// full Config call it first so *_SSM_PARAM pointers are expanded. It is a
// no-op for APP_ENV=local.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// resolveSSMParams fetches every *_SSM_PARAM path in one batch and injects
// the values under the variable name without the suffix. Variables that are
// already set win over SSM.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	pathToTarget := make(map[string]string)
	var paths, targets []string

	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		pathToTarget[path] = target
		paths = append(paths, path)
		targets = append(targets, target)
	}

	if len(paths) == 0 {
		return nil
	}
	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, pathToTarget[path])
			continue
		}
		if err := deps.setEnv(pathToTarget[path], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", pathToTarget[path]),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
