// Package config defines the process configuration for RoofAlert binaries.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value, an invalid format or a missing credential for the
// selected provider fails startup.
package config

import (
	"time"

	"roofalert/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Analysis sources.
const (
	AnalysisSourceHTTP      = "http"
	AnalysisSourceArtifacts = "artifacts"
)

// Artifact stores.
const (
	ArtifactStoreFile = "file"
	ArtifactStoreS3   = "s3"
)

// Email providers.
const (
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"
	EmailProviderStub     = "stub"
)

// Config is the top-level configuration struct. Sub-components receive only
// the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"roofalert"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Analysis      AnalysisConfig
	Artifacts     ArtifactsConfig
	Dispatch      DispatchConfig
	Pricing       PricingConfig
	Email         EmailConfig
	AWS           AWSConfig
	Database      DatabaseConfig
	Server        ServerConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// AnalysisConfig selects where analysis results come from.
type AnalysisConfig struct {
	Source  string        `envconfig:"ANALYSIS_SOURCE" default:"artifacts" validate:"oneof=http artifacts"`
	BaseURL string        `envconfig:"ANALYSIS_API_URL" validate:"required_if=Source http,omitempty,url"`
	APIKey  SecretString  `envconfig:"ANALYSIS_API_KEY"`
	Timeout time.Duration `envconfig:"ANALYSIS_TIMEOUT" default:"60s"`
}

// ArtifactsConfig locates the images and result files written per run.
type ArtifactsConfig struct {
	Store              string `envconfig:"ARTIFACT_STORE" default:"file" validate:"oneof=file s3"`
	Dir                string `envconfig:"ARTIFACT_DIR" default:"output"`
	Bucket             string `envconfig:"ARTIFACT_BUCKET" validate:"required_if=Store s3"`
	Prefix             string `envconfig:"ARTIFACT_PREFIX"`
	MaxAttachmentBytes int64  `envconfig:"ARTIFACT_MAX_ATTACHMENT_BYTES" default:"10485760" validate:"gt=0"`
}

// DispatchConfig tunes the per-batch orchestrator.
type DispatchConfig struct {
	FallbackRecipient string        `envconfig:"DISPATCH_FALLBACK_RECIPIENT" default:"aliyannew16@gmail.com" validate:"required,email"`
	SendTimeout       time.Duration `envconfig:"DISPATCH_SEND_TIMEOUT" default:"60s" validate:"gte=0"`
	// Seed pins recipient selection; zero seeds from the clock.
	Seed   uint64 `envconfig:"DISPATCH_SEED" default:"0"`
	DryRun bool   `envconfig:"DISPATCH_DRY_RUN" default:"false"`
}

// PricingConfig holds the measurement calibration and the minimum charge.
type PricingConfig struct {
	PixelToSqFt   float64 `envconfig:"MEASURE_PIXEL_TO_SQFT" default:"0.0625" validate:"gt=0"`
	MinimumCharge float64 `envconfig:"PRICING_MINIMUM_CHARGE" default:"500" validate:"gte=0"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	Provider         string       `envconfig:"EMAIL_PROVIDER" default:"sendgrid" validate:"oneof=sendgrid ses stub"`
	SendGridAPIKey   SecretString `envconfig:"SENDGRID_API_KEY"`
	SendGridBaseURL  string       `envconfig:"SENDGRID_BASE_URL" validate:"omitempty,url"`
	FromAddress      string       `envconfig:"EMAIL_FROM_ADDRESS" default:"reports@roofalert.io" validate:"required,email"`
	FromName         string       `envconfig:"EMAIL_FROM_NAME" default:"RoofAlert Reports"`
	ConfigurationSet string       `envconfig:"SES_CONFIGURATION_SET"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// DispatchQueueURL enables asynchronous dispatch through SQS when set.
	DispatchQueueURL string `envconfig:"SQS_DISPATCH_QUEUE" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// DatabaseConfig holds the audit ledger connection. An empty URL disables
// the ledger.
type DatabaseConfig struct {
	URL      SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	MaxConns int32        `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// RequestTimeout bounds a request, including inline dispatch batches.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5m" validate:"gt=0"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrMissingCredential indicates the selected provider has no credential.
	ErrMissingCredential ConfigErrorType = "MISSING_CREDENTIAL"
)
