// Package app wires configuration into the components of a dispatch run. It
// is the composition root shared by the CLI, the API server and the dispatch
// worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"roofalert/internal/analysis"
	"roofalert/internal/artifacts"
	"roofalert/internal/config"
	"roofalert/internal/db"
	"roofalert/internal/dispatch"
	"roofalert/internal/external"
	"roofalert/internal/measure"
	notifcore "roofalert/internal/notifications/core"
	"roofalert/internal/notifications/email"
	"roofalert/internal/pricing"
	"roofalert/internal/queue"
)

// App holds the wired components. Optional components are nil when their
// configuration is absent.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Source   analysis.Source
	Registry artifacts.Registry
	Provider external.EmailProvider
	Sink     *email.Sink
	Runner   *Runner

	// Ledger is set when DATABASE_URL is configured.
	Ledger *db.DispatchRepository
	// Metrics is set when ENABLE_METRICS is true.
	Metrics    *notifcore.CloudWatchDispatchMetrics
	APIMetrics *notifcore.APIMetrics
	// Publisher is set when SQS_DISPATCH_QUEUE is configured.
	Publisher *queue.Publisher

	pool *pgxpool.Pool
}

// Option overrides a dependency Build would otherwise create.
type Option func(*buildOptions)

type buildOptions struct {
	httpClient *http.Client
	awsCfg     *aws.Config
	source     analysis.Source
	registry   artifacts.Registry
	provider   external.EmailProvider
	ledger     dispatch.Ledger
	observer   func(dispatch.Outcome)
	s3         artifacts.S3API
	ses        external.SESAPI
	sqs        queue.SQSSender
	cloudwatch notifcore.CloudWatchClient
	now        func() time.Time
}

// WithHTTPClient sets the client used for the analysis service and SendGrid.
func WithHTTPClient(c *http.Client) Option { return func(o *buildOptions) { o.httpClient = c } }

// WithAWSConfig skips loading the default AWS configuration.
func WithAWSConfig(c aws.Config) Option { return func(o *buildOptions) { o.awsCfg = &c } }

// WithSource replaces the configured analysis source.
func WithSource(s analysis.Source) Option { return func(o *buildOptions) { o.source = s } }

// WithRegistry replaces the configured artifact registry.
func WithRegistry(r artifacts.Registry) Option { return func(o *buildOptions) { o.registry = r } }

// WithProvider replaces the configured email provider.
func WithProvider(p external.EmailProvider) Option { return func(o *buildOptions) { o.provider = p } }

// WithLedger replaces the database ledger.
func WithLedger(l dispatch.Ledger) Option { return func(o *buildOptions) { o.ledger = l } }

// WithObserver receives every property outcome of every batch.
func WithObserver(fn func(dispatch.Outcome)) Option {
	return func(o *buildOptions) { o.observer = fn }
}

// WithS3 sets the S3 client for the s3 artifact store.
func WithS3(c artifacts.S3API) Option { return func(o *buildOptions) { o.s3 = c } }

// WithSES sets the SES client for the ses provider.
func WithSES(c external.SESAPI) Option { return func(o *buildOptions) { o.ses = c } }

// WithSQS sets the SQS client for the dispatch publisher.
func WithSQS(c queue.SQSSender) Option { return func(o *buildOptions) { o.sqs = c } }

// WithCloudWatch sets the CloudWatch client for metrics.
func WithCloudWatch(c notifcore.CloudWatchClient) Option {
	return func(o *buildOptions) { o.cloudwatch = c }
}

// WithClock overrides the clock used in rendered reports.
func WithClock(now func() time.Time) Option { return func(o *buildOptions) { o.now = now } }

// Build creates every component cfg asks for. The caller must Close the App.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Analysis.Timeout}
	}

	a := &App{Config: cfg, Logger: logger}
	loader := &awsLoader{cfg: cfg, override: o.awsCfg}

	var err error
	if a.Registry, err = buildRegistry(ctx, cfg, o, loader, logger); err != nil {
		return nil, err
	}
	if a.Source = o.source; a.Source == nil {
		a.Source = buildSource(cfg, o, a.Registry, logger)
	}
	if a.Provider, err = buildProvider(ctx, cfg, o, loader, logger); err != nil {
		return nil, err
	}

	calibration := measure.NewCalibration(cfg.Pricing.PixelToSqFt)
	renderer, err := email.NewRenderer(email.RendererConfig{
		DefaultFromAddr: cfg.Email.FromAddress,
		DefaultFromName: cfg.Email.FromName,
		Calibration:     calibration,
		Logger:          logger,
		Now:             o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("app: building renderer: %w", err)
	}
	a.Sink = email.NewSink(email.SinkConfig{
		Provider:           a.Provider,
		Renderer:           renderer,
		Registry:           a.Registry,
		FallbackRecipient:  cfg.Dispatch.FallbackRecipient,
		MaxAttachmentBytes: cfg.Artifacts.MaxAttachmentBytes,
		Logger:             logger,
	})

	ledger := o.ledger
	if ledger == nil && !cfg.Database.URL.IsZero() {
		if a.pool, err = db.Open(ctx, cfg.Database.URL.Unmask(), cfg.Database.MaxConns); err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx, a.pool); err != nil {
			a.Close()
			return nil, err
		}
		a.Ledger = db.NewDispatchRepository(a.pool)
		ledger = a.Ledger
	}

	var metrics dispatch.Metrics
	if cfg.Observability.EnableMetrics {
		client := o.cloudwatch
		if client == nil {
			awsCfg, err := loader.load(ctx)
			if err != nil {
				a.Close()
				return nil, err
			}
			client = cloudwatch.NewFromConfig(awsCfg)
		}
		a.Metrics = notifcore.NewCloudWatchDispatchMetrics(client, notifcore.ChannelEmail, logger)
		a.APIMetrics = notifcore.NewAPIMetrics(client, logger)
		metrics = a.Metrics
	}

	if cfg.AWS.DispatchQueueURL != "" {
		client := o.sqs
		if client == nil {
			awsCfg, err := loader.load(ctx)
			if err != nil {
				a.Close()
				return nil, err
			}
			client = sqs.NewFromConfig(awsCfg)
		}
		a.Publisher = queue.NewPublisher(client, cfg.AWS.DispatchQueueURL, logger)
	}

	a.Runner = &Runner{
		source: a.Source,
		sink:   a.Sink,
		estimator: pricing.NewEstimator(
			pricing.WithCalibration(calibration),
			pricing.WithMinimumCharge(cfg.Pricing.MinimumCharge),
		),
		registry: a.Registry,
		ledger:   ledger,
		metrics:  metrics,
		observer: o.observer,
		cfg: dispatch.Config{
			FallbackRecipient: cfg.Dispatch.FallbackRecipient,
			SendTimeout:       cfg.Dispatch.SendTimeout,
		},
		seed:   cfg.Dispatch.Seed,
		logger: logger,
	}

	logger.Info("roofalert components ready",
		"analysis_source", cfg.Analysis.Source,
		"artifact_store", cfg.Artifacts.Store,
		"email_provider", providerName(cfg),
		"ledger", ledger != nil,
		"metrics", metrics != nil,
		"queue", a.Publisher != nil,
	)
	return a, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// Ping checks the database when a ledger is configured.
func (a *App) Ping(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Ping(ctx)
}

func buildRegistry(ctx context.Context, cfg *config.Config, o buildOptions, loader *awsLoader, logger *slog.Logger) (artifacts.Registry, error) {
	if o.registry != nil {
		return o.registry, nil
	}
	if cfg.Artifacts.Store != config.ArtifactStoreS3 {
		return artifacts.NewFileRegistry(cfg.Artifacts.Dir, logger), nil
	}
	client := o.s3
	if client == nil {
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		pathStyle := cfg.AWS.EndpointURL != ""
		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) { so.UsePathStyle = pathStyle })
	}
	return artifacts.NewS3Registry(client, cfg.Artifacts.Bucket, cfg.Artifacts.Prefix, logger), nil
}

func buildSource(cfg *config.Config, o buildOptions, registry artifacts.Registry, logger *slog.Logger) analysis.Source {
	if cfg.Analysis.Source == config.AnalysisSourceHTTP {
		return analysis.NewHTTPSource(o.httpClient, analysis.HTTPSourceConfig{
			BaseURL: cfg.Analysis.BaseURL,
			APIKey:  cfg.Analysis.APIKey,
			Logger:  logger,
		})
	}
	return analysis.NewArtifactSource(registry, logger)
}

func buildProvider(ctx context.Context, cfg *config.Config, o buildOptions, loader *awsLoader, logger *slog.Logger) (external.EmailProvider, error) {
	if o.provider != nil {
		return o.provider, nil
	}
	switch providerName(cfg) {
	case config.EmailProviderSendGrid:
		return external.NewSendGridClient(o.httpClient, external.SendGridClientConfig{
			APIKey:  cfg.Email.SendGridAPIKey,
			BaseURL: cfg.Email.SendGridBaseURL,
			Logger:  logger,
		}), nil
	case config.EmailProviderSES:
		api := o.ses
		if api == nil {
			awsCfg, err := loader.load(ctx)
			if err != nil {
				return nil, err
			}
			api = sesv2.NewFromConfig(awsCfg)
		}
		return external.NewSESClientWithAPI(api, external.SESClientConfig{
			ConfigSetName: cfg.Email.ConfigurationSet,
			Logger:        logger,
		}), nil
	default:
		return external.NewStubEmailProvider(logger), nil
	}
}

// providerName is the provider actually used: dry runs always use the stub.
func providerName(cfg *config.Config) string {
	if cfg.Dispatch.DryRun {
		return config.EmailProviderStub
	}
	return cfg.Email.Provider
}

// awsLoader loads the AWS configuration once, on first use.
type awsLoader struct {
	cfg      *config.Config
	override *aws.Config
	loaded   *aws.Config
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.override != nil {
		return *l.override, nil
	}
	if l.loaded != nil {
		return *l.loaded, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(l.cfg.AWS.Region)}
	if l.cfg.AWS.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(l.cfg.AWS.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: loading AWS config (region=%s): %w", l.cfg.AWS.Region, err)
	}
	l.loaded = &awsCfg
	return awsCfg, nil
}
