package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/config"
	"github.com/newtheatre/lumina/internal/infrastructure/github"
	"github.com/newtheatre/lumina/internal/infrastructure/messaging"
	"github.com/newtheatre/lumina/internal/infrastructure/observability"
	"github.com/newtheatre/lumina/internal/infrastructure/parameters"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence/ddb"
	"github.com/newtheatre/lumina/internal/infrastructure/persistence/memory"
	"github.com/newtheatre/lumina/internal/interfaces/http/rest"
	"github.com/newtheatre/lumina/internal/repository"
	"github.com/newtheatre/lumina/internal/service/health"
	"github.com/newtheatre/lumina/internal/service/member"
	"github.com/newtheatre/lumina/internal/service/submission"
	"github.com/newtheatre/lumina/pkg/auth"
)

const (
	serviceName        = "lumina"
	healthCheckTimeout = 5 * time.Second
)

// ============================================================================
// CONFIG PROVIDERS
// ============================================================================

type logging struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

func provideLogging(cfg *config.Config) (*logging, func(), error) {
	logger, level, err := observability.NewLogger(string(cfg.Environment), cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &logging{logger: logger, level: level}, func() { _ = logger.Sync() }, nil
}

func provideLogger(l *logging) *zap.Logger {
	return l.logger
}

// provideWatcher only reloads in development. A watcher that cannot start
// is logged and skipped.
func provideWatcher(loader *config.Loader, cfg *config.Config, l *logging) (*config.Watcher, func(), error) {
	w, err := config.NewWatcher(loader, cfg, l.logger)
	if err != nil {
		l.logger.Warn("Configuration watcher not started", zap.Error(err))
		return nil, func() {}, nil
	}
	config.WatchLogLevel(w, l.level, observability.ParseLevel)
	return w, func() { _ = w.Close() }, nil
}

// ============================================================================
// INFRASTRUCTURE PROVIDERS
// ============================================================================

func provideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: serviceName,
		Version:     cfg.Version,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise tracing: %w", err)
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// provideCollector returns nil when metrics are disabled.
func provideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func provideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	awsCfg, err := awsConfig.LoadDefaultConfig(loadCtx, awsConfig.WithRegion(cfg.Database.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Tracing.XRay {
		observability.InstrumentAWS(&awsCfg)
	}
	return awsCfg, nil
}

func provideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Database.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Database.Endpoint)
		}
	})
}

func provideEventBridgeClient(awsCfg aws.Config) *eventbridge.Client {
	return eventbridge.NewFromConfig(awsCfg)
}

func provideSESClient(awsCfg aws.Config) *sesv2.Client {
	return sesv2.NewFromConfig(awsCfg)
}

func provideSSMClient(awsCfg aws.Config) *ssm.Client {
	return ssm.NewFromConfig(awsCfg)
}

// provideParameterStore returns nil when the parameter store is disabled.
func provideParameterStore(cfg *config.Config, client *ssm.Client, logger *zap.Logger) (*parameters.Store, error) {
	if !cfg.Parameters.Enabled {
		return nil, nil
	}
	return parameters.NewStore(client, cfg.Parameters.Probe, cfg.Parameters.Timeout, logger)
}

// secrets are the credentials that may live in the parameter store.
type secrets struct {
	privateKey    string
	publicKey     string
	githubToken   string
	webhookSecret string
}

// provideSecrets takes each secret from the parameter store when a name is
// configured for it, and from the config otherwise.
func provideSecrets(ctx context.Context, cfg *config.Config, store *parameters.Store) (*secrets, error) {
	s := &secrets{
		privateKey:    cfg.Auth.PrivateKey,
		publicKey:     cfg.Auth.PublicKey,
		githubToken:   cfg.GitHub.Token,
		webhookSecret: cfg.GitHub.WebhookSecret,
	}
	lookups := []struct {
		name string
		dst  *string
	}{
		{cfg.Auth.PrivateKeyParameter, &s.privateKey},
		{cfg.Auth.PublicKeyParameter, &s.publicKey},
		{cfg.GitHub.TokenParameter, &s.githubToken},
		{cfg.GitHub.WebhookSecretParameter, &s.webhookSecret},
	}
	for _, l := range lookups {
		if l.name == "" {
			continue
		}
		if store == nil {
			return nil, fmt.Errorf("parameter %s configured but the parameter store is disabled", l.name)
		}
		v, err := store.Get(ctx, l.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameter %s: %w", l.name, err)
		}
		*l.dst = v
	}
	return s, nil
}

// provideTable builds the decorated table: base, retry, breaker, then
// instrumentation.
func provideTable(ctx context.Context, cfg *config.Config, client *dynamodb.Client, collector *observability.Collector, logger *zap.Logger) (persistence.Table, error) {
	tableName := cfg.Database.TableName(cfg.Environment)

	var base persistence.Table
	if cfg.Database.InMemory {
		logger.Warn("Using in-memory table; data is lost on exit", zap.String("table", tableName))
		base = memory.NewTable()
	} else {
		table, err := ddb.NewTable(client, tableName,
			ddb.WithTimeout(cfg.Database.Timeout),
			ddb.WithLogger(logger.Named("dynamodb")),
		)
		if err != nil {
			return nil, err
		}
		if cfg.Database.EnsureTable {
			created, err := table.EnsureTable(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to ensure table %s: %w", tableName, err)
			}
			logger.Info("Table ready", zap.String("table", tableName), zap.Bool("created", created))
		}
		base = table
	}

	var recorder persistence.Recorder
	if collector != nil {
		recorder = collector
	}
	return persistence.Decorate(base, persistence.ChainConfig{
		TableName:     tableName,
		EnableRetries: cfg.Retry.Enabled,
		Retry: persistence.RetryConfig{
			MaxRetries:    cfg.Retry.MaxRetries,
			InitialDelay:  cfg.Retry.InitialDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: cfg.Retry.BackoffFactor,
			JitterFactor:  cfg.Retry.JitterFactor,
		},
		EnableBreaker: cfg.CircuitBreaker.Enabled,
		Breaker: persistence.BreakerConfig{
			Name:         "dynamodb",
			MaxRequests:  cfg.CircuitBreaker.MaxRequests,
			Interval:     cfg.CircuitBreaker.Interval,
			Timeout:      cfg.CircuitBreaker.Timeout,
			FailureRatio: cfg.CircuitBreaker.FailureRatio,
			MinRequests:  cfg.CircuitBreaker.MinRequests,
		},
		Recorder: recorder,
	}, logger.Named("table")), nil
}

func provideRepository(table persistence.Table, logger *zap.Logger) *repository.Repository {
	return repository.NewRepository(table, logger)
}

type signingKeys struct {
	issuer    *auth.Issuer
	validator *auth.Validator
}

// provideSigningKeys loads the RS256 pair. Without a private key,
// development and test run on a throwaway pair; other environments fail.
func provideSigningKeys(cfg *config.Config, sec *secrets, logger *zap.Logger) (*signingKeys, error) {
	private, err := auth.ReadPEM(sec.privateKey, cfg.Auth.PrivateKeyFile)
	if err != nil {
		return nil, err
	}
	if len(private) == 0 {
		if cfg.Environment != config.Development && cfg.Environment != config.Test {
			return nil, fmt.Errorf("no signing key configured for %s", cfg.Environment)
		}
		logger.Warn("No signing key configured, using an ephemeral key pair")
		issuer, validator, err := auth.NewEphemeralPair(cfg.Auth.TokenTTL, cfg.Auth.AuthURL)
		if err != nil {
			return nil, err
		}
		return &signingKeys{issuer: issuer, validator: validator}, nil
	}

	issuer, err := auth.NewIssuer(private, cfg.Auth.TokenTTL, cfg.Auth.AuthURL)
	if err != nil {
		return nil, err
	}

	public, err := auth.ReadPEM(sec.publicKey, cfg.Auth.PublicKeyFile)
	if err != nil {
		return nil, err
	}
	if len(public) == 0 {
		if public, err = issuer.EncodePublicKey(); err != nil {
			return nil, fmt.Errorf("derive public key: %w", err)
		}
	}
	validator, err := auth.NewValidator(public)
	if err != nil {
		return nil, err
	}
	return &signingKeys{issuer: issuer, validator: validator}, nil
}

func provideIssuer(k *signingKeys) *auth.Issuer {
	return k.issuer
}

func provideValidator(k *signingKeys) *auth.Validator {
	return k.validator
}

func provideMailer(cfg *config.Config, ses *sesv2.Client, client *eventbridge.Client, logger *zap.Logger) (messaging.Mailer, error) {
	switch cfg.Email.Transport {
	case "ses":
		return messaging.NewSESMailer(ses, cfg.Email.Sender, cfg.Email.Timeout, logger)
	case "eventbridge":
		return messaging.NewEventMailer(client, cfg.Events.BusName, cfg.Events.Source, cfg.Email.Sender, cfg.Events.Timeout, logger)
	case "", "log":
		return messaging.NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Email.Transport)
	}
}

func providePublisher(cfg *config.Config, client *eventbridge.Client, collector *observability.Collector, logger *zap.Logger) messaging.Publisher {
	if !cfg.Events.Enabled {
		return messaging.NewLogPublisher(logger)
	}
	var recorder messaging.EventRecorder
	if collector != nil {
		recorder = collector
	}
	return messaging.NewEventBridgePublisher(client, cfg.Events.BusName, cfg.Events.Source, cfg.Events.Timeout, recorder, logger)
}

func provideGitHubClient(cfg *config.Config, sec *secrets, logger *zap.Logger) (*github.Client, error) {
	return github.NewClient(github.Config{
		Token:   sec.githubToken,
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Timeout: cfg.GitHub.Timeout,
		BaseURL: cfg.GitHub.BaseURL,
	}, nil, logger)
}

// ============================================================================
// SERVICE PROVIDERS
// ============================================================================

func provideMemberService(
	repo *repository.Repository,
	issuer *auth.Issuer,
	mailer messaging.Mailer,
	publisher messaging.Publisher,
	collector *observability.Collector,
	logger *zap.Logger,
) member.Service {
	var metrics member.Metrics
	if collector != nil {
		metrics = collector
	}
	return member.NewService(repo, issuer, mailer, publisher, metrics, logger)
}

func provideSubmissionService(
	cfg *config.Config,
	repo *repository.Repository,
	issues *github.Client,
	publisher messaging.Publisher,
	collector *observability.Collector,
	logger *zap.Logger,
) submission.Service {
	var metrics submission.Metrics
	if collector != nil {
		metrics = collector
	}
	return submission.NewService(repo, issues, publisher, metrics, cfg.Site.HistoryURL, logger)
}

func provideHealthService(
	cfg *config.Config,
	table persistence.Table,
	issues *github.Client,
	validator *auth.Validator,
	store *parameters.Store,
	logger *zap.Logger,
) health.Service {
	checks := []health.Check{
		{Name: "dynamodb", Probe: table.Ping},
		{Name: "github", Probe: issues.Ping},
		{Name: "signing_key", Probe: func(context.Context) error { return validator.Ping() }},
	}
	if store != nil {
		checks = append(checks, health.Check{Name: "ssm", Probe: store.Ping})
	}
	return health.NewService(cfg.Version, healthCheckTimeout, logger, checks...)
}

// ============================================================================
// INTERFACE PROVIDERS
// ============================================================================

// provideRouter takes the tracer so that tracing is installed before any
// middleware asks for a tracer.
func provideRouter(
	cfg *config.Config,
	members member.Service,
	submissions submission.Service,
	healthSvc health.Service,
	validator *auth.Validator,
	sec *secrets,
	collector *observability.Collector,
	_ *observability.TracerProvider,
	logger *zap.Logger,
) *chi.Mux {
	return rest.NewRouter(rest.RouterConfig{
		ServiceName:    serviceName,
		RequestTimeout: cfg.Server.RequestTimeout,
		WebhookSecret:  sec.webhookSecret,
		Tracing:        cfg.Tracing.Enabled,
		CORS: rest.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
			MaxAge:         cfg.CORS.MaxAge,
		},
	}, members, submissions, healthSvc, validator, collector, logger).Setup()
}
