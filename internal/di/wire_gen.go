// This file is maintained by hand in the shape wire would generate from
// wire.go. Keep the provider order in step with the sets there.

//go:build !wireinject
// +build !wireinject

package di

import (
	"context"

	"github.com/newtheatre/lumina/internal/config"
)

// Injectors from wire.go:

// InitializeContainer builds the application. The cleanup func flushes
// traces and stops the config watcher.
func InitializeContainer(ctx context.Context, loader *config.Loader, cfg *config.Config) (*Container, func(), error) {
	diLogging, cleanup, err := provideLogging(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := provideLogger(diLogging)
	awsConfig, err := provideAWSConfig(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	client := provideDynamoDBClient(awsConfig, cfg)
	collector := provideCollector(cfg)
	table, err := provideTable(ctx, cfg, client, collector, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	repositoryRepository := provideRepository(table, logger)
	ssmClient := provideSSMClient(awsConfig)
	store, err := provideParameterStore(cfg, ssmClient, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	diSecrets, err := provideSecrets(ctx, cfg, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	diSigningKeys, err := provideSigningKeys(cfg, diSecrets, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	issuer := provideIssuer(diSigningKeys)
	sesv2Client := provideSESClient(awsConfig)
	eventbridgeClient := provideEventBridgeClient(awsConfig)
	mailer, err := provideMailer(cfg, sesv2Client, eventbridgeClient, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	publisher := providePublisher(cfg, eventbridgeClient, collector, logger)
	service := provideMemberService(repositoryRepository, issuer, mailer, publisher, collector, logger)
	githubClient, err := provideGitHubClient(cfg, diSecrets, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	submissionService := provideSubmissionService(cfg, repositoryRepository, githubClient, publisher, collector, logger)
	validator := provideValidator(diSigningKeys)
	healthService := provideHealthService(cfg, table, githubClient, validator, store, logger)
	tracerProvider, cleanup2, err := provideTracing(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	mux := provideRouter(cfg, service, submissionService, healthService, validator, diSecrets, collector, tracerProvider, logger)
	watcher, cleanup3, err := provideWatcher(loader, cfg, diLogging)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	container := &Container{
		Config:     cfg,
		Logger:     logger,
		Table:      table,
		Repository: repositoryRepository,
		Router:     mux,
		Watcher:    watcher,
		Tracer:     tracerProvider,
	}
	return container, func() {
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}
