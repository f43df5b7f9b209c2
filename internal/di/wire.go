//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/newtheatre/lumina/internal/config"
)

var ConfigProviders = wire.NewSet(
	provideLogging,
	provideLogger,
	provideWatcher,
)

var InfrastructureProviders = wire.NewSet(
	provideTracing,
	provideCollector,
	provideAWSConfig,
	provideDynamoDBClient,
	provideEventBridgeClient,
	provideSESClient,
	provideSSMClient,
	provideParameterStore,
	provideSecrets,
	provideTable,
	provideRepository,
	provideSigningKeys,
	provideIssuer,
	provideValidator,
	provideMailer,
	providePublisher,
	provideGitHubClient,
)

var ServiceProviders = wire.NewSet(
	provideMemberService,
	provideSubmissionService,
	provideHealthService,
)

var InterfaceProviders = wire.NewSet(
	provideRouter,
)

var SuperSet = wire.NewSet(
	ConfigProviders,
	InfrastructureProviders,
	ServiceProviders,
	InterfaceProviders,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer builds the application. The cleanup func flushes
// traces and stops the config watcher.
func InitializeContainer(ctx context.Context, loader *config.Loader, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
