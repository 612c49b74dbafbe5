//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"MetaGate/pkg/config"
	"MetaGate/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideKafkaProducer,
	ProvideCache,
	ProvideReportStore,
)

var repositorySet = wire.NewSet(
	ProvideDatasetSource,
	ProvideReportCache,
	ProvideSignalSink,
)

var appSet = wire.NewSet(
	ProvideRegistry,
	ProvidePipeline,
	ProvideRunsHandler,
	ProvideHTTPServer,
	ProvideKafkaConsumer,
	ProvideRunRequestHandler,
	ProvideScheduler,
	ProvideApp,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(ctx context.Context, cfg *config.Config) (*server.App, error) {
	wire.Build(infraSet, repositorySet, appSet)
	return &server.App{}, nil
}
