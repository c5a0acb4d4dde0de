//go:build wireinject
// +build wireinject

package di

import (
	"QuantWatch/pkg/config"
	"QuantWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideAlertStore,
		ProvideSnapshotStore,
		ProvideQueue,

		// Engine
		ProvideFinnhubStream,
		ProvideSource,
		ProvideSeriesStore,
		ProvideBus,
		ProvideDispatcher,
		ProvideMonitor,

		// Transport
		ProvideHub,
		ProvideMonitorHandler,
		ProvideSymbolCommandHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
