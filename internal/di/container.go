package di

import (
	"go.uber.org/dig"

	"github.com/mikey/signup-guard/internal/adapters/audit"
	"github.com/mikey/signup-guard/internal/config"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/email"
	"github.com/mikey/signup-guard/internal/factory"
	"github.com/mikey/signup-guard/internal/logging"
	"github.com/mikey/signup-guard/internal/name"
	"github.com/mikey/signup-guard/internal/ports"
	"github.com/mikey/signup-guard/internal/reference"
	"github.com/mikey/signup-guard/internal/reputation"
	"github.com/mikey/signup-guard/internal/timing"
	"github.com/mikey/signup-guard/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register gateway
	if err := container.Provide(factory.NewGatewayFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.GatewayFactory) (ports.Gateway, error) {
		return f.CreateGateway()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideEngine registers everything between the configuration and the risk
// engine. Both the service and the CLI share it.
func provideEngine(container *dig.Container) error {
	// Register factories
	providers := []interface{}{
		factory.NewTextProcessorFactory,
		factory.NewStoreFactory,
		factory.NewDetectorFactory,
		factory.NewReviewerFactory,
		factory.NewAuditFactory,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register reference tables
	if err := container.Provide(func(f *factory.DetectorFactory) (*reference.Compiled, error) {
		return f.LoadReferenceTables()
	}); err != nil {
		return err
	}

	// Register key-value store
	if err := container.Provide(func(f *factory.StoreFactory) (core.KeyValueStore, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}

	// Register detectors
	if err := container.Provide(func(f *factory.DetectorFactory, tables *reference.Compiled) *email.Classifier {
		return f.CreateEmailClassifier(tables)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.DetectorFactory, tables *reference.Compiled, tp *utils.TextProcessor) *name.Analyzer {
		return f.CreateNameAnalyzer(tables, tp)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.DetectorFactory, kv core.KeyValueStore, tables *reference.Compiled) (*reputation.Tracker, error) {
		return f.CreateReputationTracker(kv, tables)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.DetectorFactory, kv core.KeyValueStore) (*timing.Analyzer, error) {
		return f.CreateTimingAnalyzer(kv)
	}); err != nil {
		return err
	}

	// Register audit dispatcher, nil when auditing is disabled
	if err := container.Provide(func(f *factory.AuditFactory) (*audit.Dispatcher, error) {
		return f.CreateDispatcher()
	}); err != nil {
		return err
	}

	// Register risk engine
	return container.Provide(func(
		f *factory.DetectorFactory,
		classifier *email.Classifier,
		analyzer *name.Analyzer,
		tracker *reputation.Tracker,
		timingAnalyzer *timing.Analyzer,
		dispatcher *audit.Dispatcher,
	) (*core.RiskEngine, error) {
		return f.CreateRiskEngine(classifier, analyzer, tracker, timingAnalyzer, factory.AsSink(dispatcher))
	})
}
