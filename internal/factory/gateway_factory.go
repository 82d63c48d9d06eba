package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/gateway"
	"github.com/mikey/signup-guard/internal/config"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/ports"
)

// GatewayFactory creates the inbound gateway based on configuration
type GatewayFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *core.RiskEngine
}

// NewGatewayFactory creates a new gateway factory
func NewGatewayFactory(cfg *config.Config, logger *zap.Logger, engine *core.RiskEngine) *GatewayFactory {
	return &GatewayFactory{
		cfg:    cfg,
		logger: logger,
		engine: engine,
	}
}

// CreateGateway creates the HTTP gateway
func (f *GatewayFactory) CreateGateway() (ports.Gateway, error) {
	serverCfg, err := f.cfg.GetServer()
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	metricsCfg := f.cfg.GetMetrics()

	return gateway.NewHTTPGateway(f.engine, gateway.HTTPConfig{
		ListenAddress:     serverCfg.ListenAddress,
		ReadTimeout:       serverCfg.ReadTimeout,
		WriteTimeout:      serverCfg.WriteTimeout,
		IncludeReasons:    serverCfg.IncludeReasons,
		RateLimitRequests: serverCfg.RateLimitRequests,
		RateLimitWindow:   serverCfg.RateLimitWindow,
		MetricsEnabled:    metricsCfg.Enabled,
		MetricsPath:       metricsCfg.Path,
	}, f.logger), nil
}
