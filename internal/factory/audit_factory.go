package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/audit"
	"github.com/mikey/signup-guard/internal/config"
	"github.com/mikey/signup-guard/internal/core"
)

// AuditFactory creates the asynchronous audit dispatcher
type AuditFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	reviewer *ReviewerFactory
}

// NewAuditFactory creates a new audit factory
func NewAuditFactory(cfg *config.Config, logger *zap.Logger, reviewer *ReviewerFactory) *AuditFactory {
	return &AuditFactory{
		cfg:      cfg,
		logger:   logger,
		reviewer: reviewer,
	}
}

// CreateDispatcher creates the dispatcher, or returns nil when auditing is
// disabled
func (f *AuditFactory) CreateDispatcher() (*audit.Dispatcher, error) {
	auditCfg := f.cfg.GetAudit()
	if !auditCfg.Enabled {
		f.logger.Info("Audit disabled")
		return nil, nil
	}

	var writer audit.Writer
	switch auditCfg.Type {
	case "log", "":
		writer = audit.NewLogWriter(f.logger)
	case "postgres":
		pw, err := audit.NewPostgresWriter(auditCfg.PostgresDSN, f.logger)
		if err != nil {
			return nil, err
		}
		writer = pw
	default:
		return nil, fmt.Errorf("unsupported audit type: %s", auditCfg.Type)
	}

	var reviewer core.Reviewer
	var reviewerName string
	var dispatcherCfg audit.Config
	if f.reviewer != nil {
		var err error
		reviewer, reviewerName, err = f.reviewer.CreateReviewer()
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		if reviewerCfg, err := f.cfg.GetReviewer(); err == nil {
			dispatcherCfg.ReviewTimeout = reviewerCfg.Timeout
		}
	}

	dispatcherCfg.BufferSize = auditCfg.BufferSize
	dispatcherCfg.ReviewerName = reviewerName
	return audit.NewDispatcher(writer, reviewer, dispatcherCfg, f.logger), nil
}

// AsSink converts a possibly nil dispatcher into an AuditSink the engine can
// test against nil
func AsSink(d *audit.Dispatcher) core.AuditSink {
	if d == nil {
		return nil
	}
	return d
}
