package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/config"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/email"
	"github.com/mikey/signup-guard/internal/name"
	"github.com/mikey/signup-guard/internal/reference"
	"github.com/mikey/signup-guard/internal/reputation"
	"github.com/mikey/signup-guard/internal/timing"
	"github.com/mikey/signup-guard/internal/utils"
)

// DetectorFactory creates the detectors and the risk engine that fuses them
type DetectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDetectorFactory creates a new detector factory
func NewDetectorFactory(cfg *config.Config, logger *zap.Logger) *DetectorFactory {
	return &DetectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// LoadReferenceTables loads reference.path, or the embedded tables when unset
func (f *DetectorFactory) LoadReferenceTables() (*reference.Compiled, error) {
	path := f.cfg.GetString("reference.path")
	tables, err := reference.LoadCompiled(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference tables: %w", err)
	}
	if path == "" {
		path = "embedded"
	}
	f.logger.Info("Loaded reference tables",
		zap.String("source", path),
		zap.Int("disposable_domains", len(tables.DisposableDomains)),
		zap.Int("first_names", len(tables.CommonFirstNames)))
	return tables, nil
}

// CreateEmailClassifier creates the email risk classifier
func (f *DetectorFactory) CreateEmailClassifier(tables *reference.Compiled) *email.Classifier {
	return email.NewClassifier(tables)
}

// CreateNameAnalyzer creates the name authenticity analyzer
func (f *DetectorFactory) CreateNameAnalyzer(tables *reference.Compiled, tp *utils.TextProcessor) *name.Analyzer {
	return name.NewAnalyzer(tables, tp, f.logger)
}

// CreateReputationTracker creates the IP reputation tracker over kv
func (f *DetectorFactory) CreateReputationTracker(kv core.KeyValueStore, tables *reference.Compiled) (*reputation.Tracker, error) {
	ttl, err := f.cfg.GetReputationTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid reputation ttl: %w", err)
	}
	return reputation.NewTracker(kv, tables, ttl, f.logger)
}

// CreateTimingAnalyzer creates the form timing analyzer over kv
func (f *DetectorFactory) CreateTimingAnalyzer(kv core.KeyValueStore) (*timing.Analyzer, error) {
	timingCfg, err := f.cfg.GetTiming()
	if err != nil {
		return nil, fmt.Errorf("invalid timing configuration: %w", err)
	}
	if timingCfg.Secret == "" {
		f.logger.Warn("timing.secret is not set; fallback timestamps in timing tokens are unsigned")
	}

	forms := make(map[string]core.FormTiming, len(timingCfg.Forms))
	for form, bounds := range timingCfg.Forms {
		if bounds.BotThresholdMs > bounds.MinimumTotalMs {
			return nil, fmt.Errorf("timing.forms.%s: bot_threshold_ms exceeds minimum_total_ms", form)
		}
		forms[form] = core.FormTiming{
			MinimumTotalMs: bounds.MinimumTotalMs,
			BotThresholdMs: bounds.BotThresholdMs,
		}
	}

	return timing.NewAnalyzer(kv, timing.Config{
		TokenTTL:       timingCfg.TokenTTL,
		DefaultElapsed: timingCfg.DefaultElapsed,
		Secret:         timingCfg.Secret,
		Forms:          forms,
	}, f.logger), nil
}

// CreateRiskEngine wires the detectors into the engine. tracker, timing and
// audit may be nil to skip those signals.
func (f *DetectorFactory) CreateRiskEngine(
	classifier *email.Classifier,
	analyzer *name.Analyzer,
	tracker *reputation.Tracker,
	timingAnalyzer *timing.Analyzer,
	audit core.AuditSink,
) (*core.RiskEngine, error) {
	storeCfg, err := f.cfg.GetStore()
	if err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	// keep typed nils out of the interfaces
	var rep core.ReputationTracker
	if tracker != nil {
		rep = tracker
	}
	var ta core.TimingAnalyzer
	if timingAnalyzer != nil {
		ta = timingAnalyzer
	}
	return core.NewRiskEngine(classifier, analyzer, rep, ta, audit, f.logger, storeCfg.Timeout), nil
}
