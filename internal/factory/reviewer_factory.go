package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/config"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/utils"
)

// ReviewerFactory creates the optional advisory reviewer
type ReviewerFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewReviewerFactory creates a new reviewer factory
func NewReviewerFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ReviewerFactory {
	return &ReviewerFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateReviewer creates the configured reviewer. It returns a nil reviewer
// when review is disabled.
func (f *ReviewerFactory) CreateReviewer() (core.Reviewer, string, error) {
	reviewerCfg, err := f.cfg.GetReviewer()
	if err != nil {
		return nil, "", fmt.Errorf("invalid reviewer configuration: %w", err)
	}
	if !reviewerCfg.Enabled {
		return nil, "", nil
	}

	var reviewer core.Reviewer
	switch reviewerCfg.Provider {
	case "bedrock":
		reviewer, err = NewBedrockFactory(f.cfg, f.logger, f.textProcessor).CreateReviewer()
	case "gemini":
		reviewer, err = NewGeminiFactory(f.cfg, f.logger, f.textProcessor).CreateReviewer()
	case "openai":
		reviewer, err = NewOpenAIFactory(f.cfg, f.logger, f.textProcessor).CreateReviewer()
	default:
		return nil, "", fmt.Errorf("unsupported reviewer provider: %s", reviewerCfg.Provider)
	}
	if err != nil {
		return nil, "", err
	}

	f.logger.Info("Advisory reviewer enabled", zap.String("provider", reviewerCfg.Provider))
	return reviewer, reviewerCfg.Provider, nil
}
