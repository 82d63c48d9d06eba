package factory

import (
	"context"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/bedrock"
	"github.com/mikey/signup-guard/internal/config"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/utils"
)

// BedrockFactory creates Bedrock reviewers
type BedrockFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockFactory creates a new Bedrock factory
func NewBedrockFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *BedrockFactory {
	return &BedrockFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateReviewer creates a Bedrock reviewer using the default AWS credential chain
func (f *BedrockFactory) CreateReviewer() (core.Reviewer, error) {
	bedrockCfg := f.cfg.GetBedrock()

	client, err := bedrock.NewBedrockClient(context.Background(), bedrockCfg.Region)
	if err != nil {
		return nil, err
	}

	return bedrock.NewBedrockReviewer(
		client,
		bedrockCfg.ModelID,
		bedrockCfg.MaxTokens,
		bedrockCfg.Temperature,
		bedrockCfg.TopP,
		bedrockCfg.MaxPromptSize,
		f.logger,
		f.textProcessor,
	), nil
}
