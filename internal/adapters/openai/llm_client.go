package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/review"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/utils"
)

// OpenAIReviewer is an implementation of the Reviewer interface using OpenAI
type OpenAIReviewer struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxPromptSize int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIReviewer creates a new OpenAI reviewer. baseURL overrides the API
// endpoint when non-empty.
func NewOpenAIReviewer(
	apiKey string,
	baseURL string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxPromptSize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIReviewer {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &OpenAIReviewer{
		client:        openai.NewClientWithConfig(clientCfg),
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxPromptSize: maxPromptSize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Review asks the model for an advisory opinion on a review-band signup
func (r *OpenAIReviewer) Review(ctx context.Context, entry *core.AuditEntry) (*core.ReviewOpinion, error) {
	prompt := review.BuildPrompt(entry, r.textProcessor, r.maxPromptSize)

	req := openai.ChatCompletionRequest{
		Model: r.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: review.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
		TopP:        r.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	opinion, err := review.ParseOpinion(resp.Choices[0].Message.Content, r.modelName)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("OpenAI review complete",
		zap.String("id", entry.ID),
		zap.String("completion_id", resp.ID),
		zap.Bool("likely_spam", opinion.LikelySpam),
		zap.Float64("confidence", opinion.Confidence))

	return opinion, nil
}
