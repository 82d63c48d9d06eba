package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/signup-guard/internal/adapters/review"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/utils"
)

// GeminiReviewer is an implementation of the Reviewer interface using Google Gemini
type GeminiReviewer struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxPromptSize int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewGeminiReviewer creates a new Gemini reviewer
func NewGeminiReviewer(
	ctx context.Context,
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxPromptSize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiReviewer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(review.SystemPrompt)}}

	return &GeminiReviewer{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxPromptSize: maxPromptSize,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (r *GeminiReviewer) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Review asks the model for an advisory opinion on a review-band signup
func (r *GeminiReviewer) Review(ctx context.Context, entry *core.AuditEntry) (*core.ReviewOpinion, error) {
	prompt := review.BuildPrompt(entry, r.textProcessor, r.maxPromptSize)

	resp, err := r.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	opinion, err := review.ParseOpinion(text, r.modelName)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Gemini review complete",
		zap.String("id", entry.ID),
		zap.Bool("likely_spam", opinion.LikelySpam),
		zap.Float64("confidence", opinion.Confidence))

	return opinion, nil
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return b.String(), nil
}
