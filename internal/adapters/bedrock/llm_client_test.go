package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/utils"
)

type stubRuntime struct {
	body    []byte
	err     error
	payload map[string]interface{}
	modelID string
}

func (s *stubRuntime) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	s.modelID = *params.ModelId
	if err := json.Unmarshal(params.Body, &s.payload); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: s.body}, nil
}

func newReviewer(client InvokeModelAPI, modelID string) *BedrockReviewer {
	logger := zap.NewNop()
	return NewBedrockReviewer(client, modelID, 300, 0.1, 0.9, 1000, logger, utils.NewTextProcessor(logger))
}

func reviewEntry() *core.AuditEntry {
	return &core.AuditEntry{
		ID:      "e1",
		Name:    "Xvnwoeifnwef",
		Details: map[string]interface{}{"email": "ab***@gmail.com", "score": 55},
	}
}

func TestBedrockReviewerClaude(t *testing.T) {
	stub := &stubRuntime{body: []byte(`{"content":[{"type":"text","text":"{\"likely_spam\":true,\"confidence\":0.7,\"explanation\":\"mash\"}"}]}`)}
	r := newReviewer(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	op, err := r.Review(context.Background(), reviewEntry())
	require.NoError(t, err)
	assert.True(t, op.LikelySpam)
	assert.InDelta(t, 0.7, op.Confidence, 1e-9)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", op.Model)

	assert.Equal(t, "bedrock-2023-05-31", stub.payload["anthropic_version"])
	assert.Contains(t, stub.payload, "messages")
}

func TestBedrockReviewerTitan(t *testing.T) {
	stub := &stubRuntime{body: []byte(`{"results":[{"outputText":"Answer: {\"likely_spam\":false,\"confidence\":0.6}"}]}`)}
	r := newReviewer(stub, "amazon.titan-text-express-v1")

	op, err := r.Review(context.Background(), reviewEntry())
	require.NoError(t, err)
	assert.False(t, op.LikelySpam)
	assert.Contains(t, stub.payload, "inputText")
}

func TestBedrockReviewerGeneric(t *testing.T) {
	stub := &stubRuntime{body: []byte(`{"output":"{\"likely_spam\":true,\"confidence\":0.5}"}`)}
	r := newReviewer(stub, "meta.llama3-8b-instruct-v1:0")

	op, err := r.Review(context.Background(), reviewEntry())
	require.NoError(t, err)
	assert.True(t, op.LikelySpam)
	assert.Contains(t, stub.payload, "prompt")
}

func TestBedrockReviewerErrors(t *testing.T) {
	stub := &stubRuntime{err: errors.New("throttled")}
	_, err := newReviewer(stub, "amazon.titan-text-express-v1").Review(context.Background(), reviewEntry())
	assert.ErrorContains(t, err, "throttled")

	stub = &stubRuntime{body: []byte(`{"results":[]}`)}
	_, err = newReviewer(stub, "amazon.titan-text-express-v1").Review(context.Background(), reviewEntry())
	assert.Error(t, err)
}
