package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`{"likely_spam": true, `),
				genai.Text(`"confidence": 0.9}`),
			}},
		}},
	}

	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"likely_spam": true, "confidence": 0.9}`, text)
}

func TestResponseTextEmpty(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"Nil", nil},
		{"No candidates", &genai.GenerateContentResponse{}},
		{"No content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
		{"No text parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}},
		}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := responseText(tc.resp)
			assert.Error(t, err)
		})
	}
}
