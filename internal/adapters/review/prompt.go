package review

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/utils"
)

// SystemPrompt is sent as the system role where the provider supports one
const SystemPrompt = "You are a signup moderation assistant. Respond only with JSON."

const promptFormat = `You are reviewing an account registration that automated checks placed in the manual review band.
Decide whether the signup is likely an abusive or fake account.
Respond with a JSON object containing:
- likely_spam: boolean (true if the signup looks fake or abusive)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- explanation: string (one or two sentences)

Signup:
Display name: %s
Email (masked): %s
Source IP: %s
Form: %s
Risk score: %v
Automated findings:
%s

Respond only with the JSON object and nothing else.`

// Response is the JSON object requested from the model
type Response struct {
	LikelySpam  bool    `json:"likely_spam"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// BuildPrompt renders the review prompt for entry. The display name is
// truncated to maxSize bytes; the email is taken from the already masked
// audit details.
func BuildPrompt(entry *core.AuditEntry, tp *utils.TextProcessor, maxSize int) string {
	name := tp.ProcessText(entry.Name, maxSize)

	email, _ := entry.Details["email"].(string)
	form, _ := entry.Details["form"].(string)
	if form == "" {
		form = "registration"
	}

	return fmt.Sprintf(promptFormat,
		name,
		email,
		entry.ClientInfo.IP,
		form,
		entry.Details["score"],
		findings(entry.Details["reasons"]))
}

func findings(v interface{}) string {
	var reasons []string
	switch r := v.(type) {
	case []string:
		reasons = r
	case []interface{}:
		for _, item := range r {
			reasons = append(reasons, fmt.Sprint(item))
		}
	}
	if len(reasons) == 0 {
		return "- none"
	}

	// stable output for identical inputs
	reasons = append([]string(nil), reasons...)
	sort.Strings(reasons)

	var b strings.Builder
	for i, reason := range reasons {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(reason)
	}
	return b.String()
}

// ParseOpinion decodes the model output. Models often wrap the object in
// prose or code fences, so on a direct decode failure the outermost braces
// are extracted and decoded instead.
func ParseOpinion(text, model string) (*core.ReviewOpinion, error) {
	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		jsonStart := strings.IndexByte(text, '{')
		jsonEnd := strings.LastIndexByte(text, '}')
		if jsonStart < 0 || jsonEnd < jsonStart {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
		if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}

	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &core.ReviewOpinion{
		LikelySpam:  resp.LikelySpam,
		Confidence:  confidence,
		Explanation: resp.Explanation,
		Model:       model,
		ReviewedAt:  time.Now(),
	}, nil
}
