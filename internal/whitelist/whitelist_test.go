package whitelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMatch(t *testing.T) {
	c := NewChecker([]string{" Jan ", "anna", "Jose"}, zap.NewNop())

	tests := []struct {
		name      string
		input     string
		wantToken string
		wantOK    bool
	}{
		{"First token", "jan de vries", "jan", true},
		{"Hyphenated", "marie-anna", "anna", true},
		{"Apostrophe", "jose o'neil", "jose", true},
		{"Uppercase input", "JAN", "jan", true},
		{"Substring does not count", "janssen", "", false},
		{"No match", "xvnwoeifnwef", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token, ok := c.Match(tc.input)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantToken, token)
		})
	}
}

func TestEmptyChecker(t *testing.T) {
	c := NewChecker(nil, nil)
	_, ok := c.Match("jan")
	assert.False(t, ok)
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"anne", "marie", "o", "brien"}, Tokens("Anne-Marie  O'Brien"))
	assert.Empty(t, Tokens("   "))
}
