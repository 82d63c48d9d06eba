package whitelist

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Checker recognises common given names inside a display name
type Checker struct {
	names  map[string]struct{}
	logger *zap.Logger
}

// NewChecker creates a new whitelist checker
func NewChecker(names []string, logger *zap.Logger) *Checker {
	// Normalize names (lowercase)
	normalized := make(map[string]struct{}, len(names))
	for _, name := range names {
		if n := strings.ToLower(strings.TrimSpace(name)); n != "" {
			normalized[n] = struct{}{}
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized first-name whitelist", zap.Int("names", len(normalized)))
	}

	return &Checker{
		names:  normalized,
		logger: logger,
	}
}

// Match returns the first token of name that is a whitelisted given name.
// Tokens are delimited by whitespace, hyphens and apostrophes.
func (c *Checker) Match(name string) (string, bool) {
	if len(c.names) == 0 {
		return "", false
	}

	for _, token := range Tokens(name) {
		if _, ok := c.names[token]; ok {
			if c.logger != nil {
				c.logger.Debug("Name token is whitelisted", zap.String("token", token))
			}
			return token, true
		}
	}

	return "", false
}

// Tokens splits a lowercased name into its whitespace, hyphen and apostrophe
// delimited parts
func Tokens(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '\'' || r == '’'
	})
}
