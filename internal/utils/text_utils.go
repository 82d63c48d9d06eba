package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TextProcessor provides utilities for processing text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]

	// Drop trailing bytes of a split multi-byte rune
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + "\n[... truncated ...]"
}

// SanitizeUTF8 ensures the string contains only valid UTF-8 characters
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(string(result))))

	return string(result)
}

// ProcessText truncates and sanitizes text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(text, maxSize))
}

// Fold strips diacritics so that "José" and "jose" compare equal.
// A transformer is built per call because transform.Transformer is stateful.
func (tp *TextProcessor) Fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, tp.SanitizeUTF8(text))
	if err != nil {
		tp.logger.Debug("Failed to fold text", zap.Error(err))
		return text
	}
	return folded
}

// MaskEmail hides most of the local part of an address for logs and audit records
func MaskEmail(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		runes := []rune(address)
		if len(runes) <= 2 {
			return "***"
		}
		return string(runes[:2]) + "***"
	}

	local, domain := address[:at], address[at+1:]
	visible := 2
	if len([]rune(local)) <= visible {
		visible = 1
	}
	if local == "" {
		return "***@" + domain
	}
	return string([]rune(local)[:visible]) + "***@" + domain
}

// FindKeyboardPattern returns the first keyboard-walk pattern contained in text
func FindKeyboardPattern(text string, patterns []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}
