package name

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/reference"
	"github.com/mikey/signup-guard/internal/utils"
	"github.com/mikey/signup-guard/internal/whitelist"
)

const (
	WeightHighEntropy      = 25
	WeightLowEntropy       = 20
	WeightConsonantHeavy   = 30
	WeightVowelHeavy       = 15
	WeightKeyboardWalk     = 35
	WeightRepeatedChars    = 25
	WeightSpamPattern      = 45
	WeightStructural       = 25
	WhitelistBonus         = 30
	GibberishFoldRatio     = 0.5
	SuspiciousScore        = 50
	MaxScore               = 100
	MinLength              = 2
	MaxLength              = 50
	maxEntropy             = 4.2
	minEntropy             = 1.5
	maxConsonantVowelRatio = 4.0
	minConsonantVowelRatio = 0.3
	structuralLength       = 10
)

var allowedCharacters = regexp.MustCompile(`^[\p{L}\p{M}\s'\-]+$`)

// Analyzer scores display names for signs of machine generation.
// It is stateless after construction and safe for concurrent use.
type Analyzer struct {
	tables    *reference.Compiled
	text      *utils.TextProcessor
	whitelist *whitelist.Checker
	logger    *zap.Logger
}

// NewAnalyzer creates a name analyzer with the first-name whitelist enabled
func NewAnalyzer(tables *reference.Compiled, text *utils.TextProcessor, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		tables:    tables,
		text:      text,
		whitelist: whitelist.NewChecker(tables.CommonFirstNames, logger),
		logger:    logger,
	}
}

// WithoutWhitelist returns a copy of the analyzer that never applies the
// first-name bonus
func (a *Analyzer) WithoutWhitelist() *Analyzer {
	clone := *a
	clone.whitelist = nil
	return &clone
}

// Assess analyzes a single display name
func (a *Analyzer) Assess(name string) *core.NameAssessment {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(a.text.Fold(trimmed))
	normalized := strings.Join(strings.Fields(lower), " ")
	compact := strings.Join(strings.Fields(lower), "")
	length := utf8.RuneCountInString(trimmed)

	result := &core.NameAssessment{Reasons: []string{}}
	details := &result.Details
	details.TooShort = length < MinLength
	details.TooLong = length > MaxLength
	details.HasDigits = strings.IndexFunc(trimmed, unicode.IsDigit) >= 0
	details.IsAllCaps = isAllCaps(trimmed)
	result.IsValid = !details.TooShort && !details.TooLong && allowedCharacters.MatchString(trimmed)

	if compact == "" {
		result.SuspicionScore = MaxScore
		result.IsSuspicious = true
		result.Reasons = append(result.Reasons, "Name is empty")
		return result
	}

	score := 0
	add := func(weight int, reason string) {
		score += weight
		result.Reasons = append(result.Reasons, reason)
	}

	compactLen := utf8.RuneCountInString(compact)

	details.Entropy = shannonEntropy(compact)
	switch {
	case details.Entropy > maxEntropy:
		add(WeightHighEntropy, fmt.Sprintf("Name has unusually high entropy (%.2f)", details.Entropy))
	case details.Entropy < minEntropy && compactLen > 4:
		add(WeightLowEntropy, fmt.Sprintf("Name has unusually low entropy (%.2f)", details.Entropy))
	}

	details.ConsonantVowelRatio = consonantVowelRatio(compact)
	switch {
	case details.ConsonantVowelRatio > maxConsonantVowelRatio:
		add(WeightConsonantHeavy, "Name has too few vowels")
	case details.ConsonantVowelRatio < minConsonantVowelRatio && compactLen > 3:
		add(WeightVowelHeavy, "Name has too few consonants")
	}

	if p, ok := utils.FindKeyboardPattern(compact, a.tables.KeyboardPatterns); ok {
		details.HasKeyboardPattern = true
		add(WeightKeyboardWalk, fmt.Sprintf("Name contains keyboard pattern %q", p))
	}

	if hasRepeatedRun(compact, 3) {
		details.HasRepeatedCharacters = true
		add(WeightRepeatedChars, "Name repeats the same character three or more times")
	}

	if a.matchesSpamPattern(normalized) || hasRepeatedPrefix(compact) {
		add(WeightSpamPattern, "Name matches a known spam pattern")
	}

	gibberish, gibberishReasons := a.gibberish(lower, trimmed)
	details.GibberishScore = gibberish
	if gibberish > 0 {
		score += int(math.Round(float64(gibberish) * GibberishFoldRatio))
		result.Reasons = append(result.Reasons, gibberishReasons...)
	}

	whitelisted := false
	if a.whitelist != nil {
		if token, ok := a.whitelist.Match(normalized); ok {
			whitelisted = true
			details.WhitelistMatch = token
			score -= WhitelistBonus
			if score < 0 {
				score = 0
			}
			result.Reasons = append(result.Reasons, fmt.Sprintf("Contains common first name %q", token))
		}
	}

	if !whitelisted && compactLen > structuralLength && !strings.ContainsAny(normalized, " -") {
		add(WeightStructural, "Long name without spaces or hyphens")
	}

	if score > MaxScore {
		score = MaxScore
	}
	result.SuspicionScore = score
	result.IsSuspicious = score >= SuspiciousScore

	if result.IsSuspicious {
		a.logger.Debug("Suspicious name",
			zap.Int("score", score),
			zap.Int("gibberish", gibberish),
			zap.Strings("reasons", result.Reasons))
	}

	return result
}

func (a *Analyzer) matchesSpamPattern(normalized string) bool {
	for _, re := range a.tables.SpamNamePatterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// shannonEntropy returns the entropy in bits per character of s
func shannonEntropy(s string) float64 {
	counts := map[rune]int{}
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, n := range counts {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// consonantVowelRatio counts letters only. A name with no vowels reports its
// consonant count.
func consonantVowelRatio(s string) float64 {
	vowels, consonants := 0, 0
	for _, r := range s {
		switch {
		case isVowel(r):
			vowels++
		case unicode.IsLetter(r):
			consonants++
		}
	}
	if vowels == 0 {
		return float64(consonants)
	}
	return float64(consonants) / float64(vowels)
}

func hasRepeatedRun(s string, n int) bool {
	run := 0
	var prev rune
	for i, r := range []rune(s) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

// hasRepeatedPrefix detects names built from a short chunk repeated three or
// more times, like "abcabcabc" or "lalala". RE2 has no backreferences so
// this shape cannot live in the pattern table.
func hasRepeatedPrefix(s string) bool {
	runes := []rune(s)
	for k := 2; k <= 4; k++ {
		if len(runes) < 3*k {
			break
		}
		chunk := string(runes[:k])
		if strings.HasPrefix(s, strings.Repeat(chunk, 3)) {
			return true
		}
	}
	return false
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 1
}
