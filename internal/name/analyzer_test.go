package name

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/reference"
	"github.com/mikey/signup-guard/internal/utils"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	tables, err := reference.LoadCompiled("")
	require.NoError(t, err)
	logger := zap.NewNop()
	return NewAnalyzer(tables, utils.NewTextProcessor(logger), logger)
}

func TestAssessKnownNames(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		name           string
		input          string
		wantValid      bool
		wantSuspicious bool
	}{
		{"Dutch name with whitelist hit", "Jan de Vries", true, false},
		{"Accented name", "José García", true, false},
		{"Long single token", "Christopher", true, false},
		{"Polish name", "Krzysztof Kowalski", true, false},
		{"Hyphenated", "Anne-Marie O'Brien", true, false},
		{"Random consonant string", "Xvnwoeifnwef", true, true},
		{"All consonants", "bcdfgh", true, true},
		{"Repeated character", "aaaaaa", true, true},
		{"Random capitalization", "xVnWoeifnwef", true, true},
		{"Digits suffix", "john123", false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := a.Assess(tc.input)
			assert.Equal(t, tc.wantValid, got.IsValid, "valid")
			assert.Equal(t, tc.wantSuspicious, got.IsSuspicious, "score %d reasons %v", got.SuspicionScore, got.Reasons)
		})
	}
}

func TestAssessJanDeVries(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.Assess("Jan de Vries")
	assert.False(t, got.IsSuspicious)
	assert.Equal(t, 0, got.SuspicionScore)
	assert.Equal(t, "jan", got.Details.WhitelistMatch)
}

func TestAssessGibberish(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.Assess("Xvnwoeifnwef")
	// gibberish 75 folded to 38, plus the structural penalty
	assert.Equal(t, 75, got.Details.GibberishScore)
	assert.Equal(t, 63, got.SuspicionScore)
	assert.Empty(t, got.Details.WhitelistMatch)
}

func TestAssessRules(t *testing.T) {
	a := newTestAnalyzer(t)

	t.Run("Keyboard walk", func(t *testing.T) {
		got := a.Assess("qwerty")
		assert.True(t, got.Details.HasKeyboardPattern)
		assert.Equal(t, 35, got.SuspicionScore)
	})

	t.Run("Spam literal", func(t *testing.T) {
		got := a.Assess("test user")
		assert.Equal(t, 45, got.SuspicionScore)
	})

	t.Run("Repeated prefix", func(t *testing.T) {
		got := a.Assess("abcabcabc")
		assert.GreaterOrEqual(t, got.SuspicionScore, 45)
	})

	t.Run("Repeated characters", func(t *testing.T) {
		got := a.Assess("aaaaaa")
		assert.True(t, got.Details.HasRepeatedCharacters)
		assert.Equal(t, 100, got.SuspicionScore)
	})

	t.Run("Details flags", func(t *testing.T) {
		got := a.Assess("JOHN123")
		assert.True(t, got.Details.HasDigits)
		assert.True(t, got.Details.IsAllCaps)
		assert.False(t, got.IsValid)
	})
}

func TestAssessLengthBounds(t *testing.T) {
	a := newTestAnalyzer(t)

	short := a.Assess("J")
	assert.True(t, short.Details.TooShort)
	assert.False(t, short.IsValid)

	long := a.Assess(strings.Repeat("Anna ", 12))
	assert.True(t, long.Details.TooLong)
	assert.False(t, long.IsValid)

	empty := a.Assess("   ")
	assert.Equal(t, 100, empty.SuspicionScore)
	assert.False(t, empty.IsValid)
}

func TestWhitelistNeverIncreasesScore(t *testing.T) {
	a := newTestAnalyzer(t)
	plain := a.WithoutWhitelist()

	names := []string{
		"Jan de Vries",
		"jan",
		"Xvnwoeifnwef Jan",
		"Maria-Xkcdqzvb",
		"anna qwerty",
		"Mohammed Bcdfgh",
		"Olga",
	}
	for _, n := range names {
		with := a.Assess(n)
		without := plain.Assess(n)
		assert.LessOrEqual(t, with.SuspicionScore, without.SuspicionScore, n)
	}
}

func TestAssessIsDeterministicAndBounded(t *testing.T) {
	a := newTestAnalyzer(t)

	inputs := []string{
		"Xvnwoeifnwef",
		"zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz",
		"qwertyasdfzxcv1234",
		"Ünïcødé Nàmé",
		"",
		"a",
	}
	for _, in := range inputs {
		first := a.Assess(in)
		second := a.Assess(in)
		assert.Equal(t, first, second, in)
		assert.GreaterOrEqual(t, first.SuspicionScore, 0, in)
		assert.LessOrEqual(t, first.SuspicionScore, 100, in)
		assert.GreaterOrEqual(t, first.Details.GibberishScore, 0, in)
		assert.LessOrEqual(t, first.Details.GibberishScore, 100, in)
	}
}

func TestShannonEntropy(t *testing.T) {
	assert.Equal(t, 0.0, shannonEntropy(""))
	assert.Equal(t, 0.0, shannonEntropy("aaaa"))
	assert.InDelta(t, 1.0, shannonEntropy("abab"), 1e-9)
	assert.InDelta(t, 2.0, shannonEntropy("abcd"), 1e-9)
}
