package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/signup-guard/internal/reference"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	tables, err := reference.LoadCompiled("")
	require.NoError(t, err)
	return NewClassifier(tables)
}

func TestAssess(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name           string
		address        string
		wantDisposable bool
		wantValid      bool
		wantSuspicious bool
		wantScoreMin   int
		wantScoreMax   int
	}{
		{
			name:         "Ordinary address",
			address:      "jan.devries@gmail.com",
			wantValid:    true,
			wantScoreMin: 0,
			wantScoreMax: 0,
		},
		{
			name:           "Disposable domain",
			address:        "user@10minutemail.com",
			wantDisposable: true,
			wantValid:      false,
			wantSuspicious: true,
			wantScoreMin:   100,
			wantScoreMax:   100,
		},
		{
			name:         "Plus alias is informational",
			address:      "jan+news@gmail.com",
			wantValid:    true,
			wantScoreMin: 10,
			wantScoreMax: 10,
		},
		{
			name:           "Letters then digits",
			address:        "ab12345@gmail.com",
			wantValid:      false,
			wantSuspicious: true,
			// pattern(40) + trailing digits(35) + "1234"(20)
			wantScoreMin: 95,
			wantScoreMax: 95,
		},
		{
			name:           "All digits local part",
			address:        "1234567@example.com",
			wantValid:      true,
			wantSuspicious: false,
			// numeric(25) + keyboard "1234"(20)
			wantScoreMin: 45,
			wantScoreMax: 45,
		},
		{
			name:         "Short local part on risky TLD",
			address:      "jo@something.tk",
			wantValid:    true,
			wantScoreMin: 35,
			wantScoreMax: 35,
		},
		{
			name:           "Keyboard walk on risky domain",
			address:        "qwertyuser@mail.ru",
			wantValid:      true,
			wantSuspicious: false,
			wantScoreMin:   40,
			wantScoreMax:   40,
		},
		{
			name:         "Deep subdomain",
			address:      "anna@mx.mail.corp.example.com",
			wantValid:    true,
			wantScoreMin: 10,
			wantScoreMax: 10,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Assess(tc.address)
			assert.Equal(t, tc.wantDisposable, got.IsDisposable, "disposable")
			assert.Equal(t, tc.wantValid, got.IsValid, "valid")
			assert.Equal(t, tc.wantSuspicious, got.IsSuspicious, "suspicious")
			assert.GreaterOrEqual(t, got.SuspicionScore, tc.wantScoreMin, "reasons: %v", got.Reasons)
			assert.LessOrEqual(t, got.SuspicionScore, tc.wantScoreMax, "reasons: %v", got.Reasons)
		})
	}
}

func TestAssessMalformed(t *testing.T) {
	c := newTestClassifier(t)

	for _, addr := range []string{"", "no-at-sign", "@example.com", "user@", "a@b@c"} {
		t.Run(addr, func(t *testing.T) {
			got := c.Assess(addr)
			assert.Equal(t, 100, got.SuspicionScore)
			assert.True(t, got.IsSuspicious)
			assert.False(t, got.IsValid)
		})
	}
}

func TestDisposableForcesInvalid(t *testing.T) {
	c := newTestClassifier(t)

	for _, local := range []string{"jan", "jan.de.vries", "x", "99"} {
		got := c.Assess(local + "@mailinator.com")
		assert.True(t, got.IsDisposable, local)
		assert.False(t, got.IsValid, local)
	}
}

func TestAssessIsDeterministicAndBounded(t *testing.T) {
	c := newTestClassifier(t)

	inputs := []string{
		"qwerty12345+spam@a.b.c.d.10minutemail.com",
		strings.Repeat("a", 120) + "@x.tk",
		"test1@yopmail.com",
		"Jan.DeVries@Example.COM",
	}
	for _, in := range inputs {
		first := c.Assess(in)
		second := c.Assess(in)
		assert.Equal(t, first, second)
		assert.GreaterOrEqual(t, first.SuspicionScore, 0)
		assert.LessOrEqual(t, first.SuspicionScore, 100)
	}
}
