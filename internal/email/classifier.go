package email

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/reference"
	"github.com/mikey/signup-guard/internal/utils"
)

const (
	WeightDisposable        = 100
	WeightSuspiciousPattern = 40
	WeightSuspiciousDomain  = 20
	WeightPlusAlias         = 10
	WeightShortLocal        = 15
	WeightNumericLocal      = 25
	WeightTrailingDigits    = 35
	WeightKeyboardWalk      = 20
	WeightLongAddress       = 15
	WeightDeepSubdomain     = 10

	// InvalidScore is at or above this, an address is not valid
	InvalidScore    = 80
	SuspiciousScore = 50
	MaxScore        = 100

	maxAddressLength = 100
	maxDomainLabels  = 3
)

var (
	numericLocal   = regexp.MustCompile(`^\d+$`)
	trailingDigits = regexp.MustCompile(`^[a-z]+\d{5,}$`)
)

// Classifier scores email addresses against the reference tables.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	tables *reference.Compiled
}

// NewClassifier creates a new email classifier
func NewClassifier(tables *reference.Compiled) *Classifier {
	return &Classifier{tables: tables}
}

// Assess classifies a single address
func (c *Classifier) Assess(address string) *core.EmailAssessment {
	normalized := strings.ToLower(strings.TrimSpace(address))
	result := &core.EmailAssessment{
		Address: normalized,
		Reasons: []string{},
	}

	parts := strings.Split(normalized, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		result.SuspicionScore = MaxScore
		result.IsSuspicious = true
		result.Reasons = append(result.Reasons, "Invalid email format")
		return result
	}
	local, domain := parts[0], parts[1]
	result.LocalPart = local
	result.Domain = domain

	score := 0
	add := func(weight int, reason string) {
		score += weight
		result.Reasons = append(result.Reasons, reason)
	}

	if _, ok := c.tables.DisposableDomains[domain]; ok {
		result.IsDisposable = true
		add(WeightDisposable, "Disposable email domain: "+domain)
	}

	for _, re := range c.tables.SuspiciousEmailPatterns {
		if re.MatchString(normalized) {
			add(WeightSuspiciousPattern, "Email matches a suspicious pattern")
			break
		}
	}

	if c.isSuspiciousDomain(domain) {
		add(WeightSuspiciousDomain, "Email domain is frequently abused: "+domain)
	}

	if strings.Contains(local, "+") {
		add(WeightPlusAlias, "Email uses a plus alias")
	}
	if len(local) <= 2 {
		add(WeightShortLocal, "Email local part is very short")
	}
	if numericLocal.MatchString(local) {
		add(WeightNumericLocal, "Email local part is only digits")
	}
	if trailingDigits.MatchString(local) {
		add(WeightTrailingDigits, "Email local part ends in a long digit run")
	}
	if p, ok := utils.FindKeyboardPattern(local, c.tables.KeyboardPatterns); ok {
		add(WeightKeyboardWalk, fmt.Sprintf("Email contains keyboard pattern %q", p))
	}
	if len(normalized) > maxAddressLength {
		add(WeightLongAddress, "Email address is unusually long")
	}
	if strings.Count(domain, ".")+1 > maxDomainLabels {
		add(WeightDeepSubdomain, "Email domain has many subdomains")
	}

	if score > MaxScore {
		score = MaxScore
	}
	result.SuspicionScore = score
	result.IsValid = !result.IsDisposable && score < InvalidScore
	result.IsSuspicious = score >= SuspiciousScore

	return result
}

// isSuspiciousDomain matches the domain exactly or as a subdomain of a listed entry
func (c *Classifier) isSuspiciousDomain(domain string) bool {
	for _, d := range c.tables.SuspiciousDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
