package core

import (
	"time"
)

// Recommendation is the action the registration workflow should take
type Recommendation string

const (
	RecommendAllow  Recommendation = "allow"
	RecommendReview Recommendation = "review"
	RecommendBlock  Recommendation = "block"
)

// Candidate is a signup attempt as collected by the registration workflow
type Candidate struct {
	Email         string
	Name          string
	IP            string
	TimingToken   string
	HoneypotValue string
	// Form selects the timing profile; empty means "registration"
	Form string
}

// EmailAssessment is the result of classifying an email address
type EmailAssessment struct {
	Address        string   `json:"address"`
	LocalPart      string   `json:"local_part"`
	Domain         string   `json:"domain"`
	IsValid        bool     `json:"is_valid"`
	IsDisposable   bool     `json:"is_disposable"`
	IsSuspicious   bool     `json:"is_suspicious"`
	SuspicionScore int      `json:"suspicion_score"`
	Reasons        []string `json:"reasons"`
}

// NameDetails carries the measurements behind a NameAssessment
type NameDetails struct {
	Entropy               float64 `json:"entropy"`
	ConsonantVowelRatio   float64 `json:"consonant_vowel_ratio"`
	HasKeyboardPattern    bool    `json:"has_keyboard_pattern"`
	HasRepeatedCharacters bool    `json:"has_repeated_characters"`
	HasDigits             bool    `json:"has_digits"`
	IsAllCaps             bool    `json:"is_all_caps"`
	TooShort              bool    `json:"too_short"`
	TooLong               bool    `json:"too_long"`
	GibberishScore        int     `json:"gibberish_score"`
	WhitelistMatch        string  `json:"whitelist_match,omitempty"`
}

// NameAssessment is the result of analyzing a display name
type NameAssessment struct {
	IsValid        bool        `json:"is_valid"`
	IsSuspicious   bool        `json:"is_suspicious"`
	SuspicionScore int         `json:"suspicion_score"`
	Reasons        []string    `json:"reasons"`
	Details        NameDetails `json:"details"`
}

// ReputationEvent names an observation that mutates an IP reputation record
type ReputationEvent string

const (
	EventFailedRegistration     ReputationEvent = "failed_registration"
	EventSuccessfulRegistration ReputationEvent = "successful_registration"
	EventSpamAccountCreated     ReputationEvent = "spam_account_created"
	EventRateLimitHit           ReputationEvent = "rate_limit_hit"
)

// Valid reports whether e is one of the known reputation events
func (e ReputationEvent) Valid() bool {
	switch e {
	case EventFailedRegistration, EventSuccessfulRegistration, EventSpamAccountCreated, EventRateLimitHit:
		return true
	}
	return false
}

// Reputation flags
const (
	FlagDatacenterIP     = "datacenter_ip"
	FlagTorExit          = "tor_exit"
	FlagSpamCreator      = "spam_creator"
	FlagMultipleAccounts = "multiple_accounts"
	FlagRateLimitAbuser  = "rate_limit_abuser"
)

// IPReputation is the persisted reputation record of a network address
type IPReputation struct {
	IP                      string    `json:"ip"`
	Score                   int       `json:"score"`
	FailedRegistrations     int64     `json:"failed_registrations"`
	SuccessfulRegistrations int64     `json:"successful_registrations"`
	SpamAccountsCreated     int64     `json:"spam_accounts_created"`
	RateLimitHits           int64     `json:"rate_limit_hits"`
	Flags                   []string  `json:"flags"`
	FirstSeen               time.Time `json:"first_seen"`
	LastActivity            time.Time `json:"last_activity"`
	IsBlocked               bool      `json:"is_blocked"`
}

// HasFlag reports whether the record carries flag
func (r *IPReputation) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag adds flag once and reports whether it was new
func (r *IPReputation) AddFlag(flag string) bool {
	if r.HasFlag(flag) {
		return false
	}
	r.Flags = append(r.Flags, flag)
	return true
}

// BlockDecision is the outcome of an IP block check
type BlockDecision struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// TimingToken is an opaque form-start token
type TimingToken struct {
	Value     string    `json:"token"`
	Form      string    `json:"form"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FormTiming holds the expected fill-time bounds for one logical form
type FormTiming struct {
	MinimumTotalMs int64 `mapstructure:"minimum_total_ms" json:"minimum_total_ms"`
	BotThresholdMs int64 `mapstructure:"bot_threshold_ms" json:"bot_threshold_ms"`
}

// TimingAssessment is the result of validating a timing token
type TimingAssessment struct {
	IsBot             bool     `json:"is_bot"`
	IsSuspicious      bool     `json:"is_suspicious"`
	SuspicionScore    int      `json:"suspicion_score"`
	Reasons           []string `json:"reasons"`
	ElapsedMs         int64    `json:"elapsed_ms"`
	ExpectedMinimumMs int64    `json:"expected_minimum_ms"`
}

// SpamVerdict is the fused decision returned to the registration workflow
type SpamVerdict struct {
	IsSpam            bool              `json:"is_spam"`
	IsHighRisk        bool              `json:"is_high_risk"`
	ShouldBlock       bool              `json:"should_block"`
	OverallScore      int               `json:"overall_score"`
	Reasons           []string          `json:"reasons"`
	Email             *EmailAssessment  `json:"email,omitempty"`
	Name              *NameAssessment   `json:"name,omitempty"`
	IPReputation      *IPReputation     `json:"ip_reputation,omitempty"`
	IPBlock           *BlockDecision    `json:"ip_block,omitempty"`
	Timing            *TimingAssessment `json:"timing,omitempty"`
	HoneypotTriggered bool              `json:"honeypot_triggered"`
	Recommendation    Recommendation    `json:"recommendation"`
}

// Audit actions
const (
	AuditActionHoneypot = "signup_honeypot_triggered"
	AuditActionHighRisk = "signup_high_risk"
)

// ClientInfo identifies the submitter of an audited signup
type ClientInfo struct {
	IP string `json:"ip"`
}

// ReviewOpinion is an advisory second opinion attached to audited review-band signups
type ReviewOpinion struct {
	LikelySpam  bool      `json:"likely_spam"`
	Confidence  float64   `json:"confidence"`
	Explanation string    `json:"explanation"`
	Model       string    `json:"model"`
	ReviewedAt  time.Time `json:"reviewed_at"`
}

// AuditEntry is a fire-and-forget record handed to the audit sink
type AuditEntry struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Action     string                 `json:"action"`
	Details    map[string]interface{} `json:"details"`
	ClientInfo ClientInfo             `json:"client_info"`
	Success    bool                   `json:"success"`
	// Name is kept for advisory review and never written by log sinks
	Name     string         `json:"-"`
	Advisory *ReviewOpinion `json:"advisory,omitempty"`
}

// Recommendation returns the verdict recommendation recorded in the entry details
func (e *AuditEntry) Recommendation() Recommendation {
	if r, ok := e.Details["recommendation"].(Recommendation); ok {
		return r
	}
	if s, ok := e.Details["recommendation"].(string); ok {
		return Recommendation(s)
	}
	return ""
}
