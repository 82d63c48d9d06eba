package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is missing or expired
	ErrNotFound = errors.New("key not found")
	// ErrStoreUnavailable is returned when the store cannot serve requests
	ErrStoreUnavailable = errors.New("key-value store unavailable")
)

// KeyValueStore defines the interface for the shared key-value store
type KeyValueStore interface {
	// Get returns the value of key or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with a TTL
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments key, resets its TTL and returns the new value
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete removes key
	Delete(ctx context.Context, key string) error

	// Keys lists live keys starting with prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// EmailClassifier scores an email address
type EmailClassifier interface {
	Assess(address string) *EmailAssessment
}

// NameAnalyzer scores a display name
type NameAnalyzer interface {
	Assess(name string) *NameAssessment
}

// ReputationTracker reads and mutates IP reputation records
type ReputationTracker interface {
	Get(ctx context.Context, ip string) (*IPReputation, error)
	Update(ctx context.Context, ip string, event ReputationEvent) (*IPReputation, error)
	ShouldBlock(ctx context.Context, ip string) (BlockDecision, error)
	List(ctx context.Context) ([]*IPReputation, error)
}

// TimingAnalyzer issues and validates form-start tokens
type TimingAnalyzer interface {
	IssueToken(ctx context.Context, form string) (*TimingToken, error)
	Validate(ctx context.Context, token, form string) *TimingAssessment
}

// AuditSink receives audit entries without blocking the caller
type AuditSink interface {
	Record(entry *AuditEntry)
}

// Reviewer produces an advisory opinion for review-band signups
type Reviewer interface {
	Review(ctx context.Context, entry *AuditEntry) (*ReviewOpinion, error)
}
