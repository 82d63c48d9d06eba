package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
	"github.com/mikey/signup-guard/internal/reference"
)

const (
	KeyPrefix = "spam:ip:"

	ScoreFailedRegistration = 10
	ScoreExtraAccount       = 5
	ScoreSpamAccount        = 30
	ScoreRateLimitHit       = 5
	ScoreDatacenter         = 15
	ScoreTorExit            = 25
	MaxScore                = 100

	// AccountsBeforePenalty successful registrations are free
	AccountsBeforePenalty = 5
	RateLimitAbuseCount   = 10

	BlockedScore          = 80
	BlockCheckScore       = 70
	BlockSpamAccounts     = 2
	BlockAccountFarmCount = 10

	DefaultTTL = 30 * 24 * time.Hour
)

var ErrUnknownEvent = errors.New("unknown reputation event")

// Tracker maintains per-address reputation records in a key-value store.
// Counters are kept in their own keys and bumped with the store's atomic
// Incr, and the score is recomputed from them on every update, so two racing
// updates can lose a snapshot write but never a counted event.
type Tracker struct {
	store      core.KeyValueStore
	ttl        time.Duration
	datacenter *RangeSet
	tor        *RangeSet
	logger     *zap.Logger
	now        func() time.Time
}

// NewTracker creates a reputation tracker
func NewTracker(store core.KeyValueStore, tables *reference.Compiled, ttl time.Duration, logger *zap.Logger) (*Tracker, error) {
	datacenter, err := NewRangeSet(tables.DatacenterIPPrefixes)
	if err != nil {
		return nil, fmt.Errorf("datacenter_ip_prefixes: %w", err)
	}
	tor, err := NewRangeSet(tables.TorExitPrefixes)
	if err != nil {
		return nil, fmt.Errorf("tor_exit_prefixes: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Tracker{
		store:      store,
		ttl:        ttl,
		datacenter: datacenter,
		tor:        tor,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// SetClock replaces the time source, for tests
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Canonical returns the normalized text form of ip, so every spelling of an
// address shares one record. IPv4-mapped IPv6 addresses collapse to IPv4.
// Unparseable input is returned unchanged.
func Canonical(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ip
	}
	return addr.Unmap().String()
}

func recordKey(ip string) string {
	return KeyPrefix + ip
}

func counterKey(ip string, event core.ReputationEvent) string {
	return recordKey(ip) + ":" + string(event)
}

// Get returns the stored record for ip, or core.ErrNotFound
func (t *Tracker) Get(ctx context.Context, ip string) (*core.IPReputation, error) {
	ip = Canonical(ip)
	raw, err := t.store.Get(ctx, recordKey(ip))
	if err != nil {
		return nil, err
	}

	var rec core.IPReputation
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode reputation for %s: %w", ip, err)
	}
	return &rec, nil
}

// Update applies one event to the record of ip and returns the new record
func (t *Tracker) Update(ctx context.Context, ip string, event core.ReputationEvent) (*core.IPReputation, error) {
	if !event.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	ip = Canonical(ip)
	now := t.now()

	rec, err := t.Get(ctx, ip)
	switch {
	case errors.Is(err, core.ErrNotFound):
		rec = &core.IPReputation{
			IP:        ip,
			Flags:     []string{},
			FirstSeen: now,
		}
	case err != nil:
		return nil, err
	}

	count, err := t.store.Incr(ctx, counterKey(ip, event), t.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to increment %s counter: %w", event, err)
	}

	switch event {
	case core.EventFailedRegistration:
		rec.FailedRegistrations = max(rec.FailedRegistrations+1, count)
	case core.EventSuccessfulRegistration:
		rec.SuccessfulRegistrations = max(rec.SuccessfulRegistrations+1, count)
		if rec.SuccessfulRegistrations > AccountsBeforePenalty {
			rec.AddFlag(core.FlagMultipleAccounts)
		}
	case core.EventSpamAccountCreated:
		rec.SpamAccountsCreated = max(rec.SpamAccountsCreated+1, count)
		rec.AddFlag(core.FlagSpamCreator)
	case core.EventRateLimitHit:
		rec.RateLimitHits = max(rec.RateLimitHits+1, count)
		if rec.RateLimitHits > RateLimitAbuseCount {
			rec.AddFlag(core.FlagRateLimitAbuser)
		}
	}

	t.classify(rec)
	rec.Score = Score(rec)
	if rec.Score >= BlockedScore && !rec.IsBlocked {
		rec.IsBlocked = true
		t.logger.Warn("IP address blocked",
			zap.String("ip", ip),
			zap.Int("score", rec.Score),
			zap.Strings("flags", rec.Flags))
	}
	rec.LastActivity = now

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reputation for %s: %w", ip, err)
	}
	if err := t.store.Set(ctx, recordKey(ip), string(data), t.ttl); err != nil {
		return nil, fmt.Errorf("failed to save reputation for %s: %w", ip, err)
	}

	metrics.ReputationEvents.WithLabelValues(string(event)).Inc()
	t.logger.Debug("Updated IP reputation",
		zap.String("ip", ip),
		zap.String("event", string(event)),
		zap.Int("score", rec.Score))

	return rec, nil
}

// classify adds the static network flags
func (t *Tracker) classify(rec *core.IPReputation) {
	if t.datacenter.Contains(rec.IP) {
		rec.AddFlag(core.FlagDatacenterIP)
	}
	if t.tor.Contains(rec.IP) {
		rec.AddFlag(core.FlagTorExit)
	}
}

// Score recomputes the reputation score from counters and flags. Applying the
// per-event increments one at a time gives the same total.
func Score(rec *core.IPReputation) int {
	score := rec.FailedRegistrations*ScoreFailedRegistration +
		max(0, rec.SuccessfulRegistrations-AccountsBeforePenalty)*ScoreExtraAccount +
		rec.SpamAccountsCreated*ScoreSpamAccount +
		rec.RateLimitHits*ScoreRateLimitHit
	if rec.HasFlag(core.FlagDatacenterIP) {
		score += ScoreDatacenter
	}
	if rec.HasFlag(core.FlagTorExit) {
		score += ScoreTorExit
	}
	if score > MaxScore {
		score = MaxScore
	}
	return int(score)
}

// ShouldBlock decides whether signups from ip should be rejected outright.
// An address with no record is never blocked.
func (t *Tracker) ShouldBlock(ctx context.Context, ip string) (core.BlockDecision, error) {
	ip = Canonical(ip)
	rec, err := t.Get(ctx, ip)
	if errors.Is(err, core.ErrNotFound) {
		return core.BlockDecision{}, nil
	}
	if err != nil {
		return core.BlockDecision{}, err
	}
	return Decide(rec), nil
}

// Decide applies the block rules to a record
func Decide(rec *core.IPReputation) core.BlockDecision {
	switch {
	case rec.IsBlocked:
		return core.BlockDecision{Blocked: true, Reason: "IP address is blocked"}
	case rec.Score >= BlockCheckScore:
		return core.BlockDecision{Blocked: true, Reason: fmt.Sprintf("IP reputation score too high (%d)", rec.Score)}
	case rec.SpamAccountsCreated >= BlockSpamAccounts:
		return core.BlockDecision{Blocked: true, Reason: fmt.Sprintf("IP has created multiple spam accounts (%d)", rec.SpamAccountsCreated)}
	case rec.SuccessfulRegistrations >= BlockAccountFarmCount:
		return core.BlockDecision{Blocked: true, Reason: fmt.Sprintf("Too many accounts registered from this IP (%d)", rec.SuccessfulRegistrations)}
	}
	return core.BlockDecision{}
}

// List returns every live reputation record, for operators
func (t *Tracker) List(ctx context.Context) ([]*core.IPReputation, error) {
	keys, err := t.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}

	records := []*core.IPReputation{}
	for _, key := range keys {
		if isCounterKey(key) {
			continue
		}
		rec, err := t.Get(ctx, strings.TrimPrefix(key, KeyPrefix))
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// isCounterKey distinguishes counters from records. IPv6 addresses contain
// colons so the event suffix is the only reliable marker.
func isCounterKey(key string) bool {
	for _, e := range []core.ReputationEvent{
		core.EventFailedRegistration,
		core.EventSuccessfulRegistration,
		core.EventSpamAccountCreated,
		core.EventRateLimitHit,
	} {
		if strings.HasSuffix(key, ":"+string(e)) {
			return true
		}
	}
	return false
}
