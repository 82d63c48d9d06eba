package reputation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/store"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/reference"
)

const cleanIP = "198.51.100.7"

func newTestTracker(t *testing.T) (*Tracker, *store.MemoryStore) {
	t.Helper()
	tables, err := reference.LoadCompiled("")
	require.NoError(t, err)

	kv := store.NewMemoryStore(zap.NewNop(), 0)
	t.Cleanup(kv.Stop)

	tracker, err := NewTracker(kv, tables, DefaultTTL, zap.NewNop())
	require.NoError(t, err)
	return tracker, kv
}

func TestGetUnknown(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.Get(context.Background(), cleanIP)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	decision, err := tracker.ShouldBlock(context.Background(), cleanIP)
	require.NoError(t, err)
	assert.False(t, decision.Blocked)
}

func TestEventScores(t *testing.T) {
	tests := []struct {
		name      string
		event     core.ReputationEvent
		times     int
		wantScore int
		wantFlag  string
	}{
		{"Failed registrations", core.EventFailedRegistration, 3, 30, ""},
		{"Few successes are free", core.EventSuccessfulRegistration, 5, 0, ""},
		{"Extra successes", core.EventSuccessfulRegistration, 7, 10, core.FlagMultipleAccounts},
		{"Spam account", core.EventSpamAccountCreated, 1, 30, core.FlagSpamCreator},
		{"Rate limit hits", core.EventRateLimitHit, 4, 20, ""},
		{"Rate limit abuser", core.EventRateLimitHit, 11, 55, core.FlagRateLimitAbuser},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tracker, _ := newTestTracker(t)
			ctx := context.Background()

			var rec *core.IPReputation
			var err error
			for i := 0; i < tc.times; i++ {
				rec, err = tracker.Update(ctx, cleanIP, tc.event)
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantScore, rec.Score)
			if tc.wantFlag != "" {
				assert.True(t, rec.HasFlag(tc.wantFlag), "flags: %v", rec.Flags)
			}

			stored, err := tracker.Get(ctx, cleanIP)
			require.NoError(t, err)
			assert.Equal(t, rec.Score, stored.Score)
		})
	}
}

func TestStaticFlags(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tracker.Update(ctx, "185.220.101.4", core.EventFailedRegistration)
	require.NoError(t, err)
	assert.True(t, rec.HasFlag(core.FlagTorExit))
	assert.Equal(t, 35, rec.Score)

	// a second event does not add the flag bonus twice
	rec, err = tracker.Update(ctx, "185.220.101.4", core.EventFailedRegistration)
	require.NoError(t, err)
	assert.Equal(t, 45, rec.Score)
	assert.Len(t, rec.Flags, 1)

	rec, err = tracker.Update(ctx, "34.100.1.1", core.EventSuccessfulRegistration)
	require.NoError(t, err)
	assert.True(t, rec.HasFlag(core.FlagDatacenterIP))
	assert.Equal(t, 15, rec.Score)
}

func TestMonotonicScoreAndStickyBlock(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	prev := 0
	for i := 0; i < 12; i++ {
		rec, err := tracker.Update(ctx, cleanIP, core.EventFailedRegistration)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.Score, prev)
		assert.LessOrEqual(t, rec.Score, 100)
		if rec.Score >= 80 {
			assert.True(t, rec.IsBlocked)
		}
		prev = rec.Score
	}

	rec, err := tracker.Get(ctx, cleanIP)
	require.NoError(t, err)
	assert.True(t, rec.IsBlocked)
	assert.Equal(t, 100, rec.Score)

	decision, err := tracker.ShouldBlock(ctx, cleanIP)
	require.NoError(t, err)
	assert.True(t, decision.Blocked)
	assert.Equal(t, "IP address is blocked", decision.Reason)
}

func TestCountersSurviveLostSnapshot(t *testing.T) {
	tracker, kv := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Update(ctx, cleanIP, core.EventFailedRegistration)
	require.NoError(t, err)

	// a racing writer bumped the counter but its record write was lost
	_, err = kv.Incr(ctx, counterKey(cleanIP, core.EventFailedRegistration), time.Hour)
	require.NoError(t, err)

	rec, err := tracker.Update(ctx, cleanIP, core.EventFailedRegistration)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.FailedRegistrations)
	assert.Equal(t, 30, rec.Score)
}

func TestShouldBlockRepeatSpam(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := tracker.Update(ctx, cleanIP, core.EventSpamAccountCreated)
		require.NoError(t, err)
	}

	decision, err := tracker.ShouldBlock(ctx, cleanIP)
	require.NoError(t, err)
	assert.True(t, decision.Blocked)
	assert.Contains(t, decision.Reason, "multiple spam accounts")
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		rec     core.IPReputation
		blocked bool
		reason  string
	}{
		{"Clean", core.IPReputation{Score: 20}, false, ""},
		{"Sticky block", core.IPReputation{IsBlocked: true}, true, "blocked"},
		{"High score", core.IPReputation{Score: 70}, true, "score too high"},
		{"Repeat spam", core.IPReputation{SpamAccountsCreated: 2}, true, "spam accounts"},
		{"Account farm", core.IPReputation{SuccessfulRegistrations: 10}, true, "Too many accounts"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(&tc.rec)
			assert.Equal(t, tc.blocked, d.Blocked)
			assert.Contains(t, d.Reason, tc.reason)
		})
	}
}

func TestUnknownEvent(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.Update(context.Background(), cleanIP, "bogus")
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestList(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Update(ctx, cleanIP, core.EventFailedRegistration)
	require.NoError(t, err)
	_, err = tracker.Update(ctx, "2001:db8::1", core.EventRateLimitHit)
	require.NoError(t, err)

	records, err := tracker.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	ips := []string{records[0].IP, records[1].IP}
	assert.ElementsMatch(t, []string{cleanIP, "2001:db8::1"}, ips)
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"198.51.100.7", "198.51.100.7"},
		{" 198.51.100.7 ", "198.51.100.7"},
		{"2001:DB8::1", "2001:db8::1"},
		{"2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1"},
		{"::ffff:198.51.100.7", "198.51.100.7"},
		{"not-an-ip", "not-an-ip"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Canonical(tc.in))
		})
	}
}

func TestSpellingsShareOneRecord(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Update(ctx, "2001:DB8::1", core.EventSpamAccountCreated)
	require.NoError(t, err)
	rec, err := tracker.Update(ctx, "2001:0db8::0001", core.EventSpamAccountCreated)
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", rec.IP)
	assert.Equal(t, int64(2), rec.SpamAccountsCreated)

	for _, ip := range []string{"2001:DB8::1", "2001:db8::1", "2001:0db8:0:0:0:0:0:1"} {
		decision, err := tracker.ShouldBlock(ctx, ip)
		require.NoError(t, err)
		assert.True(t, decision.Blocked, ip)
	}

	_, err = tracker.Update(ctx, "::ffff:198.51.100.7", core.EventFailedRegistration)
	require.NoError(t, err)
	rec, err = tracker.Get(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.FailedRegistrations)

	records, err := tracker.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRangeSet(t *testing.T) {
	rs, err := NewRangeSet([]string{"185.220.101.", "104.196.0.0/14", "2001:db8::/32"})
	require.NoError(t, err)

	assert.True(t, rs.Contains("185.220.101.9"))
	assert.True(t, rs.Contains("104.197.3.4"))
	assert.True(t, rs.Contains("::ffff:104.197.3.4"))
	assert.True(t, rs.Contains("2001:db8:1::5"))
	assert.False(t, rs.Contains("185.220.10.9"))
	assert.False(t, rs.Contains("not-an-ip"))

	_, err = NewRangeSet([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}
