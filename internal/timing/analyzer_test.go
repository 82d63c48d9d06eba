package timing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/store"
	"github.com/mikey/signup-guard/internal/core"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type downStore struct{}

var errDown = errors.New("store down")

func (downStore) Get(context.Context, string) (string, error) { return "", errDown }
func (downStore) Set(context.Context, string, string, time.Duration) error { return errDown }
func (downStore) Incr(context.Context, string, time.Duration) (int64, error) { return 0, errDown }
func (downStore) Delete(context.Context, string) error { return errDown }
func (downStore) Keys(context.Context, string) ([]string, error) { return nil, errDown }

func newTestAnalyzer(t *testing.T, kv core.KeyValueStore, cfg Config) (*Analyzer, *time.Time) {
	t.Helper()
	if kv == nil {
		mem := store.NewMemoryStore(zap.NewNop(), 0)
		t.Cleanup(mem.Stop)
		kv = mem
	}
	now := epoch
	a := NewAnalyzer(kv, cfg, zap.NewNop())
	a.SetClock(func() time.Time { return now })
	return a, &now
}

func TestImmediateSubmissionIsBot(t *testing.T) {
	a, now := newTestAnalyzer(t, nil, Config{})
	ctx := context.Background()

	tok, err := a.IssueToken(ctx, RegistrationForm)
	require.NoError(t, err)

	*now = now.Add(50 * time.Millisecond)
	got := a.Validate(ctx, tok.Value, RegistrationForm)
	assert.True(t, got.IsBot)
	assert.Equal(t, 100, got.SuspicionScore)
	assert.Equal(t, int64(50), got.ElapsedMs)
	assert.Equal(t, int64(5000), got.ExpectedMinimumMs)
}

func TestElapsedScoring(t *testing.T) {
	tests := []struct {
		name           string
		form           string
		elapsed        time.Duration
		wantScore      int
		wantBot        bool
		wantSuspicious bool
	}{
		{"Human pace", RegistrationForm, 12 * time.Second, 0, false, false},
		{"Half the minimum", RegistrationForm, 2500 * time.Millisecond, 40, false, false},
		{"Just above bot threshold", RegistrationForm, 1600 * time.Millisecond, 54, false, true},
		{"Below bot threshold", RegistrationForm, 1499 * time.Millisecond, 100, true, true},
		{"Login under absolute floor", "login", 800 * time.Millisecond, 100, true, true},
		{"Login at human pace", "login", 3 * time.Second, 0, false, false},
		{"Unknown form uses default", "newsletter", 1500 * time.Millisecond, 40, false, false},
		{"Stale session", RegistrationForm, 15 * time.Minute, 20, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, now := newTestAnalyzer(t, nil, Config{})
			ctx := context.Background()

			tok, err := a.IssueToken(ctx, tc.form)
			require.NoError(t, err)

			*now = now.Add(tc.elapsed)
			got := a.Validate(ctx, tok.Value, tc.form)
			assert.Equal(t, tc.wantScore, got.SuspicionScore, "reasons: %v", got.Reasons)
			assert.Equal(t, tc.wantBot, got.IsBot)
			assert.Equal(t, tc.wantSuspicious, got.IsSuspicious)
		})
	}
}

func TestTokenIsSingleUse(t *testing.T) {
	mem := store.NewMemoryStore(zap.NewNop(), 0)
	defer mem.Stop()
	a, now := newTestAnalyzer(t, mem, Config{})
	ctx := context.Background()

	tok, err := a.IssueToken(ctx, RegistrationForm)
	require.NoError(t, err)
	*now = now.Add(10 * time.Second)

	first := a.Validate(ctx, tok.Value, RegistrationForm)
	assert.Equal(t, 0, first.SuspicionScore)

	_, err = mem.Get(ctx, KeyPrefix+tok.Value)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	second := a.Validate(ctx, tok.Value, RegistrationForm)
	assert.Contains(t, second.Reasons, "Timing token not found or already used")
	assert.Equal(t, int64(10_000), second.ElapsedMs)
}

func TestFutureTokenIsBot(t *testing.T) {
	a, now := newTestAnalyzer(t, nil, Config{})
	ctx := context.Background()

	tok, err := a.IssueTokenAt(ctx, RegistrationForm, now.Add(time.Minute))
	require.NoError(t, err)

	got := a.Validate(ctx, tok.Value, RegistrationForm)
	assert.True(t, got.IsBot)
	assert.Less(t, got.ElapsedMs, int64(0))
}

func TestStoreUnavailableFallsBackToEmbeddedTimestamp(t *testing.T) {
	a, now := newTestAnalyzer(t, downStore{}, Config{})
	ctx := context.Background()

	tok, err := a.IssueToken(ctx, RegistrationForm)
	require.NoError(t, err, "issuing must not fail when the store is down")

	*now = now.Add(300 * time.Millisecond)
	got := a.Validate(ctx, tok.Value, RegistrationForm)
	assert.True(t, got.IsBot)
	assert.Equal(t, int64(300), got.ElapsedMs)
}

func TestUnparseableTokenUsesDefaultElapsed(t *testing.T) {
	a, _ := newTestAnalyzer(t, downStore{}, Config{})

	for _, tok := range []string{"", "garbage", "_abc", "123_", "12x_abcd", "1700000000000_zz"} {
		got := a.Validate(context.Background(), tok, RegistrationForm)
		assert.False(t, got.IsBot, tok)
		assert.Equal(t, int64(30_000), got.ElapsedMs, tok)
		assert.Equal(t, 0, got.SuspicionScore, tok)
	}
}

func TestSignedTokens(t *testing.T) {
	a, now := newTestAnalyzer(t, downStore{}, Config{Secret: "s3cret"})
	ctx := context.Background()

	tok, err := a.IssueToken(ctx, RegistrationForm)
	require.NoError(t, err)
	stamp, suffix, _ := strings.Cut(tok.Value, "_")
	assert.Len(t, suffix, 32)

	*now = now.Add(200 * time.Millisecond)
	got := a.Validate(ctx, tok.Value, RegistrationForm)
	assert.True(t, got.IsBot)

	// a forged, older timestamp does not verify and is ignored
	forged := "1600000000000_" + suffix
	require.NotEqual(t, stamp, "1600000000000")
	got = a.Validate(ctx, forged, RegistrationForm)
	assert.False(t, got.IsBot)
	assert.Equal(t, int64(30_000), got.ElapsedMs)

	// an unsigned token is rejected by a signing analyzer
	unsigned := tokenCodec{}
	plain, err := unsigned.encode(*now)
	require.NoError(t, err)
	_, ok := a.codec.decode(plain)
	assert.False(t, ok)
}

func TestConfiguredForms(t *testing.T) {
	a, _ := newTestAnalyzer(t, nil, Config{Forms: map[string]core.FormTiming{
		"checkout": {MinimumTotalMs: 8000, BotThresholdMs: 2000},
	}})

	assert.Equal(t, int64(8000), a.FormTiming("checkout").MinimumTotalMs)
	assert.Equal(t, int64(5000), a.FormTiming("").MinimumTotalMs)
	assert.Equal(t, int64(3000), a.FormTiming("unknown").MinimumTotalMs)
}

func TestIssuedFormOverridesClaimedForm(t *testing.T) {
	a, now := newTestAnalyzer(t, nil, Config{})
	ctx := context.Background()

	tok, err := a.IssueToken(ctx, RegistrationForm)
	require.NoError(t, err)
	assert.Equal(t, RegistrationForm, tok.Form)

	// fast enough for login, too fast for registration
	*now = now.Add(time.Second)
	got := a.Validate(ctx, tok.Value, "login")
	assert.True(t, got.IsBot)
	assert.Equal(t, int64(5000), got.ExpectedMinimumMs)
}

func TestClaimedFormAppliesWithoutStoredEntry(t *testing.T) {
	mem := store.NewMemoryStore(zap.NewNop(), 0)
	defer mem.Stop()
	a, now := newTestAnalyzer(t, mem, Config{})
	ctx := context.Background()

	tok, err := a.IssueToken(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, RegistrationForm, tok.Form)
	require.NoError(t, mem.Delete(ctx, KeyPrefix+tok.Value))

	// a stamp stored without a form still parses
	bare, err := a.codec.encode(*now)
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, KeyPrefix+bare, "1700000000000", time.Minute))

	*now = now.Add(time.Second)
	got := a.Validate(ctx, tok.Value, "login")
	assert.False(t, got.IsBot)
	assert.Equal(t, int64(2000), got.ExpectedMinimumMs)

	got = a.Validate(ctx, bare, "login")
	assert.False(t, got.IsBot)
	assert.Equal(t, int64(1000), got.ElapsedMs)
	assert.Equal(t, int64(2000), got.ExpectedMinimumMs)
}
