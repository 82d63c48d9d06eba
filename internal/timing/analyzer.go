package timing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
)

const (
	KeyPrefix = "spam:timing:"

	DefaultForm      = "default"
	RegistrationForm = "registration"

	// AbsoluteFloorMs is the fastest any human completes any form
	AbsoluteFloorMs = 1000
	ShortfallWeight = 80
	StalePenalty    = 20
	BotScore        = 90
	SuspiciousScore = 50
	MaxScore        = 100

	DefaultTokenTTL       = 10 * time.Minute
	DefaultElapsedUnknown = 30 * time.Second
)

// DefaultForms are the built-in per-form fill-time bounds
var DefaultForms = map[string]core.FormTiming{
	RegistrationForm: {MinimumTotalMs: 5000, BotThresholdMs: 1500},
	"login":          {MinimumTotalMs: 2000, BotThresholdMs: 500},
	"contact":        {MinimumTotalMs: 4000, BotThresholdMs: 1000},
	DefaultForm:      {MinimumTotalMs: 3000, BotThresholdMs: 800},
}

// Config holds the timing analyzer settings
type Config struct {
	TokenTTL time.Duration
	// DefaultElapsed is assumed when no start time can be recovered
	DefaultElapsed time.Duration
	Secret         string
	Forms          map[string]core.FormTiming
}

// Analyzer issues single-use form-start tokens and scores how fast a form
// came back
type Analyzer struct {
	store  core.KeyValueStore
	cfg    Config
	codec  tokenCodec
	logger *zap.Logger
	now    func() time.Time
}

// NewAnalyzer creates a timing analyzer; zero config fields take defaults
func NewAnalyzer(store core.KeyValueStore, cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.DefaultElapsed <= 0 {
		cfg.DefaultElapsed = DefaultElapsedUnknown
	}
	forms := make(map[string]core.FormTiming, len(DefaultForms)+len(cfg.Forms))
	for name, f := range DefaultForms {
		forms[name] = f
	}
	for name, f := range cfg.Forms {
		forms[name] = f
	}
	cfg.Forms = forms

	return &Analyzer{
		store:  store,
		cfg:    cfg,
		codec:  tokenCodec{secret: []byte(cfg.Secret)},
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source, for tests
func (a *Analyzer) SetClock(now func() time.Time) {
	a.now = now
}

// FormTiming returns the bounds for form, falling back to the default profile
func (a *Analyzer) FormTiming(form string) core.FormTiming {
	if form == "" {
		form = RegistrationForm
	}
	if f, ok := a.cfg.Forms[form]; ok {
		return f
	}
	return a.cfg.Forms[DefaultForm]
}

// IssueToken issues a token for form stamped with the current time
func (a *Analyzer) IssueToken(ctx context.Context, form string) (*core.TimingToken, error) {
	return a.IssueTokenAt(ctx, form, a.now())
}

// IssueTokenAt issues a token for form stamped with issuedAt. The form is
// stored with the stamp and wins over whatever form the submission claims.
// A store failure is logged and the token is still returned, since
// validation can recover the start time from the token itself.
func (a *Analyzer) IssueTokenAt(ctx context.Context, form string, issuedAt time.Time) (*core.TimingToken, error) {
	if form == "" {
		form = RegistrationForm
	}
	value, err := a.codec.encode(issuedAt)
	if err != nil {
		return nil, err
	}

	stamp := strconv.FormatInt(issuedAt.UnixMilli(), 10) + ":" + form
	if err := a.store.Set(ctx, KeyPrefix+value, stamp, a.cfg.TokenTTL); err != nil {
		a.logger.Warn("Failed to persist timing token", zap.Error(err))
	}
	metrics.TimingTokens.WithLabelValues("issued").Inc()

	return &core.TimingToken{
		Value:     value,
		Form:      form,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(a.cfg.TokenTTL),
	}, nil
}

// Validate consumes token and scores the elapsed fill time. The form the
// token was issued for takes precedence over form; form only applies when
// the stored entry is gone.
func (a *Analyzer) Validate(ctx context.Context, token, form string) *core.TimingAssessment {
	result := &core.TimingAssessment{
		Reasons: []string{},
	}

	now := a.now()
	issuedAt, issuedFor, ok := a.lookup(ctx, token, result)
	if issuedFor != "" {
		form = issuedFor
	}
	profile := a.FormTiming(form)
	result.ExpectedMinimumMs = profile.MinimumTotalMs
	var elapsedMs int64
	if ok {
		elapsedMs = now.Sub(issuedAt).Milliseconds()
	} else {
		elapsedMs = a.cfg.DefaultElapsed.Milliseconds()
		metrics.TimingTokens.WithLabelValues("unparseable").Inc()
		result.Reasons = append(result.Reasons, "Form start time unknown")
	}
	result.ElapsedMs = elapsedMs

	score(result, elapsedMs, profile, a.cfg.TokenTTL.Milliseconds())

	a.logger.Debug("Validated timing token",
		zap.String("form", form),
		zap.Int64("elapsed_ms", elapsedMs),
		zap.Int("score", result.SuspicionScore))

	return result
}

// lookup resolves the issuance time and form, preferring the stored value
// and consuming it, then the timestamp embedded in the token
func (a *Analyzer) lookup(ctx context.Context, token string, result *core.TimingAssessment) (time.Time, string, bool) {
	if token == "" {
		return time.Time{}, "", false
	}

	key := KeyPrefix + token
	raw, err := a.store.Get(ctx, key)
	if err == nil {
		if delErr := a.store.Delete(ctx, key); delErr != nil {
			a.logger.Warn("Failed to consume timing token", zap.Error(delErr))
		}
		stamp, form, _ := strings.Cut(raw, ":")
		if ms, parseErr := strconv.ParseInt(stamp, 10, 64); parseErr == nil {
			metrics.TimingTokens.WithLabelValues("consumed").Inc()
			return time.UnixMilli(ms), form, true
		}
		a.logger.Warn("Stored timing token is corrupt", zap.String("value", raw))
	} else if errors.Is(err, core.ErrNotFound) {
		result.Reasons = append(result.Reasons, "Timing token not found or already used")
	} else {
		a.logger.Warn("Timing store unavailable, using token timestamp", zap.Error(err))
	}

	issuedAt, ok := a.codec.decode(token)
	if ok {
		metrics.TimingTokens.WithLabelValues("fallback").Inc()
	}
	return issuedAt, "", ok
}

func score(result *core.TimingAssessment, elapsedMs int64, profile core.FormTiming, ttlMs int64) {
	if elapsedMs < 0 || elapsedMs < profile.BotThresholdMs {
		result.IsBot = true
		result.IsSuspicious = true
		result.SuspicionScore = MaxScore
		if elapsedMs < 0 {
			result.Reasons = append(result.Reasons, "Form submitted before it was issued")
		} else {
			result.Reasons = append(result.Reasons, fmt.Sprintf("Form completed in %dms, below the bot threshold of %dms", elapsedMs, profile.BotThresholdMs))
		}
		return
	}

	s := 0
	if elapsedMs < profile.MinimumTotalMs {
		shortfall := 1 - float64(elapsedMs)/float64(profile.MinimumTotalMs)
		s = int(math.Round(shortfall * ShortfallWeight))
		result.Reasons = append(result.Reasons, fmt.Sprintf("Form completed in %dms, expected at least %dms", elapsedMs, profile.MinimumTotalMs))
	}
	if elapsedMs < AbsoluteFloorMs {
		s = MaxScore
		result.Reasons = append(result.Reasons, "Form completed faster than any human could")
	}
	if elapsedMs > ttlMs {
		s += StalePenalty
		result.Reasons = append(result.Reasons, "Form session is older than the token lifetime")
	}

	if s > MaxScore {
		s = MaxScore
	}
	result.SuspicionScore = s
	result.IsBot = s >= BotScore
	result.IsSuspicious = s >= SuspiciousScore
}
