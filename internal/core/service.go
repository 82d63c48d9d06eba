package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/metrics"
	"github.com/mikey/signup-guard/internal/utils"
)

// Fusion weights and thresholds
const (
	DisposableEmailWeight   = 50
	SuspiciousEmailFactor   = 0.5
	SuspiciousNameFactor    = 0.5
	ModerateNameFactor      = 0.3
	SuspiciousNameScore     = 50
	ModerateNameScore       = 30
	CombinationScore        = 40
	CombinationBonus        = 20
	BlockedIPWeight         = 40
	ReputationScoreFloor    = 30
	ReputationFactor        = 0.2
	BotTimingWeight         = 50
	SuspiciousTimingFactor  = 0.3
	BlockScore              = 70
	ReviewScore             = 40
	HighRiskScore           = 50
	QuickBlockScore         = 60
	MaxScore                = 100
	DefaultStoreCallTimeout = 250 * time.Millisecond
)

// RiskEngine fuses the detector outputs into one signup verdict
type RiskEngine struct {
	email        EmailClassifier
	name         NameAnalyzer
	reputation   ReputationTracker
	timing       TimingAnalyzer
	audit        AuditSink
	logger       *zap.Logger
	storeTimeout time.Duration
}

// NewRiskEngine creates a new risk engine. reputation, timing and audit may be
// nil, in which case those signals are skipped.
func NewRiskEngine(
	email EmailClassifier,
	name NameAnalyzer,
	reputation ReputationTracker,
	timing TimingAnalyzer,
	audit AuditSink,
	logger *zap.Logger,
	storeTimeout time.Duration,
) *RiskEngine {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreCallTimeout
	}
	return &RiskEngine{
		email:        email,
		name:         name,
		reputation:   reputation,
		timing:       timing,
		audit:        audit,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// Evaluate scores one signup attempt. It never fails: store problems degrade
// the affected signal to zero and are logged.
func (e *RiskEngine) Evaluate(ctx context.Context, c Candidate) *SpamVerdict {
	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.WithLabelValues("evaluate").Observe(time.Since(start).Seconds())
	}()

	// Honeypot first, before any store round-trip
	if c.HoneypotValue != "" {
		verdict := &SpamVerdict{
			IsSpam:            true,
			IsHighRisk:        true,
			ShouldBlock:       true,
			OverallScore:      MaxScore,
			Reasons:           []string{"Honeypot field was filled in"},
			HoneypotTriggered: true,
			Recommendation:    RecommendBlock,
		}
		metrics.HoneypotTriggers.Inc()
		metrics.Verdicts.WithLabelValues("evaluate", string(verdict.Recommendation)).Inc()
		e.logger.Info("Honeypot triggered", zap.String("ip", c.IP), zap.String("email", utils.MaskEmail(c.Email)))
		e.report(AuditActionHoneypot, c, verdict)
		return verdict
	}

	var (
		wg      sync.WaitGroup
		emailA  *EmailAssessment
		nameA   *NameAssessment
		rep     *IPReputation
		block   *BlockDecision
		timingA *TimingAssessment
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		emailA = e.email.Assess(c.Email)
	}()
	go func() {
		defer wg.Done()
		nameA = e.name.Assess(c.Name)
	}()

	if e.reputation != nil && c.IP != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, block = e.checkIP(ctx, c.IP)
		}()
	}

	if e.timing != nil && c.TimingToken != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
			defer cancel()
			timingA = e.timing.Validate(tctx, c.TimingToken, c.Form)
		}()
	}

	wg.Wait()

	verdict := &SpamVerdict{
		Email:        emailA,
		Name:         nameA,
		IPReputation: rep,
		IPBlock:      block,
		Timing:       timingA,
		Reasons:      []string{},
	}

	score := e.fuseEmailAndName(verdict)

	ipBlocked := block != nil && block.Blocked
	switch {
	case ipBlocked:
		score += BlockedIPWeight
		verdict.Reasons = append(verdict.Reasons, block.Reason)
	case rep != nil && rep.Score > ReputationScoreFloor:
		score += float64(rep.Score) * ReputationFactor
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("IP reputation score %d", rep.Score))
	}

	if timingA != nil {
		switch {
		case timingA.IsBot:
			score += BotTimingWeight
			verdict.Reasons = append(verdict.Reasons, timingA.Reasons...)
		case timingA.IsSuspicious:
			score += float64(timingA.SuspicionScore) * SuspiciousTimingFactor
			verdict.Reasons = append(verdict.Reasons, timingA.Reasons...)
		}
	}

	verdict.OverallScore = clamp(score)
	verdict.IsSpam = verdict.OverallScore >= BlockScore
	verdict.IsHighRisk = verdict.OverallScore >= HighRiskScore

	switch {
	case verdict.OverallScore >= BlockScore, emailA.IsDisposable, ipBlocked:
		verdict.Recommendation = RecommendBlock
	case verdict.OverallScore >= ReviewScore:
		verdict.Recommendation = RecommendReview
	default:
		verdict.Recommendation = RecommendAllow
	}
	verdict.ShouldBlock = verdict.Recommendation == RecommendBlock

	metrics.Verdicts.WithLabelValues("evaluate", string(verdict.Recommendation)).Inc()
	e.logger.Debug("Evaluated signup",
		zap.String("email", utils.MaskEmail(c.Email)),
		zap.String("ip", c.IP),
		zap.Int("score", verdict.OverallScore),
		zap.String("recommendation", string(verdict.Recommendation)))

	if verdict.IsHighRisk {
		e.report(AuditActionHighRisk, c, verdict)
	}

	return verdict
}

// QuickCheck scores email and name only, for live validation before submit.
// With less evidence it blocks at a lower score.
func (e *RiskEngine) QuickCheck(emailAddress, displayName string) *SpamVerdict {
	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.WithLabelValues("quick").Observe(time.Since(start).Seconds())
	}()

	verdict := &SpamVerdict{
		Email:   e.email.Assess(emailAddress),
		Name:    e.name.Assess(displayName),
		Reasons: []string{},
	}

	verdict.OverallScore = clamp(e.fuseEmailAndName(verdict))
	verdict.IsSpam = verdict.OverallScore >= QuickBlockScore
	verdict.IsHighRisk = verdict.OverallScore >= HighRiskScore

	switch {
	case verdict.OverallScore >= QuickBlockScore, verdict.Email.IsDisposable:
		verdict.Recommendation = RecommendBlock
	case verdict.OverallScore >= ReviewScore:
		verdict.Recommendation = RecommendReview
	default:
		verdict.Recommendation = RecommendAllow
	}
	verdict.ShouldBlock = verdict.Recommendation == RecommendBlock

	metrics.Verdicts.WithLabelValues("quick", string(verdict.Recommendation)).Inc()
	return verdict
}

// fuseEmailAndName applies the email, name and combination weights
func (e *RiskEngine) fuseEmailAndName(verdict *SpamVerdict) float64 {
	emailA, nameA := verdict.Email, verdict.Name
	score := 0.0

	switch {
	case emailA.IsDisposable:
		score += DisposableEmailWeight
		verdict.Reasons = append(verdict.Reasons, emailA.Reasons...)
	case emailA.IsSuspicious:
		score += float64(emailA.SuspicionScore) * SuspiciousEmailFactor
		verdict.Reasons = append(verdict.Reasons, emailA.Reasons...)
	}

	switch {
	case nameA.SuspicionScore >= SuspiciousNameScore:
		score += float64(nameA.SuspicionScore) * SuspiciousNameFactor
		verdict.Reasons = append(verdict.Reasons, nameA.Reasons...)
	case nameA.SuspicionScore >= ModerateNameScore:
		score += float64(nameA.SuspicionScore) * ModerateNameFactor
		verdict.Reasons = append(verdict.Reasons, nameA.Reasons...)
	}

	if nameA.SuspicionScore >= CombinationScore && emailA.SuspicionScore >= CombinationScore {
		score += CombinationBonus
		verdict.Reasons = append(verdict.Reasons, "Both name and email look suspicious")
	}

	return score
}

// checkIP reads the reputation record and block decision, failing open
func (e *RiskEngine) checkIP(ctx context.Context, ip string) (*IPReputation, *BlockDecision) {
	rctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	rep, err := e.reputation.Get(rctx, ip)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			metrics.DetectorFailures.WithLabelValues("reputation").Inc()
			e.logger.Warn("IP reputation lookup failed, ignoring signal", zap.String("ip", ip), zap.Error(err))
			return nil, nil
		}
		rep = nil
	}

	decision, err := e.reputation.ShouldBlock(rctx, ip)
	if err != nil {
		metrics.DetectorFailures.WithLabelValues("block_check").Inc()
		e.logger.Warn("IP block check failed, ignoring signal", zap.String("ip", ip), zap.Error(err))
		return rep, nil
	}
	return rep, &decision
}

// report hands a verdict to the audit sink without waiting for delivery
func (e *RiskEngine) report(action string, c Candidate, verdict *SpamVerdict) {
	if e.audit == nil {
		return
	}
	e.audit.Record(&AuditEntry{
		Timestamp: time.Now(),
		Action:    action,
		Details: map[string]interface{}{
			"email":          utils.MaskEmail(c.Email),
			"score":          verdict.OverallScore,
			"recommendation": verdict.Recommendation,
			"reasons":        verdict.Reasons,
			"form":           c.Form,
		},
		ClientInfo: ClientInfo{IP: c.IP},
		Success:    false,
		Name:       c.Name,
	})
}

// MarkAccountAsSpam folds a confirmed spam account back into the reputation
// of the address it was registered from
func (e *RiskEngine) MarkAccountAsSpam(ctx context.Context, ip string) (*IPReputation, error) {
	return e.RecordEvent(ctx, ip, EventSpamAccountCreated)
}

// RecordEvent reports a registration outcome for ip
func (e *RiskEngine) RecordEvent(ctx context.Context, ip string, event ReputationEvent) (*IPReputation, error) {
	if e.reputation == nil {
		return nil, ErrStoreUnavailable
	}
	rctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	rep, err := e.reputation.Update(rctx, ip, event)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s for %s: %w", event, ip, err)
	}
	return rep, nil
}

// IssueTimingToken issues a form-start token bound to form
func (e *RiskEngine) IssueTimingToken(ctx context.Context, form string) (*TimingToken, error) {
	if e.timing == nil {
		return nil, ErrStoreUnavailable
	}
	tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.timing.IssueToken(tctx, form)
}

// Reputation returns the record and block decision for ip
func (e *RiskEngine) Reputation(ctx context.Context, ip string) (*IPReputation, BlockDecision, error) {
	if e.reputation == nil {
		return nil, BlockDecision{}, ErrStoreUnavailable
	}
	rctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	rep, err := e.reputation.Get(rctx, ip)
	if err != nil {
		return nil, BlockDecision{}, err
	}
	decision, err := e.reputation.ShouldBlock(rctx, ip)
	if err != nil {
		return rep, BlockDecision{}, err
	}
	return rep, decision, nil
}

// ListReputations returns every live reputation record
func (e *RiskEngine) ListReputations(ctx context.Context) ([]*IPReputation, error) {
	if e.reputation == nil {
		return nil, ErrStoreUnavailable
	}
	return e.reputation.List(ctx)
}

func clamp(score float64) int {
	s := int(math.Round(score))
	if s < 0 {
		return 0
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}
