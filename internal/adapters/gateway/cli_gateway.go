package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/utils"
)

// TokenIssuer issues timing tokens stamped with an arbitrary start time
type TokenIssuer interface {
	IssueTokenAt(ctx context.Context, form string, issuedAt time.Time) (*core.TimingToken, error)
}

// CLIGateway evaluates a single candidate and prints an itemized verdict
type CLIGateway struct {
	engine  *core.RiskEngine
	issuer  TokenIssuer
	logger  *zap.Logger
	verbose bool
	out     io.Writer
}

// NewCLIGateway creates a new CLI gateway writing to stdout
func NewCLIGateway(engine *core.RiskEngine, issuer TokenIssuer, logger *zap.Logger, verbose bool) *CLIGateway {
	return &CLIGateway{
		engine:  engine,
		issuer:  issuer,
		logger:  logger,
		verbose: verbose,
		out:     os.Stdout,
	}
}

// SetOutput redirects the report, for tests
func (g *CLIGateway) SetOutput(w io.Writer) {
	g.out = w
}

// Check evaluates c and prints the result. elapsed > 0 simulates a form that
// took that long to fill by issuing a backdated timing token.
func (g *CLIGateway) Check(ctx context.Context, c core.Candidate, elapsed time.Duration, quick bool) (*core.SpamVerdict, error) {
	g.logger.Debug("Checking candidate", zap.String("email", utils.MaskEmail(c.Email)), zap.String("ip", c.IP))

	fmt.Fprintf(g.out, "\n=== Candidate ===\n")
	fmt.Fprintf(g.out, "Email: %s\n", c.Email)
	fmt.Fprintf(g.out, "Name: %s\n", c.Name)
	if c.IP != "" {
		fmt.Fprintf(g.out, "IP: %s\n", c.IP)
	}
	if c.Form != "" {
		fmt.Fprintf(g.out, "Form: %s\n", c.Form)
	}

	if !quick && elapsed > 0 && c.TimingToken == "" && g.issuer != nil {
		tok, err := g.issuer.IssueTokenAt(ctx, c.Form, time.Now().Add(-elapsed))
		if err != nil {
			g.logger.Error("Failed to issue timing token", zap.Error(err))
			return nil, err
		}
		c.TimingToken = tok.Value
		fmt.Fprintf(g.out, "Simulated fill time: %v\n", elapsed)
	}

	startTime := time.Now()
	var verdict *core.SpamVerdict
	if quick {
		verdict = g.engine.QuickCheck(c.Email, c.Name)
	} else {
		verdict = g.engine.Evaluate(ctx, c)
	}
	duration := time.Since(startTime)

	g.print(verdict)
	if g.verbose {
		fmt.Fprintf(g.out, "Processing time: %v\n", duration)
	}
	return verdict, nil
}

func (g *CLIGateway) print(v *core.SpamVerdict) {
	fmt.Fprintf(g.out, "\n=== Results ===\n")
	fmt.Fprintf(g.out, "Recommendation: %s\n", strings.ToUpper(string(v.Recommendation)))
	fmt.Fprintf(g.out, "Overall score: %d\n", v.OverallScore)
	fmt.Fprintf(g.out, "Is spam: %t\n", v.IsSpam)
	fmt.Fprintf(g.out, "High risk: %t\n", v.IsHighRisk)

	if v.HoneypotTriggered {
		fmt.Fprintf(g.out, "Honeypot: triggered\n")
		return
	}

	if v.Email != nil {
		fmt.Fprintf(g.out, "\nEmail: score %d, valid %t, disposable %t\n", v.Email.SuspicionScore, v.Email.IsValid, v.Email.IsDisposable)
		printReasons(g.out, v.Email.Reasons)
	}
	if v.Name != nil {
		fmt.Fprintf(g.out, "Name: score %d, valid %t", v.Name.SuspicionScore, v.Name.IsValid)
		if v.Name.Details.WhitelistMatch != "" {
			fmt.Fprintf(g.out, ", whitelisted %q", v.Name.Details.WhitelistMatch)
		}
		fmt.Fprintln(g.out)
		if g.verbose {
			fmt.Fprintf(g.out, "  entropy %.2f, consonant/vowel %.2f, gibberish %d\n",
				v.Name.Details.Entropy, v.Name.Details.ConsonantVowelRatio, v.Name.Details.GibberishScore)
		}
		printReasons(g.out, v.Name.Reasons)
	}
	if v.IPReputation != nil {
		fmt.Fprintf(g.out, "IP reputation: score %d, flags %v\n", v.IPReputation.Score, v.IPReputation.Flags)
	}
	if v.IPBlock != nil && v.IPBlock.Blocked {
		fmt.Fprintf(g.out, "IP blocked: %s\n", v.IPBlock.Reason)
	}
	if v.Timing != nil {
		fmt.Fprintf(g.out, "Timing: score %d, elapsed %dms (minimum %dms), bot %t\n",
			v.Timing.SuspicionScore, v.Timing.ElapsedMs, v.Timing.ExpectedMinimumMs, v.Timing.IsBot)
		printReasons(g.out, v.Timing.Reasons)
	}
}

func printReasons(w io.Writer, reasons []string) {
	for _, r := range reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}

// Start is a no-op for the CLI gateway
func (g *CLIGateway) Start() error {
	return nil
}

// Stop is a no-op for the CLI gateway
func (g *CLIGateway) Stop() error {
	return nil
}
