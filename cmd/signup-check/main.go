package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/audit"
	"github.com/mikey/signup-guard/internal/adapters/gateway"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/di"
)

func main() {
	flags := di.ParseFlags()
	if flags.Email == "" && flags.Name == "" && flags.Honeypot == "" {
		fmt.Fprintln(os.Stderr, "usage: signup-check -email ADDRESS -name NAME [-ip IP] [-elapsed 8s] [-quick]")
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	var verdict *core.SpamVerdict
	err = container.Invoke(func(logger *zap.Logger, cli *gateway.CLIGateway, dispatcher *audit.Dispatcher) error {
		defer func() { _ = logger.Sync() }()

		var err error
		verdict, err = cli.Check(context.Background(), flags.Candidate(), flags.Elapsed, flags.Quick)

		// flush audit entries before exiting
		if dispatcher != nil {
			if cerr := dispatcher.Close(); cerr != nil {
				logger.Error("Failed to close audit dispatcher", zap.Error(cerr))
			}
		}
		return err
	})
	if err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}

	if flags.Verbose {
		out, _ := json.MarshalIndent(verdict, "", "  ")
		fmt.Printf("\n%s\n", out)
	}

	// exit status mirrors the recommendation for use in scripts
	switch verdict.Recommendation {
	case core.RecommendBlock:
		os.Exit(3)
	case core.RecommendReview:
		os.Exit(4)
	}
}
