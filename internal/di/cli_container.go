package di

import (
	"flag"
	"os"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/gateway"
	"github.com/mikey/signup-guard/internal/config"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/logging"
	"github.com/mikey/signup-guard/internal/timing"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Candidate flags
	Email    string
	Name     string
	IP       string
	Honeypot string
	Form     string
	Elapsed  time.Duration
	Quick    bool

	// Output flags
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// Candidate returns the signup attempt described by the flags
func (f *CLIFlags) Candidate() core.Candidate {
	return core.Candidate{
		Email:         f.Email,
		Name:          f.Name,
		IP:            f.IP,
		HoneypotValue: f.Honeypot,
		Form:          f.Form,
	}
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	// CommandLine exits on a parse error
	flags, _ := ParseFlagSet(flag.CommandLine, os.Args[1:])
	return flags
}

// ParseFlagSet registers the CLI flags on fs and parses args
func ParseFlagSet(fs *flag.FlagSet, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}

	// Candidate flags
	fs.StringVar(&flags.Email, "email", "", "Email address of the candidate")
	fs.StringVar(&flags.Name, "name", "", "Display name of the candidate")
	fs.StringVar(&flags.IP, "ip", "", "Source IP address of the candidate")
	fs.StringVar(&flags.Honeypot, "honeypot", "", "Value of the hidden honeypot field")
	fs.StringVar(&flags.Form, "form", "registration", "Form profile for timing checks")
	fs.DurationVar(&flags.Elapsed, "elapsed", 0, "Simulated form fill time (e.g. 8s); 0 skips the timing check")
	fs.BoolVar(&flags.Quick, "quick", false, "Score email and name only")

	// Output flags
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file for thresholds and reference data")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container
// for the CLI application. The store is always in memory and audit entries
// only go to the log.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		return createCLIConfig(flags, logger)
	}); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register CLI gateway
	if err := container.Provide(func(engine *core.RiskEngine, ta *timing.Analyzer, logger *zap.Logger, flags *CLIFlags) *gateway.CLIGateway {
		return gateway.NewCLIGateway(engine, ta, logger, flags.Verbose)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createCLIConfig loads the optional config file and pins the settings the
// CLI never takes from it
func createCLIConfig(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if flags.ConfigFile != "" {
		var err error
		cfg, err = config.NewFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = config.NewFromViper(config.NewEmptyViper())
	}

	v := cfg.GetViper()
	v.Set("store.type", "memory")
	v.Set("store.cleanup_frequency", "0s")
	v.Set("audit.type", "log")
	v.Set("reviewer.enabled", false)
	return cfg, nil
}
