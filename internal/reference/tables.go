package reference

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultTables []byte

// ErrMissingTable is returned when a required reference table is empty
var ErrMissingTable = errors.New("missing reference table")

// Tables holds the static detection data
type Tables struct {
	DisposableDomains       []string `yaml:"disposable_domains"`
	SuspiciousDomains       []string `yaml:"suspicious_domains"`
	SuspiciousEmailPatterns []string `yaml:"suspicious_email_patterns"`
	KeyboardPatterns        []string `yaml:"keyboard_patterns"`
	SpamNamePatterns        []string `yaml:"spam_name_patterns"`
	CommonFirstNames        []string `yaml:"common_first_names"`
	CommonConsonantClusters []string `yaml:"common_consonant_clusters"`
	DatacenterIPPrefixes    []string `yaml:"datacenter_ip_prefixes"`
	TorExitPrefixes         []string `yaml:"tor_exit_prefixes"`
}

// Compiled is the validated, lookup-ready form of Tables
type Compiled struct {
	DisposableDomains       map[string]struct{}
	SuspiciousDomains       []string
	SuspiciousEmailPatterns []*regexp.Regexp
	KeyboardPatterns        []string
	SpamNamePatterns        []*regexp.Regexp
	CommonFirstNames        []string
	CommonConsonantClusters map[string]struct{}
	DatacenterIPPrefixes    []string
	TorExitPrefixes         []string
}

// Default returns the embedded tables
func Default() (*Tables, error) {
	return parse(defaultTables)
}

// Load reads tables from path, or the embedded defaults when path is empty
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference data: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse reference data: %w", err)
	}
	return &t, nil
}

// Compile validates the tables and prepares them for lookups
func (t *Tables) Compile() (*Compiled, error) {
	required := map[string][]string{
		"disposable_domains":        t.DisposableDomains,
		"suspicious_domains":        t.SuspiciousDomains,
		"suspicious_email_patterns": t.SuspiciousEmailPatterns,
		"keyboard_patterns":         t.KeyboardPatterns,
		"spam_name_patterns":        t.SpamNamePatterns,
		"common_first_names":        t.CommonFirstNames,
		"common_consonant_clusters": t.CommonConsonantClusters,
		"datacenter_ip_prefixes":    t.DatacenterIPPrefixes,
		"tor_exit_prefixes":         t.TorExitPrefixes,
	}
	for name, values := range required {
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingTable, name)
		}
	}

	emailPatterns, err := compileAll(t.SuspiciousEmailPatterns)
	if err != nil {
		return nil, fmt.Errorf("suspicious_email_patterns: %w", err)
	}
	namePatterns, err := compileAll(t.SpamNamePatterns)
	if err != nil {
		return nil, fmt.Errorf("spam_name_patterns: %w", err)
	}

	return &Compiled{
		DisposableDomains:       toSet(t.DisposableDomains),
		SuspiciousDomains:       normalize(t.SuspiciousDomains),
		SuspiciousEmailPatterns: emailPatterns,
		KeyboardPatterns:        normalize(t.KeyboardPatterns),
		SpamNamePatterns:        namePatterns,
		CommonFirstNames:        normalize(t.CommonFirstNames),
		CommonConsonantClusters: toSet(t.CommonConsonantClusters),
		DatacenterIPPrefixes:    trim(t.DatacenterIPPrefixes),
		TorExitPrefixes:         trim(t.TorExitPrefixes),
	}, nil
}

// LoadCompiled loads and compiles tables in one step
func LoadCompiled(path string) (*Compiled, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}
	return t.Compile()
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func trim(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range normalize(values) {
		set[v] = struct{}{}
	}
	return set
}
