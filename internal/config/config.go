package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fleetmx/fleetmx/internal/retry"
)

type Config struct {
	// Inputs
	DomainsFile  string `mapstructure:"DOMAINS_FILE"`   // one domain per line, # comments allowed
	NamePoolFile string `mapstructure:"NAME_POOL_FILE"` // optional yaml name pools, empty = built-in pools

	// Provisioning behavior
	ForwardTo      string  `mapstructure:"FORWARD_TO"`       // destination mailbox for every alias
	AliasCount     int     `mapstructure:"ALIAS_COUNT"`      // aliases per domain, info included
	FirstNameRatio float64 `mapstructure:"FIRST_NAME_RATIO"` // share of first-name-only aliases
	DryRun         bool    `mapstructure:"DRY_RUN"`          // suppress every mutating external call

	// Providers
	ForwardEmailAPIKey  string        `mapstructure:"FORWARDEMAIL_API_KEY"`
	ForwardEmailBaseURL string        `mapstructure:"FORWARDEMAIL_BASE_URL"` // override for tests only
	CloudflareAPIToken  string        `mapstructure:"CLOUDFLARE_API_TOKEN"`
	CloudflareBaseURL   string        `mapstructure:"CLOUDFLARE_BASE_URL"` // override for tests only
	HTTPTimeout         time.Duration `mapstructure:"HTTP_TIMEOUT"`

	// Pacing
	PropagationWait   time.Duration `mapstructure:"PROPAGATION_WAIT"`    // single batch-wide DNS wait
	VerifyMaxAttempts int           `mapstructure:"VERIFY_MAX_ATTEMPTS"` // status polls per domain
	VerifyDelay       time.Duration `mapstructure:"VERIFY_DELAY"`        // fixed wait between polls
	AliasMaxRetries   int           `mapstructure:"ALIAS_MAX_RETRIES"`   // alias batch attempts per domain
	AliasBackoffBase  time.Duration `mapstructure:"ALIAS_BACKOFF_BASE"`  // doubles per attempt
	APIMaxRetries     int           `mapstructure:"API_MAX_RETRIES"`     // registration and DNS calls
	APIBackoffBase    time.Duration `mapstructure:"API_BACKOFF_BASE"`

	// Artifacts
	StateFile   string `mapstructure:"STATE_FILE"`
	ExportFile  string `mapstructure:"EXPORT_FILE"`
	FailureFile string `mapstructure:"FAILURE_FILE"` // jsonl failure journal, empty = disabled
	ReportFile  string `mapstructure:"REPORT_FILE"`  // audit report, .json or .csv

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `mapstructure:"PRETTY_LOG"` // true => zap dev (color), false => zap prod (JSON)
	LogFile   string `mapstructure:"LOG_FILE"`   // duplicate logs to this file, empty = stderr only

	// Ops server
	OpsEnabled      bool          `mapstructure:"OPS_ENABLED"`
	OpsListen       string        `mapstructure:"OPS_LISTEN"` // ex: "127.0.0.1:8080"
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	AllowedCIDRS    string        `mapstructure:"ALLOWED_CIDRS"` // comma-separated IPs/CIDRs

	// Audit
	AuditConcurrency int `mapstructure:"AUDIT_CONCURRENCY"`
}

// Load reads configuration from defaults, an optional config file and
// FLEETMX_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()

	// Inputs
	v.SetDefault("DOMAINS_FILE", "domains.txt")
	v.SetDefault("NAME_POOL_FILE", "")

	// Provisioning behavior
	v.SetDefault("FORWARD_TO", "")
	v.SetDefault("ALIAS_COUNT", 50)
	v.SetDefault("FIRST_NAME_RATIO", 0.6)
	v.SetDefault("DRY_RUN", false)

	// Providers
	v.SetDefault("FORWARDEMAIL_API_KEY", "")
	v.SetDefault("FORWARDEMAIL_BASE_URL", "")
	v.SetDefault("CLOUDFLARE_API_TOKEN", "")
	v.SetDefault("CLOUDFLARE_BASE_URL", "")
	v.SetDefault("HTTP_TIMEOUT", 30*time.Second)

	// Pacing
	v.SetDefault("PROPAGATION_WAIT", 180*time.Second)
	v.SetDefault("VERIFY_MAX_ATTEMPTS", 5)
	v.SetDefault("VERIFY_DELAY", 15*time.Second)
	v.SetDefault("ALIAS_MAX_RETRIES", 3)
	v.SetDefault("ALIAS_BACKOFF_BASE", 2*time.Second)
	v.SetDefault("API_MAX_RETRIES", 3)
	v.SetDefault("API_BACKOFF_BASE", 2*time.Second)

	// Artifacts
	v.SetDefault("STATE_FILE", "state/domains.json")
	v.SetDefault("EXPORT_FILE", "state/aliases.txt")
	v.SetDefault("FAILURE_FILE", "state/failures.jsonl")
	v.SetDefault("REPORT_FILE", "state/audit.json")

	// Logging
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PRETTY_LOG", true)
	v.SetDefault("LOG_FILE", "")

	// Ops server
	v.SetDefault("OPS_ENABLED", false)
	v.SetDefault("OPS_LISTEN", "127.0.0.1:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", 5*time.Second)
	v.SetDefault("ALLOWED_CIDRS", "")

	// Audit
	v.SetDefault("AUDIT_CONCURRENCY", 4)

	v.SetEnvPrefix("FLEETMX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Optional config file; env vars win over file values.
	file := os.Getenv("FLEETMX_CONFIG")
	if file == "" {
		file = "fleetmx.yaml"
	}
	v.SetConfigFile(file)
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields the given run mode actually uses.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "provision":
		if c.ForwardTo == "" {
			return fmt.Errorf("FLEETMX_FORWARD_TO is required")
		}
		if !strings.Contains(c.ForwardTo, "@") {
			return fmt.Errorf("FLEETMX_FORWARD_TO must be an email address, got %q", c.ForwardTo)
		}
		if c.AliasCount < 1 {
			return fmt.Errorf("FLEETMX_ALIAS_COUNT must be at least 1, got %d", c.AliasCount)
		}
		if c.FirstNameRatio < 0 || c.FirstNameRatio > 1 {
			return fmt.Errorf("FLEETMX_FIRST_NAME_RATIO must be within [0,1], got %g", c.FirstNameRatio)
		}
		if !c.DryRun {
			return c.requireCredentials()
		}
		return nil
	case "audit":
		if c.AuditConcurrency < 1 {
			return fmt.Errorf("FLEETMX_AUDIT_CONCURRENCY must be at least 1, got %d", c.AuditConcurrency)
		}
		if !c.DryRun {
			return c.requireCredentials()
		}
		return nil
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (c *Config) requireCredentials() error {
	if c.ForwardEmailAPIKey == "" {
		return fmt.Errorf("FLEETMX_FORWARDEMAIL_API_KEY is required outside dry-run")
	}
	if c.CloudflareAPIToken == "" {
		return fmt.Errorf("FLEETMX_CLOUDFLARE_API_TOKEN is required outside dry-run")
	}
	return nil
}

// CIDRList splits the allowlist into entries the IP matcher accepts.
func (c *Config) CIDRList() []string {
	return splitAndTrim(c.AllowedCIDRS)
}

// RegisterPolicy paces AddDomain and EnableProtection calls.
func (c *Config) RegisterPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.APIMaxRetries,
		Strategy:    retry.Exponential,
		BaseDelay:   c.APIBackoffBase,
		MaxDelay:    30 * time.Second,
	}
}

// DNSPolicy paces zone lookups and record upserts.
func (c *Config) DNSPolicy() retry.Policy {
	return c.RegisterPolicy()
}

// VerifyPolicy paces provider status polls after the propagation wait.
func (c *Config) VerifyPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.VerifyMaxAttempts,
		Strategy:    retry.Fixed,
		BaseDelay:   c.VerifyDelay,
	}
}

// AliasPolicy paces per-domain alias batch attempts.
func (c *Config) AliasPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.AliasMaxRetries,
		Strategy:    retry.Exponential,
		BaseDelay:   c.AliasBackoffBase,
		MaxDelay:    time.Minute,
	}
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
