// Package policy holds the static sensitivity table and the runtime
// governance settings, with YAML overrides in the same shape the rest of
// the nova tooling uses.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Pr0Services/novagov/internal/model"
)

// SensitivityConfig is the per-tier policy row: whether human approval is
// mandatory, the token threshold under which auto-approval may apply, how
// long a pending checkpoint lives, and when it should be escalated.
type SensitivityConfig struct {
	RequiresApproval       bool `yaml:"requires_approval" json:"requires_approval"`
	MaxAutoTokens          int  `yaml:"max_auto_tokens" json:"max_auto_tokens"`
	ExpiryMinutes          int  `yaml:"expiry_minutes" json:"expiry_minutes"`
	EscalationAfterMinutes int  `yaml:"escalation_after_minutes" json:"escalation_after_minutes"`
}

// Config holds all configurable governance parameters.
type Config struct {
	Sensitivity map[model.Sensitivity]SensitivityConfig `yaml:"sensitivity" json:"sensitivity"`
	Settings    model.Settings                          `yaml:"settings" json:"settings"`
}

// DefaultConfig returns the built-in governance configuration.
func DefaultConfig() *Config {
	return &Config{
		Sensitivity: map[model.Sensitivity]SensitivityConfig{
			model.SensLow: {
				RequiresApproval:       false,
				MaxAutoTokens:          5000,
				ExpiryMinutes:          60,
				EscalationAfterMinutes: 30,
			},
			model.SensMedium: {
				RequiresApproval:       true,
				MaxAutoTokens:          2000,
				ExpiryMinutes:          30,
				EscalationAfterMinutes: 15,
			},
			model.SensHigh: {
				RequiresApproval:       true,
				MaxAutoTokens:          500,
				ExpiryMinutes:          15,
				EscalationAfterMinutes: 10,
			},
			model.SensCritical: {
				RequiresApproval:       true,
				MaxAutoTokens:          0,
				ExpiryMinutes:          10,
				EscalationAfterMinutes: 5,
			},
		},
		Settings: model.Settings{
			Enabled:                 true,
			StrictMode:              false,
			AutoApproveLow:          true,
			CheckpointExpiryMinutes: 30,
			MaxPendingCheckpoints:   10,
			RequireScopeLock:        false,
			AuditRetentionDays:      90,
		},
	}
}

// For returns the sensitivity row for a tier. Unknown tiers mean a caller
// bypassed the closed enum and panic.
func (c *Config) For(tier model.Sensitivity) SensitivityConfig {
	sc, ok := c.Sensitivity[tier]
	if !ok {
		panic(fmt.Sprintf("policy: unknown sensitivity tier %q", tier))
	}
	return sc
}

// Validate checks the monotonicity invariant: a higher tier never has a
// larger max_auto_tokens or longer expiry than a lower tier, and
// requires_approval never relaxes as tiers rise.
func (c *Config) Validate() error {
	for _, tier := range model.Tiers {
		if _, ok := c.Sensitivity[tier]; !ok {
			return fmt.Errorf("policy: missing sensitivity tier %q", tier)
		}
	}
	for i := 1; i < len(model.Tiers); i++ {
		lo := c.Sensitivity[model.Tiers[i-1]]
		hi := c.Sensitivity[model.Tiers[i]]
		if hi.MaxAutoTokens > lo.MaxAutoTokens {
			return fmt.Errorf("policy: %s max_auto_tokens %d exceeds %s's %d",
				model.Tiers[i], hi.MaxAutoTokens, model.Tiers[i-1], lo.MaxAutoTokens)
		}
		if hi.ExpiryMinutes > lo.ExpiryMinutes {
			return fmt.Errorf("policy: %s expiry_minutes %d exceeds %s's %d",
				model.Tiers[i], hi.ExpiryMinutes, model.Tiers[i-1], lo.ExpiryMinutes)
		}
		if lo.RequiresApproval && !hi.RequiresApproval {
			return fmt.Errorf("policy: %s requires approval but %s does not",
				model.Tiers[i-1], model.Tiers[i])
		}
	}
	return nil
}

// DefaultPath returns the default governance config location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "novagov", "governance.yaml")
	}
	return filepath.Join(home, ".novagov", "governance.yaml")
}

// Load loads governance configuration from a YAML file.
// Empty path falls back to ~/.novagov/governance.yaml.
// Missing file returns defaults. Invalid YAML or a table that breaks the
// monotonicity invariant returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads governance configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk; when no file
// exists (defaults used), the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashBytes(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read governance config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse governance config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return cfg, hashBytes(data), nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# novagov governance configuration
# Generated by: novagov init-policy
#
# Validation order (cannot be changed):
#   1. Governance disabled -> allow with warning
#   2. Pending queue depth >= max_pending_checkpoints -> deny
#   3. require_scope_lock and no active lock -> deny
#   4. Low sensitivity within max_auto_tokens -> allow without checkpoint
#   5. Otherwise a checkpoint gates the action

# Per-tier sensitivity rows. Higher tiers must never have a larger
# max_auto_tokens or longer expiry_minutes than lower tiers.
sensitivity:
  low:
    requires_approval: false
    max_auto_tokens: 5000
    expiry_minutes: 60
    escalation_after_minutes: 30
  medium:
    requires_approval: true
    max_auto_tokens: 2000
    expiry_minutes: 30
    escalation_after_minutes: 15
  high:
    requires_approval: true
    max_auto_tokens: 500
    expiry_minutes: 15
    escalation_after_minutes: 10
  critical:
    requires_approval: true
    max_auto_tokens: 0
    expiry_minutes: 10
    escalation_after_minutes: 5

# Runtime knobs. All of these can also be changed while serving via
# ` + "`novagov settings set`" + ` (the change is audited).
settings:
  enabled: true
  strict_mode: false
  auto_approve_low: true
  checkpoint_expiry_minutes: 30
  max_pending_checkpoints: 10
  require_scope_lock: false
  audit_retention_days: 90
`
}
