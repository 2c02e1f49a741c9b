// Package governance converts scan evidence into an admission decision by
// applying an ordered, configurable policy, and lets authorized moderators
// supersede automated decisions.
package governance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"manifestgate/internal/risk"
)

// Policy is the configurable rule set. All lists are exact-match.
type Policy struct {
	// MaxAutoApproveScore is the inclusive score ceiling for unattended
	// approval of flag-free manifests.
	MaxAutoApproveScore float64 `yaml:"max_auto_approve_score"`

	// ReviewScopes always route to a human regardless of score.
	ReviewScopes []string `yaml:"review_scopes"`

	// BlockFlags hard-deny without human review.
	BlockFlags []string `yaml:"block_flags"`

	// SuspendFlags suspend unless the risk level is low.
	SuspendFlags []string `yaml:"suspend_flags"`

	// QuarantineOnIssues quarantines any manifest with hard validation
	// failures.
	QuarantineOnIssues bool `yaml:"quarantine_on_issues"`
}

// File is the on-disk tuning document: governance policy plus risk weights
// and the trust lists shared across components.
type File struct {
	Policy            Policy          `yaml:"policy"`
	RiskWeights       risk.Weights    `yaml:"risk_weights"`
	RiskThresholds    risk.Thresholds `yaml:"risk_thresholds"`
	TrustedPublishers []string        `yaml:"trusted_publishers"`
	LegitimateIDs     []string        `yaml:"legitimate_ids"`
}

// DefaultPolicy is the shipped policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAutoApproveScore: 3.0,
		ReviewScopes:        []string{"payments", "wallet", "admin"},
		BlockFlags:          []string{"spoofed_identity"},
		SuspendFlags:        []string{"endpoint_sprawl", "undeclared_scopes"},
		QuarantineOnIssues:  true,
	}
}

// DefaultFile is the shipped tuning document.
func DefaultFile() File {
	return File{
		Policy:         DefaultPolicy(),
		RiskWeights:    risk.DefaultWeights(),
		RiskThresholds: risk.DefaultThresholds(),
	}
}

// LoadFile reads a YAML tuning document. Absent sections fall back to the
// shipped defaults so a partial file stays valid.
func LoadFile(path string) (File, error) {
	f := DefaultFile()
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("governance: read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("governance: parse policy file: %w", err)
	}
	if f.Policy.MaxAutoApproveScore <= 0 {
		f.Policy.MaxAutoApproveScore = DefaultPolicy().MaxAutoApproveScore
	}
	if f.RiskWeights.Normalization <= 0 {
		f.RiskWeights.Normalization = risk.DefaultWeights().Normalization
	}
	if f.RiskThresholds.Critical <= 0 {
		f.RiskThresholds = risk.DefaultThresholds()
	}
	return f, nil
}
