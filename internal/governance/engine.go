package governance

import (
	"fmt"

	"manifestgate/internal/risk"
)

// Decision is the admission outcome for one scan.
type Decision string

const (
	DecisionApprove      Decision = "approve"
	DecisionReject       Decision = "reject"
	DecisionSuspend      Decision = "suspend"
	DecisionQuarantine   Decision = "quarantine"
	DecisionManualReview Decision = "manual_review"
)

// ValidDecision reports whether d is one of the five admission outcomes.
func ValidDecision(d Decision) bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionSuspend, DecisionQuarantine, DecisionManualReview:
		return true
	}
	return false
}

// DecisionResult is produced once per ticket and never mutated; an override
// supersedes it through a separately audited operation.
type DecisionResult struct {
	Decision            Decision `json:"decision"`
	Reason              string   `json:"reason"`
	RequiresHumanReview bool     `json:"requiresHumanReview"`
	AutoApproved        bool     `json:"autoApproved"`
}

// Input is the scan evidence the policy evaluates.
type Input struct {
	Risk   risk.Score
	Flags  []string
	Issues []string
	Scopes []string
}

// Decide applies the ordered rules. First match wins; later rules are never
// consulted once an earlier one fires.
func Decide(in Input, p Policy) DecisionResult {
	if p.QuarantineOnIssues && len(in.Issues) > 0 {
		return DecisionResult{
			Decision:            DecisionQuarantine,
			Reason:              fmt.Sprintf("static analysis found %d issue(s)", len(in.Issues)),
			RequiresHumanReview: true,
		}
	}

	if flag, ok := firstMatch(in.Flags, p.BlockFlags); ok {
		return DecisionResult{
			Decision: DecisionReject,
			Reason:   fmt.Sprintf("flag %q is block-listed", flag),
		}
	}

	if flag, ok := firstMatch(in.Flags, p.SuspendFlags); ok && in.Risk.Level != risk.LevelLow {
		return DecisionResult{
			Decision:            DecisionSuspend,
			Reason:              fmt.Sprintf("flag %q is suspend-listed at %s risk", flag, in.Risk.Level),
			RequiresHumanReview: true,
		}
	}

	if scope, ok := firstMatch(in.Scopes, p.ReviewScopes); ok {
		return DecisionResult{
			Decision:            DecisionManualReview,
			Reason:              fmt.Sprintf("scope %q requires mandatory review", scope),
			RequiresHumanReview: true,
		}
	}

	switch in.Risk.Level {
	case risk.LevelCritical:
		return DecisionResult{
			Decision:            DecisionQuarantine,
			Reason:              fmt.Sprintf("risk score %.2f is critical", in.Risk.Score),
			RequiresHumanReview: true,
		}
	case risk.LevelHigh:
		return DecisionResult{
			Decision:            DecisionSuspend,
			Reason:              fmt.Sprintf("risk score %.2f is high", in.Risk.Score),
			RequiresHumanReview: true,
		}
	}

	if in.Risk.Score <= p.MaxAutoApproveScore && len(in.Flags) == 0 {
		return DecisionResult{
			Decision:     DecisionApprove,
			Reason:       fmt.Sprintf("risk score %.2f within auto-approve threshold with no flags", in.Risk.Score),
			AutoApproved: true,
		}
	}

	return DecisionResult{
		Decision:            DecisionManualReview,
		Reason:              fmt.Sprintf("risk score %.2f with %d flag(s) needs human judgment", in.Risk.Score, len(in.Flags)),
		RequiresHumanReview: true,
	}
}

func firstMatch(values, list []string) (string, bool) {
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	for _, v := range values {
		if set[v] {
			return v, true
		}
	}
	return "", false
}
