// Package risk aggregates weighted factors into a normalized 0-10 score with
// a discrete level. Factors are reported individually so every score is
// explainable to submitters and moderators.
package risk

import (
	"math"

	"github.com/Masterminds/semver/v3"

	"manifestgate/internal/analyzer"
	"manifestgate/internal/heuristics"
	"manifestgate/internal/manifest"
)

// Level classifies a score against configured thresholds.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Factor names reported in Score.Factors.
const (
	FactorScopeSensitivity = "scope_sensitivity"
	FactorArgSurface       = "arg_surface"
	FactorEndpointVolume   = "endpoint_volume"
	FactorVersionChurn     = "version_churn"
	FactorSignatureTrust   = "signature_trust"
	FactorSpoofRisk        = "spoof_risk"
)

// Reference sizes the raw factor computations scale against.
const (
	referenceArgCount      = 10.0
	referenceEndpointCount = 100.0
	highPatchThreshold     = 20
)

// factorCap bounds each raw factor before weighting.
const factorCap = 10.0

// Weights configure the relative importance of each factor per deployment.
type Weights struct {
	ScopeSensitivity float64 `yaml:"scope_sensitivity"`
	ArgSurface       float64 `yaml:"arg_surface"`
	EndpointVolume   float64 `yaml:"endpoint_volume"`
	VersionChurn     float64 `yaml:"version_churn"`
	SignatureTrust   float64 `yaml:"signature_trust"`
	SpoofRisk        float64 `yaml:"spoof_risk"`

	// Normalization divides the weighted sum before clamping to [0,10].
	Normalization float64 `yaml:"normalization"`
}

// Thresholds map a score onto a level. Values are inclusive lower bounds.
type Thresholds struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// DefaultWeights are the shipped per-deployment defaults.
func DefaultWeights() Weights {
	return Weights{
		ScopeSensitivity: 3.0,
		ArgSurface:       1.5,
		EndpointVolume:   1.5,
		VersionChurn:     1.0,
		SignatureTrust:   2.0,
		SpoofRisk:        1.0,
		Normalization:    10.0,
	}
}

// DefaultThresholds are the shipped level boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 8.0, High: 6.0, Medium: 3.0}
}

// Score is the scored risk for one manifest.
type Score struct {
	Score   float64            `json:"score"`
	Level   Level              `json:"level"`
	Factors map[string]float64 `json:"factors"`
}

// Scorer computes scores with fixed weights and thresholds.
type Scorer struct {
	weights       Weights
	thresholds    Thresholds
	legitimateIDs map[string]bool
}

// New constructs a scorer. legitimateIDs mirrors the heuristics spoof
// allowlist so both components agree on spoof candidacy.
func New(weights Weights, thresholds Thresholds, legitimateIDs []string) *Scorer {
	legit := make(map[string]bool, len(legitimateIDs))
	for _, id := range legitimateIDs {
		legit[id] = true
	}
	if weights.Normalization <= 0 {
		weights.Normalization = DefaultWeights().Normalization
	}
	return &Scorer{weights: weights, thresholds: thresholds, legitimateIDs: legit}
}

// ScoreManifest computes the six weighted factors, normalizes, clamps, and
// rounds to two decimals.
func (s *Scorer) ScoreManifest(m *manifest.Manifest, analysis analyzer.Result) Score {
	factors := map[string]float64{
		FactorScopeSensitivity: capFactor(scopeSensitivity(m)) * s.weights.ScopeSensitivity,
		FactorArgSurface:       capFactor(argSurface(m)) * s.weights.ArgSurface,
		FactorEndpointVolume:   capFactor(endpointVolume(m)) * s.weights.EndpointVolume,
		FactorVersionChurn:     capFactor(versionChurn(m)) * s.weights.VersionChurn,
		FactorSignatureTrust:   capFactor(signatureTrust(m, analysis)) * s.weights.SignatureTrust,
		FactorSpoofRisk:        capFactor(s.spoofRisk(m)) * s.weights.SpoofRisk,
	}

	sum := 0.0
	for _, v := range factors {
		sum += v
	}
	score := sum / s.weights.Normalization
	score = math.Min(10, math.Max(0, score))
	score = math.Round(score*100) / 100

	return Score{
		Score:   score,
		Level:   s.levelFor(score),
		Factors: factors,
	}
}

func (s *Scorer) levelFor(score float64) Level {
	switch {
	case score >= s.thresholds.Critical:
		return LevelCritical
	case score >= s.thresholds.High:
		return LevelHigh
	case score >= s.thresholds.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

func capFactor(v float64) float64 {
	return math.Min(factorCap, math.Max(0, v))
}

// scopeSensitivity scales the fraction of used scopes that are sensitive.
func scopeSensitivity(m *manifest.Manifest) float64 {
	used := m.UsedScopes()
	if len(used) == 0 {
		return 0
	}
	sensitive := 0
	for _, scope := range used {
		if manifest.SensitiveScopes[scope] {
			sensitive++
		}
	}
	return float64(sensitive) / float64(len(used)) * factorCap
}

// argSurface scales the average per-endpoint argument count against the
// reference size.
func argSurface(m *manifest.Manifest) float64 {
	if len(m.Endpoints) == 0 {
		return 0
	}
	total := 0
	for _, ep := range m.Endpoints {
		total += len(ep.Args)
	}
	avg := float64(total) / float64(len(m.Endpoints))
	return avg / referenceArgCount * factorCap
}

// endpointVolume scales the endpoint count against the reference ceiling.
func endpointVolume(m *manifest.Manifest) float64 {
	return float64(len(m.Endpoints)) / referenceEndpointCount * factorCap
}

// versionChurn bumps pre-1.0 apps and unusually high patch counters.
func versionChurn(m *manifest.Manifest) float64 {
	v, err := semver.StrictNewVersion(m.Version)
	if err != nil {
		return factorCap
	}
	churn := 0.0
	if v.Major() == 0 {
		churn += 5
	}
	if v.Patch() > highPatchThreshold {
		churn += 3
	}
	return churn
}

// signatureTrust is zero for trusted publishers, reduced for valid-but-unknown
// signers, and full for unsigned or unverifiable manifests.
func signatureTrust(m *manifest.Manifest, analysis analyzer.Result) float64 {
	switch {
	case analysis.Provenance.TrustedPublisher:
		return 0
	case m.IsSigned() && analysis.Provenance.KnownSigner:
		return 4
	default:
		return factorCap
	}
}

func (s *Scorer) spoofRisk(m *manifest.Manifest) float64 {
	if heuristics.IsSpoofCandidate(m, s.legitimateIDs) {
		return factorCap
	}
	return 0
}
