// Package analyzer performs deterministic static analysis of a manifest:
// content digest, signature verification, publisher provenance, and
// structural invariants. Issues are hard validation failures consumed by
// governance; soft indicators live in the heuristics package.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"manifestgate/internal/analyzer/verifier"
	"manifestgate/internal/manifest"
)

// Provenance captures trust metadata about the manifest's publisher.
type Provenance struct {
	TrustedPublisher bool     `json:"trustedPublisher"`
	KnownSigner      bool     `json:"knownSigner"`
	PriorVersions    []string `json:"priorVersions,omitempty"`
}

// Result is the full static analysis output for one manifest.
type Result struct {
	Digest     string     `json:"digest"`
	Provenance Provenance `json:"provenance"`
	Issues     []string   `json:"issues"`
	Valid      bool       `json:"valid"`
}

// VersionHistory exposes previously approved versions of a manifest ID.
type VersionHistory interface {
	PriorVersions(ctx context.Context, manifestID string) ([]string, error)
}

// Analyzer is pure and deterministic given the same manifest, trusted
// publisher set, and verifier keyring.
type Analyzer struct {
	verifiers *verifier.Registry
	trusted   map[string]bool
	history   VersionHistory
}

// New constructs an analyzer. history may be nil when provenance version
// lookups are not wired (unit tests, offline analysis).
func New(verifiers *verifier.Registry, trustedPublishers []string, history VersionHistory) *Analyzer {
	trusted := make(map[string]bool, len(trustedPublishers))
	for _, p := range trustedPublishers {
		trusted[p] = true
	}
	return &Analyzer{verifiers: verifiers, trusted: trusted, history: history}
}

// Analyze runs the full static analysis battery.
func (a *Analyzer) Analyze(ctx context.Context, m *manifest.Manifest) (Result, error) {
	res := Result{}

	digest, err := Digest(m)
	if err != nil {
		return res, fmt.Errorf("analyze %s: %w", m.ID, err)
	}
	res.Digest = digest

	signatureValid := a.checkSignature(m, &res)
	a.resolveProvenance(ctx, m, signatureValid, &res)
	a.checkStructure(m, &res)

	res.Valid = len(res.Issues) == 0
	return res, nil
}

// checkSignature verifies the manifest signature when present and reports
// whether it verified against the declared signer.
func (a *Analyzer) checkSignature(m *manifest.Manifest, res *Result) bool {
	if !m.IsSigned() {
		res.Issues = append(res.Issues, "manifest is unsigned")
		return false
	}

	message := manifest.SigningMessage(m.ID, m.Version, m.Entry)
	identity, err := a.verifiers.Recover(m.SignatureScheme, message, m.Signature)
	if err != nil {
		if errors.Is(err, verifier.ErrUnknownSignature) {
			res.Issues = append(res.Issues, "invalid signature: no registered publisher key verifies it")
		} else {
			res.Issues = append(res.Issues, fmt.Sprintf("invalid signature: %v", err))
		}
		return false
	}
	if identity != m.Signer {
		res.Issues = append(res.Issues, fmt.Sprintf("invalid signature: signed by %q but declares signer %q", identity, m.Signer))
		return false
	}
	return true
}

func (a *Analyzer) resolveProvenance(ctx context.Context, m *manifest.Manifest, signatureValid bool, res *Result) {
	res.Provenance.KnownSigner = m.Signer != "" && a.verifiers.Knows(m.Signer)
	res.Provenance.TrustedPublisher = signatureValid && a.trusted[m.Signer]

	if a.history != nil {
		if versions, err := a.history.PriorVersions(ctx, m.ID); err == nil {
			res.Provenance.PriorVersions = versions
		}
	}
}

// checkStructure validates the invariants the schema cannot express.
// Endpoints iterate in sorted key order so issue ordering is deterministic.
func (a *Analyzer) checkStructure(m *manifest.Manifest, res *Result) {
	issue := func(format string, args ...any) {
		res.Issues = append(res.Issues, fmt.Sprintf(format, args...))
	}

	if len(m.ID) <= len(manifest.IDPrefix) || m.ID[:len(manifest.IDPrefix)] != manifest.IDPrefix {
		issue("id %q must start with %q", m.ID, manifest.IDPrefix)
	}
	if manifest.ReservedIDs[m.ID] && !res.Provenance.TrustedPublisher {
		issue("id %q is reserved for trusted publishers", m.ID)
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		issue("version %q is not valid semver", m.Version)
	}
	if !manifest.EntryIsWellFormed(m.Entry) {
		issue("entry %q must be an absolute path or http(s) URL", m.Entry)
	}
	if len(m.Endpoints) > manifest.MaxEndpoints {
		issue("manifest declares %d endpoints, maximum is %d", len(m.Endpoints), manifest.MaxEndpoints)
	}

	keys := make([]string, 0, len(m.Endpoints))
	for k := range m.Endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ep := m.Endpoints[key]
		if ep.Fn == "" {
			issue("endpoint %q does not name a function", key)
		}
		if len(ep.Args) > manifest.MaxEndpointArgs {
			issue("endpoint %q declares %d arguments, maximum is %d", key, len(ep.Args), manifest.MaxEndpointArgs)
		}
		for _, scope := range ep.Scopes {
			if !manifest.AllowedScopes[scope] {
				issue("endpoint %q uses unknown scope %q", key, scope)
			}
		}
	}

	for _, scope := range m.UndeclaredScopes() {
		issue("scope %q used by endpoints but not declared in permissions", scope)
	}
	if m.TouchesSensitiveScope() && !m.IsSigned() {
		issue("manifest touches sensitive scopes and requires a signature")
	}
}
