// Package heuristics applies soft, pattern-based risk rules to a manifest.
// Each rule independently produces zero or one named flag plus advisory text;
// the detector never rejects, governance weighs the flags.
package heuristics

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/Masterminds/semver/v3"

	"manifestgate/internal/manifest"
)

// Flag names the detector can emit. Governance policies reference these.
const (
	FlagEndpointSprawl       = "endpoint_sprawl"
	FlagLargeArgSurface      = "large_arg_surface"
	FlagUntypedArgs          = "untyped_args"
	FlagUndeclaredScopes     = "undeclared_scopes"
	FlagUnsignedManifest     = "unsigned_manifest"
	FlagSpoofedIdentity      = "spoofed_identity"
	FlagExcessivePermissions = "excessive_permissions"
	FlagMissingDescription   = "missing_description"
	FlagSuspiciousEntry      = "suspicious_entry"
	FlagDuplicateFunctions   = "duplicate_functions"
	FlagPrereleaseVersion    = "prerelease_version"
)

// Rule thresholds.
const (
	endpointSprawlThreshold = 500
	argSurfaceThreshold     = 10
	permissionThreshold     = 8
)

// spoofPatterns match names or IDs that imply platform endorsement.
var spoofPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bofficial\b`),
	regexp.MustCompile(`(?i)\bverified\b`),
	regexp.MustCompile(`(?i)\btrusted\b`),
	regexp.MustCompile(`(?i)\bsystem\b`),
	regexp.MustCompile(`(?i)\bauthentic\b`),
}

// Result is the union of all triggered rules.
type Result struct {
	Flags           []string `json:"flags"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// Detector holds the legitimate-id allowlist exempt from spoof matching.
type Detector struct {
	legitimateIDs map[string]bool
}

// New constructs a detector. legitimateIDs lists apps allowed to carry
// trust-implying names (the platform's own first-party apps).
func New(legitimateIDs []string) *Detector {
	legit := make(map[string]bool, len(legitimateIDs))
	for _, id := range legitimateIDs {
		legit[id] = true
	}
	return &Detector{legitimateIDs: legit}
}

// Detect runs every rule. Rules are independent and order-insensitive; flags
// come back sorted for stable output.
func (d *Detector) Detect(m *manifest.Manifest) Result {
	var res Result
	add := func(flag, warning, recommendation string) {
		res.Flags = append(res.Flags, flag)
		res.Warnings = append(res.Warnings, warning)
		res.Recommendations = append(res.Recommendations, recommendation)
	}

	if len(m.Endpoints) > endpointSprawlThreshold {
		add(FlagEndpointSprawl,
			fmt.Sprintf("manifest declares %d endpoints, above the %d sprawl threshold", len(m.Endpoints), endpointSprawlThreshold),
			"split the application into smaller manifests with focused endpoint surfaces")
	}

	if maxArgs := maxArgCount(m); maxArgs > argSurfaceThreshold {
		add(FlagLargeArgSurface,
			fmt.Sprintf("an endpoint declares %d arguments, above the %d threshold", maxArgs, argSurfaceThreshold),
			"reduce per-endpoint argument counts; group related values into typed records")
	}

	if hasUntypedArgs(m) {
		add(FlagUntypedArgs,
			"one or more endpoint arguments are typed object/any, bypassing argument validation",
			"declare concrete primitive or structured types for every argument")
	}

	if len(m.UndeclaredScopes()) > 0 {
		add(FlagUndeclaredScopes,
			fmt.Sprintf("endpoints use scopes not declared in permissions: %v", m.UndeclaredScopes()),
			"declare every endpoint scope in the top-level permissions list")
	}

	if !m.IsSigned() {
		add(FlagUnsignedManifest,
			"manifest carries no publisher signature",
			"sign the manifest with a registered publisher key")
	}

	if IsSpoofCandidate(m, d.legitimateIDs) {
		add(FlagSpoofedIdentity,
			fmt.Sprintf("name or id of %q matches a trust-implying pattern", m.ID),
			"remove endorsement-implying words from the app name and id")
	}

	if len(m.Permissions) > permissionThreshold {
		add(FlagExcessivePermissions,
			fmt.Sprintf("manifest requests %d permissions, above the %d threshold", len(m.Permissions), permissionThreshold),
			"request only the scopes the declared endpoints actually use")
	}

	if m.Description == "" {
		add(FlagMissingDescription,
			"manifest has no description",
			"describe what the application does so reviewers and users can assess it")
	}

	if !manifest.EntryIsWellFormed(m.Entry) {
		add(FlagSuspiciousEntry,
			fmt.Sprintf("entry %q is not an absolute path or http(s) URL", m.Entry),
			"point entry at an absolute path or a fully qualified URL")
	}

	if hasDuplicateFunctions(m) {
		add(FlagDuplicateFunctions,
			"multiple endpoints reference the same function name",
			"give each endpoint a distinct implementation function")
	}

	if v, err := semver.StrictNewVersion(m.Version); err == nil && v.Major() == 0 {
		add(FlagPrereleaseVersion,
			fmt.Sprintf("version %s is pre-1.0", m.Version),
			"stabilize the app and publish a 1.x release before requesting approval")
	}

	sort.Strings(res.Flags)
	return res
}

// Has reports whether the result contains the named flag.
func (r Result) Has(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func maxArgCount(m *manifest.Manifest) int {
	max := 0
	for _, ep := range m.Endpoints {
		if len(ep.Args) > max {
			max = len(ep.Args)
		}
	}
	return max
}

func hasUntypedArgs(m *manifest.Manifest) bool {
	for _, ep := range m.Endpoints {
		for _, t := range ep.Args {
			if t == "object" || t == "any" {
				return true
			}
		}
	}
	return false
}

// IsSpoofCandidate reports whether the manifest's name or id matches a
// trust-implying pattern and the id is not on the allowlist. Shared with the
// risk scorer so both components agree on spoof candidacy.
func IsSpoofCandidate(m *manifest.Manifest, legitimateIDs map[string]bool) bool {
	if legitimateIDs[m.ID] {
		return false
	}
	for _, pattern := range spoofPatterns {
		if pattern.MatchString(m.Name) || pattern.MatchString(m.ID) {
			return true
		}
	}
	return false
}

func hasDuplicateFunctions(m *manifest.Manifest) bool {
	seen := map[string]bool{}
	for _, ep := range m.Endpoints {
		if ep.Fn == "" {
			continue
		}
		if seen[ep.Fn] {
			return true
		}
		seen[ep.Fn] = true
	}
	return false
}
