// Package manifest defines the submitted application manifest and the scope
// vocabulary the platform accepts.
package manifest

import (
	"sort"
	"strings"
)

// IDPrefix is the mandatory namespace prefix for application IDs.
const IDPrefix = "app_"

// Hard caps on manifest surface. Submissions beyond these are rejected by the
// analyzer regardless of governance policy.
const (
	MaxEndpoints    = 1000
	MaxEndpointArgs = 50
)

// Endpoint declares one callable function exposed by the application.
type Endpoint struct {
	Fn          string            `json:"fn"`
	Args        map[string]string `json:"args,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Description string            `json:"description,omitempty"`
}

// Manifest is the unit under review. Immutable after submission; a new
// version is a new submission.
type Manifest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Entry       string              `json:"entry"`
	Permissions []string            `json:"permissions"`
	Endpoints   map[string]Endpoint `json:"endpoints,omitempty"`
	Routes      map[string]string   `json:"routes,omitempty"`
	Description string              `json:"description,omitempty"`
	Icon        string              `json:"icon,omitempty"`
	Category    string              `json:"category,omitempty"`

	Signer          string `json:"signer,omitempty"`
	Signature       string `json:"signature,omitempty"`
	SignatureScheme string `json:"signatureScheme,omitempty"`
}

// AllowedScopes is the fixed vocabulary endpoints may request.
var AllowedScopes = map[string]bool{
	"profile":       true,
	"storage":       true,
	"messages":      true,
	"contacts":      true,
	"location":      true,
	"media":         true,
	"notifications": true,
	"payments":      true,
	"wallet":        true,
	"admin":         true,
}

// SensitiveScopes force a signature requirement and mandatory human review
// per default governance policy.
var SensitiveScopes = map[string]bool{
	"payments": true,
	"wallet":   true,
	"admin":    true,
	"contacts": true,
	"location": true,
}

// ReservedIDs may only be claimed by trusted publishers.
var ReservedIDs = map[string]bool{
	"app_system":   true,
	"app_platform": true,
	"app_official": true,
	"app_wallet":   true,
}

// UsedScopes returns the sorted union of scopes declared across all endpoints.
func (m *Manifest) UsedScopes() []string {
	set := map[string]bool{}
	for _, ep := range m.Endpoints {
		for _, s := range ep.Scopes {
			set[s] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// UndeclaredScopes returns scopes used by endpoints but missing from
// Permissions, sorted.
func (m *Manifest) UndeclaredScopes() []string {
	declared := map[string]bool{}
	for _, p := range m.Permissions {
		declared[p] = true
	}
	var out []string
	for _, s := range m.UsedScopes() {
		if !declared[s] {
			out = append(out, s)
		}
	}
	return out
}

// TouchesSensitiveScope reports whether any endpoint or declared permission
// names a sensitive scope.
func (m *Manifest) TouchesSensitiveScope() bool {
	for _, s := range m.UsedScopes() {
		if SensitiveScopes[s] {
			return true
		}
	}
	for _, p := range m.Permissions {
		if SensitiveScopes[p] {
			return true
		}
	}
	return false
}

// IsSigned reports whether the manifest carries both signer and signature.
func (m *Manifest) IsSigned() bool {
	return m.Signer != "" && m.Signature != ""
}

// EntryIsWellFormed reports whether entry is an absolute path or http(s) URL.
func EntryIsWellFormed(entry string) bool {
	return strings.HasPrefix(entry, "/") ||
		strings.HasPrefix(entry, "http://") ||
		strings.HasPrefix(entry, "https://")
}

// SigningMessage is the fixed byte string a publisher signs. Binding id,
// version and entry prevents signature reuse across releases.
func SigningMessage(id, version, entry string) []byte {
	return []byte("manifestgate:v1:" + id + ":" + version + ":" + entry)
}
