package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"

	"manifestgate/internal/manifest"
)

// digestProjection is the canonical subset of a manifest that identifies it.
// Slices are pre-sorted and JCS sorts object keys, so two semantically
// identical manifests hash identically regardless of input ordering.
type digestProjection struct {
	ID           string   `json:"id"`
	Version      string   `json:"version"`
	Name         string   `json:"name"`
	Entry        string   `json:"entry"`
	Permissions  []string `json:"permissions"`
	EndpointKeys []string `json:"endpointKeys"`
	RouteKeys    []string `json:"routeKeys"`
}

// Digest computes the canonical content hash of a manifest.
func Digest(m *manifest.Manifest) (string, error) {
	proj := digestProjection{
		ID:           m.ID,
		Version:      m.Version,
		Name:         m.Name,
		Entry:        m.Entry,
		Permissions:  sortedCopy(m.Permissions),
		EndpointKeys: sortedKeys(m.Endpoints),
		RouteKeys:    sortedKeysString(m.Routes),
	}

	raw, err := json.Marshal(proj)
	if err != nil {
		return "", fmt.Errorf("digest marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("digest canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]manifest.Endpoint) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysString(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
