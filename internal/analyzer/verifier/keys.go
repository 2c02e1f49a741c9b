package verifier

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadEd25519Keys reads a YAML map of publisher identity to base64-encoded
// ed25519 public key.
func LoadEd25519Keys(path string) (map[string]ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("verifier: read publisher keys: %w", err)
	}

	var encoded map[string]string
	if err := yaml.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("verifier: parse publisher keys: %w", err)
	}

	keys := make(map[string]ed25519.PublicKey, len(encoded))
	for identity, enc := range encoded {
		key, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("verifier: decode key for %q: %w", identity, err)
		}
		if len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("verifier: key for %q is %d bytes, want %d", identity, len(key), ed25519.PublicKeySize)
		}
		keys[identity] = ed25519.PublicKey(key)
	}
	return keys, nil
}
