// Package verifier abstracts manifest signature verification behind a
// scheme-keyed registry so governance logic never couples to one
// cryptographic curve or library.
package verifier

import (
	"errors"
	"fmt"
)

// ErrUnknownSignature means the signature did not verify against any
// registered publisher key.
var ErrUnknownSignature = errors.New("signature does not match any registered publisher key")

// Verifier validates a signature over a fixed message and reports the
// identity that produced it.
type Verifier interface {
	// Scheme names the signature scheme this verifier handles.
	Scheme() string
	// Recover verifies signature over message and returns the signing
	// identity. Returns ErrUnknownSignature when no registered key matches.
	Recover(message []byte, signature string) (string, error)
	// Knows reports whether the identity has a registered key.
	Knows(identity string) bool
}

// Registry dispatches verification by scheme name.
type Registry struct {
	byScheme map[string]Verifier
}

// NewRegistry builds a registry from the given verifiers.
func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{byScheme: make(map[string]Verifier, len(verifiers))}
	for _, v := range verifiers {
		r.byScheme[v.Scheme()] = v
	}
	return r
}

// Recover dispatches to the verifier for scheme. An empty scheme selects
// ed25519, the platform default.
func (r *Registry) Recover(scheme string, message []byte, signature string) (string, error) {
	v, err := r.lookup(scheme)
	if err != nil {
		return "", err
	}
	return v.Recover(message, signature)
}

// Knows reports whether any scheme has a key registered for identity.
func (r *Registry) Knows(identity string) bool {
	for _, v := range r.byScheme {
		if v.Knows(identity) {
			return true
		}
	}
	return false
}

func (r *Registry) lookup(scheme string) (Verifier, error) {
	if scheme == "" {
		scheme = SchemeEd25519
	}
	v, ok := r.byScheme[scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
	return v, nil
}
