package verifier

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// SchemeEd25519 is the platform default signature scheme.
const SchemeEd25519 = "ed25519"

// Ed25519Verifier verifies detached ed25519 signatures against a registry of
// publisher public keys. Ed25519 cannot recover a signer from a signature, so
// recovery means finding the registered key the signature verifies under.
type Ed25519Verifier struct {
	keys map[string]ed25519.PublicKey
}

// NewEd25519Verifier builds a verifier over publisher identity → public key.
func NewEd25519Verifier(keys map[string]ed25519.PublicKey) *Ed25519Verifier {
	cloned := make(map[string]ed25519.PublicKey, len(keys))
	for identity, key := range keys {
		cloned[identity] = key
	}
	return &Ed25519Verifier{keys: cloned}
}

func (v *Ed25519Verifier) Scheme() string { return SchemeEd25519 }

// Recover returns the identity whose registered key verifies the signature.
func (v *Ed25519Verifier) Recover(message []byte, signature string) (string, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("ed25519: signature is not valid base64: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return "", fmt.Errorf("ed25519: signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	for identity, key := range v.keys {
		if ed25519.Verify(key, message, sig) {
			return identity, nil
		}
	}
	return "", ErrUnknownSignature
}

func (v *Ed25519Verifier) Knows(identity string) bool {
	_, ok := v.keys[identity]
	return ok
}
