package verifier

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// SchemePGP verifies armored detached OpenPGP signatures. Publisher identity
// is the uppercase hex fingerprint of the signing key.
const SchemePGP = "pgp"

// PGPVerifier verifies against an imported keyring.
type PGPVerifier struct {
	keyring openpgp.EntityList
}

// NewPGPVerifier builds a verifier from an armored keyring.
func NewPGPVerifier(armoredKeyring string) (*PGPVerifier, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKeyring))
	if err != nil {
		return nil, fmt.Errorf("pgp: read keyring: %w", err)
	}
	return &PGPVerifier{keyring: entities}, nil
}

func (v *PGPVerifier) Scheme() string { return SchemePGP }

// Recover checks the armored detached signature and returns the fingerprint
// of the key that produced it.
func (v *PGPVerifier) Recover(message []byte, signature string) (string, error) {
	entity, err := openpgp.CheckArmoredDetachedSignature(
		v.keyring,
		bytes.NewReader(message),
		strings.NewReader(signature),
		nil,
	)
	if err != nil {
		return "", ErrUnknownSignature
	}
	return fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint), nil
}

func (v *PGPVerifier) Knows(identity string) bool {
	for _, entity := range v.keyring {
		if fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint) == identity {
			return true
		}
	}
	return false
}
