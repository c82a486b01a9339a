package storage

import (
	"fmt"

	"github.com/jmcleod/kycagent/internal/util"
)

const (
	envelopeVer = 1

	// SchemeAESGCM marks an envelope sealed with AES-256-GCM.
	SchemeAESGCM = "aes256gcm"
	// SchemePlain marks non-secret metadata (salts, KDF parameters) stored
	// next to sealed records.
	SchemePlain = "plain"
)

// Envelope is a stored record. Sealed envelopes carry the GCM nonce and
// ciphertext; plain envelopes carry the payload in Ciphertext with no nonce.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
	Version    uint64 `json:"version,omitempty"`
}

// Clone returns a deep copy of the envelope.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	c := *e
	c.Nonce = util.CopyBytes(e.Nonce)
	c.Ciphertext = util.CopyBytes(e.Ciphertext)
	return &c
}

// SealRecord encrypts plaintext into an Envelope using key and aad.
func SealRecord(key, plaintext, aad []byte, version uint64) (*Envelope, error) {
	sealed, err := util.EncryptAESWithAAD(plaintext, key, aad)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Ver:        envelopeVer,
		Scheme:     SchemeAESGCM,
		Nonce:      sealed[:util.GCMNonceSize],
		Ciphertext: sealed[util.GCMNonceSize:],
		Version:    version,
	}, nil
}

// OpenRecord decrypts a sealed Envelope using key and aad.
func OpenRecord(key []byte, env *Envelope, aad []byte) ([]byte, error) {
	if err := checkEnvelope(env, SchemeAESGCM); err != nil {
		return nil, err
	}
	full := make([]byte, 0, len(env.Nonce)+len(env.Ciphertext))
	full = append(full, env.Nonce...)
	full = append(full, env.Ciphertext...)
	return util.DecryptAESWithAAD(full, key, aad)
}

// PlainRecord wraps non-secret data in an Envelope.
func PlainRecord(data []byte, version uint64) *Envelope {
	return &Envelope{
		Ver:        envelopeVer,
		Scheme:     SchemePlain,
		Ciphertext: util.CopyBytes(data),
		Version:    version,
	}
}

// OpenPlain returns the payload of a plain Envelope.
func OpenPlain(env *Envelope) ([]byte, error) {
	if err := checkEnvelope(env, SchemePlain); err != nil {
		return nil, err
	}
	return util.CopyBytes(env.Ciphertext), nil
}

func checkEnvelope(env *Envelope, scheme string) error {
	if env == nil {
		return fmt.Errorf("nil envelope")
	}
	if env.Ver != envelopeVer {
		return fmt.Errorf("unsupported envelope version: %d", env.Ver)
	}
	if env.Scheme != scheme {
		return fmt.Errorf("unsupported envelope scheme: %s (want %s)", env.Scheme, scheme)
	}
	return nil
}
