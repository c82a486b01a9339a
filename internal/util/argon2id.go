package util

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams are persisted next to the salt so a store opened later
// derives the same wrapping key even if the defaults change.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      AESKeySize,
	}
}

func (p Argon2idParams) Validate() error {
	if p.KeyLen != AESKeySize {
		return fmt.Errorf("argon2id key length must be %d bytes, got %d", AESKeySize, p.KeyLen)
	}
	if p.Time == 0 || p.MemoryKiB == 0 || p.Parallelism == 0 {
		return fmt.Errorf("argon2id time, memory and parallelism must be non-zero")
	}
	return nil
}

// DeriveArgon2idKey derives a key from the NFKD-normalized passphrase.
func DeriveArgon2idKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("argon2id salt must not be empty")
	}
	return argon2.IDKey([]byte(Normalize(passphrase)), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}
