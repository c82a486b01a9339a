package util

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestAES(t *testing.T) {
	key, _ := NewAESKey()
	plainText := []byte("session token")
	aad := []byte("context")

	t.Run("EncryptDecryptWithAAD", func(t *testing.T) {
		cipherText, err := EncryptAESWithAAD(plainText, key, aad)
		if err != nil {
			t.Fatalf("EncryptAESWithAAD failed: %v", err)
		}
		if len(cipherText) < GCMNonceSize {
			t.Fatalf("ciphertext too short: %d", len(cipherText))
		}
		decrypted, err := DecryptAESWithAAD(cipherText, key, aad)
		if err != nil {
			t.Fatalf("DecryptAESWithAAD failed: %v", err)
		}
		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("TamperAAD", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		if _, err := DecryptAESWithAAD(cipherText, key, []byte("wrong context")); err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		cipherText[len(cipherText)-1] ^= 0xFF
		if _, err := DecryptAESWithAAD(cipherText, key, aad); err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("ShortCipherText", func(t *testing.T) {
		if _, err := DecryptAESWithAAD([]byte{1, 2, 3}, key, aad); err == nil {
			t.Error("expected error with short ciphertext, got nil")
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		if _, err := EncryptAESWithAAD(plainText, []byte("too short"), aad); err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})
}

func TestArgon2id(t *testing.T) {
	params := Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32}
	salt := []byte("0123456789abcdef")

	key, err := DeriveArgon2idKey("correct horse", salt, params)
	if err != nil {
		t.Fatalf("DeriveArgon2idKey failed: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(key))
	}

	again, _ := DeriveArgon2idKey("correct horse", salt, params)
	if !bytes.Equal(key, again) {
		t.Error("derivation must be deterministic")
	}

	// U+212B ANGSTROM SIGN and U+00C5 normalize to the same NFKD form.
	a, _ := DeriveArgon2idKey("\u212B", salt, params)
	b, _ := DeriveArgon2idKey("\u00C5", salt, params)
	if !bytes.Equal(a, b) {
		t.Error("normalized passphrases must derive the same key")
	}

	if _, err := DeriveArgon2idKey("x", salt, Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 16}); err == nil {
		t.Error("expected error for 16-byte key length")
	}
	if _, err := DeriveArgon2idKey("x", nil, params); err == nil {
		t.Error("expected error for empty salt")
	}
	if err := DefaultArgon2idParams().Validate(); err != nil {
		t.Errorf("default params invalid: %v", err)
	}
}

func TestHKDF(t *testing.T) {
	seed := []byte("seed material")
	k1, err := HKDF(seed, nil, []byte("a"))
	if err != nil {
		t.Fatalf("HKDF failed: %v", err)
	}
	k2, _ := HKDF(seed, nil, []byte("b"))
	if len(k1) != HKDFKeyLength {
		t.Errorf("expected %d bytes, got %d", HKDFKeyLength, len(k1))
	}
	if bytes.Equal(k1, k2) {
		t.Error("different info must yield different keys")
	}
}

func TestBytesHelpers(t *testing.T) {
	src := []byte{1, 2, 3}
	dst := CopyBytes(src)
	dst[0] = 9
	if src[0] != 1 {
		t.Error("CopyBytes must not alias")
	}
	if CopyBytes(nil) != nil {
		t.Error("CopyBytes(nil) should be nil")
	}

	WipeBytes(src)
	for _, b := range src {
		if b != 0 {
			t.Fatal("WipeBytes left non-zero byte")
		}
	}
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(16)
	if err != nil {
		t.Fatalf("RandomToken failed: %v", err)
	}
	b, _ := RandomToken(16)
	if a == b {
		t.Error("tokens should differ")
	}
	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil || len(raw) != 16 {
		t.Errorf("unexpected token encoding: %q (%v)", a, err)
	}
}
