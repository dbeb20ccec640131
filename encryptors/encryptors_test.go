package encryptors

import (
	"bytes"
	"errors"
	"testing"

	"github.com/INLOpen/dictbase/core"
)

func TestShuffleEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewShuffle([]byte("container-secret"))
	if err != nil {
		t.Fatalf("NewShuffle() returned an unexpected error: %v", err)
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "short", data: []byte("hello world")},
		{name: "repetitive", data: bytes.Repeat([]byte{0xAB}, 300)},
		{name: "empty", data: []byte{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ciphertext := make([]byte, len(tc.data))
			if err := enc.Encrypt(ciphertext, tc.data); err != nil {
				t.Fatalf("Encrypt() returned an unexpected error: %v", err)
			}
			if len(tc.data) > 4 && bytes.Equal(ciphertext, tc.data) {
				t.Error("Encrypt() left data unchanged")
			}

			plaintext := make([]byte, len(ciphertext))
			if err := enc.Decrypt(plaintext, ciphertext); err != nil {
				t.Fatalf("Decrypt() returned an unexpected error: %v", err)
			}
			if !bytes.Equal(plaintext, tc.data) {
				t.Errorf("round trip mismatch.\nOriginal: %x\nDecrypted: %x", tc.data, plaintext)
			}
		})
	}
}

func TestSalsa20Encryptor_RoundTrip(t *testing.T) {
	key := DeriveBlockKey([]byte("secret"), 0xDEADBEEF)
	enc, err := NewSalsa20(key)
	if err != nil {
		t.Fatalf("NewSalsa20() returned an unexpected error: %v", err)
	}

	data := []byte("a record payload that should survive the stream cipher")
	ciphertext := make([]byte, len(data))
	if err := enc.Encrypt(ciphertext, data); err != nil {
		t.Fatalf("Encrypt() returned an unexpected error: %v", err)
	}
	if bytes.Equal(ciphertext, data) {
		t.Error("Encrypt() left data unchanged")
	}

	plaintext := make([]byte, len(ciphertext))
	if err := enc.Decrypt(plaintext, ciphertext); err != nil {
		t.Fatalf("Decrypt() returned an unexpected error: %v", err)
	}
	if !bytes.Equal(plaintext, data) {
		t.Errorf("round trip mismatch")
	}
}

func TestSalsa20Encryptor_BadKeyLength(t *testing.T) {
	if _, err := NewSalsa20([]byte("short")); err == nil {
		t.Error("NewSalsa20() should reject keys that are not 32 bytes")
	}
}

func TestDeriveBlockKey(t *testing.T) {
	k1 := DeriveBlockKey([]byte("secret"), 1)
	k2 := DeriveBlockKey([]byte("secret"), 1)
	k3 := DeriveBlockKey([]byte("secret"), 2)
	k4 := DeriveBlockKey([]byte("other"), 1)

	if len(k1) != 32 {
		t.Fatalf("DeriveBlockKey() length = %d, want 32", len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("DeriveBlockKey() is not deterministic")
	}
	if bytes.Equal(k1, k3) {
		t.Error("DeriveBlockKey() should vary with the checksum")
	}
	if bytes.Equal(k1, k4) {
		t.Error("DeriveBlockKey() should vary with the secret")
	}
}

func TestGet_UnknownKind(t *testing.T) {
	_, err := Get(core.EncryptionType(42), nil)
	if err == nil {
		t.Fatal("Get() with unknown kind should return an error")
	}
	if !errors.Is(err, core.ErrUnsupportedCodec) {
		t.Errorf("error should wrap ErrUnsupportedCodec, got %v", err)
	}
}

func TestGet_NoneIgnoresKey(t *testing.T) {
	enc, err := Get(core.EncryptionNone, nil)
	if err != nil {
		t.Fatalf("Get(EncryptionNone) returned an unexpected error: %v", err)
	}
	data := []byte("plain")
	out := make([]byte, len(data))
	if err := enc.Encrypt(out, data); err != nil {
		t.Fatalf("Encrypt() returned an unexpected error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("EncryptionNone should pass data through unchanged")
	}
}
