package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	k := make([]byte, 32)
	if _, err := rand.Read(k); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(k)
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", testKey(t), false},
		{"empty", "", true},
		{"not base64", "!!!", true},
		{"short", base64.StdEncoding.EncodeToString(make([]byte, 16)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAESEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAESEncryptor() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, pt := range []string{"ya29.a0Af", "1//0refresh-token", string(bytes.Repeat([]byte("x"), 4096))} {
		a, err := EncryptString(enc, pt)
		if err != nil {
			t.Fatalf("EncryptString: %v", err)
		}
		b, err := EncryptString(enc, pt)
		if err != nil {
			t.Fatal(err)
		}
		if a == b {
			t.Error("two encryptions of the same plaintext are identical; nonce reused")
		}
		got, err := DecryptString(enc, a)
		if err != nil {
			t.Fatalf("DecryptString: %v", err)
		}
		if got != pt {
			t.Errorf("round trip = %q, want %q", got, pt)
		}
	}
}

func TestEmptyStrings(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	if s, err := EncryptString(enc, ""); s != "" || err != nil {
		t.Errorf("EncryptString(\"\") = %q, %v", s, err)
	}
	if s, err := DecryptString(enc, ""); s != "" || err != nil {
		t.Errorf("DecryptString(\"\") = %q, %v", s, err)
	}
	if _, err := enc.Encrypt(nil); err == nil {
		t.Error("Encrypt(nil) should fail")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	other, _ := NewAESEncryptor(testKey(t))
	ct, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	flipped := append([]byte(nil), ct...)
	flipped[len(flipped)-1] ^= 0x01
	if _, err := enc.Decrypt(flipped); !errors.Is(err, ErrDecrypt) {
		t.Errorf("tampered: err = %v, want ErrDecrypt", err)
	}
	if _, err := other.Decrypt(ct); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong key: err = %v, want ErrDecrypt", err)
	}
	if _, err := enc.Decrypt(ct[:8]); err == nil {
		t.Error("short ciphertext should fail")
	}
	if _, err := DecryptString(enc, "%%%"); err == nil {
		t.Error("invalid base64 should fail")
	}
}
