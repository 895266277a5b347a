package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJSONCipherRoundTrip(t *testing.T) {
	c, err := NewJSONCipher("secret", "salt")
	if err != nil {
		t.Fatalf("NewJSONCipher: %v", err)
	}
	sealed, err := c.Encrypt([]byte(`{"tags":["a","b"]}`))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !IsCiphertext(sealed) || strings.Contains(sealed, "tags") {
		t.Fatalf("expected opaque prefixed ciphertext, got %s", sealed)
	}
	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plain) != `{"tags":["a","b"]}` {
		t.Fatalf("unexpected plaintext %s", plain)
	}
	again, _ := c.Encrypt([]byte(`{"tags":["a","b"]}`))
	if again == sealed {
		t.Fatalf("expected random nonce to change ciphertext")
	}
}

func TestJSONCipherWrongKey(t *testing.T) {
	a, _ := NewJSONCipher("secret", "salt")
	b, _ := NewJSONCipher("other", "salt")
	sealed, _ := a.Encrypt([]byte(`{}`))
	if _, err := b.Decrypt(sealed); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
	if _, err := a.Decrypt(`{"plain":true}`); !errors.Is(err, ErrNotCiphertext) {
		t.Fatalf("expected ErrNotCiphertext, got %v", err)
	}
	if _, err := a.Decrypt(CiphertextPrefix + "!!"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt for bad encoding, got %v", err)
	}
}

func TestJSONCipherRequiresKeyMaterial(t *testing.T) {
	if _, err := NewJSONCipher("", "salt"); !errors.Is(err, ErrMissingKeyMaterial) {
		t.Fatalf("expected ErrMissingKeyMaterial, got %v", err)
	}
	if _, err := NewJSONCipher("secret", " "); !errors.Is(err, ErrMissingKeyMaterial) {
		t.Fatalf("expected ErrMissingKeyMaterial, got %v", err)
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !IsPasswordHash(hash) || IsPasswordHash("hunter2") {
		t.Fatalf("IsPasswordHash misclassified values")
	}
	if !CheckPassword(hash, "hunter2") || CheckPassword(hash, "wrong") {
		t.Fatalf("CheckPassword mismatch")
	}
}

func TestPrincipalToken(t *testing.T) {
	token, err := GenerateToken("jwt-secret", "alice", "admin", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken("jwt-secret", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := ParseToken("other", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	expired, _ := GenerateToken("jwt-secret", "alice", "admin", -time.Minute)
	if _, err := ParseToken("jwt-secret", expired); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}
