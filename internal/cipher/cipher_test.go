package cipher

import "testing"

func TestRoundTrip(t *testing.T) {
	c, err := New("correct horse battery staple")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plaintext := []byte("super-secret-app-password")
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatal("ciphertext must not equal plaintext")
	}

	got, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	a, _ := New("key-a")
	b, _ := New("key-b")

	ciphertext, err := a.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
}

func TestDecryptTruncatedInput(t *testing.T) {
	c, _ := New("key")
	if _, err := c.Decrypt([]byte("short")); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestNewRejectsEmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestEncryptNonDeterministic(t *testing.T) {
	c, _ := New("key")
	a, _ := c.Encrypt([]byte("same plaintext"))
	b, _ := c.Encrypt([]byte("same plaintext"))
	if string(a) == string(b) {
		t.Fatal("expected distinct ciphertexts due to random nonce")
	}
}
