package crypto

import (
	"errors"
	"testing"
)

// mapSettings is an in-memory Settings implementation.
type mapSettings map[string]string

func (m mapSettings) GetSetting(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m mapSettings) SetSetting(key, value string) error {
	m[key] = value
	return nil
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := NewCipher(mapSettings{})

	plain := `[{"name":"session","value":"abc123"}]`
	enc, err := c.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc == plain {
		t.Fatal("ciphertext equals plaintext")
	}

	dec, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec != plain {
		t.Errorf("round trip = %q, want %q", dec, plain)
	}
}

func TestKeyGeneratedOnceAndPersisted(t *testing.T) {
	settings := mapSettings{}
	c := NewCipher(settings)

	if _, err := c.Encrypt("x"); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	saved, ok := settings["fernet_key"]
	if !ok || saved == "" {
		t.Fatal("fernet key was not persisted to settings")
	}

	// A second cipher over the same settings must decrypt the first's
	// output.
	enc, err := c.Encrypt("shared")
	if err != nil {
		t.Fatal(err)
	}
	c2 := NewCipher(settings)
	dec, err := c2.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt with reloaded key: %v", err)
	}
	if dec != "shared" {
		t.Errorf("decrypted = %q", dec)
	}
}

func TestDecryptEmptyIsEmpty(t *testing.T) {
	c := NewCipher(mapSettings{})
	dec, err := c.Decrypt("")
	if err != nil {
		t.Fatalf("Decrypt empty: %v", err)
	}
	if dec != "" {
		t.Errorf("Decrypt empty = %q, want empty", dec)
	}
}

func TestDecryptGarbageErrors(t *testing.T) {
	c := NewCipher(mapSettings{})
	if _, err := c.Decrypt("not-a-token"); err == nil {
		t.Error("Decrypt of garbage should error")
	}
}

func TestDecryptWithWrongKeyErrors(t *testing.T) {
	c1 := NewCipher(mapSettings{})
	c2 := NewCipher(mapSettings{})

	enc, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.Decrypt(enc); err == nil {
		t.Error("Decrypt under a different key should error")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ab", "****"},
		{"abcd", "****"},
		{"abcdefgh", "****efgh"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
