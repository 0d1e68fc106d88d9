package accesskeys

import "testing"

func TestGenerateAndParseSigningKeyRoundTrip(t *testing.T) {
	key, encoded, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}

	parsed, err := ParseSigningKey(encoded)
	if err != nil {
		t.Fatalf("ParseSigningKey: %v", err)
	}
	if !parsed.Equal(key) {
		t.Error("parsed key does not match generated key")
	}
}

func TestParseSigningKeyRejectsEmpty(t *testing.T) {
	if _, err := ParseSigningKey(""); err == nil {
		t.Error("expected an error for an empty signing key")
	}
}

func TestParseSigningKeyRejectsGarbage(t *testing.T) {
	if _, err := ParseSigningKey("not a valid key"); err == nil {
		t.Error("expected an error for a malformed signing key")
	}
}
