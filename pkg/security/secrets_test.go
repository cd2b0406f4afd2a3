package security

import "testing"

func TestGenerateSecretKeyLengthAndAlphabet(t *testing.T) {
	key, err := GenerateSecretKey(64)
	if err != nil {
		t.Fatalf("GenerateSecretKey() error = %v", err)
	}
	if len(key) != 64 {
		t.Fatalf("GenerateSecretKey() length = %d, want 64", len(key))
	}
	for _, r := range key {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("GenerateSecretKey() produced non-alphanumeric rune %q", r)
		}
	}
}

func TestGenerateSecretKeyIsRandom(t *testing.T) {
	a, err := GenerateSecretKey(32)
	if err != nil {
		t.Fatalf("GenerateSecretKey() error = %v", err)
	}
	b, err := GenerateSecretKey(32)
	if err != nil {
		t.Fatalf("GenerateSecretKey() error = %v", err)
	}
	if a == b {
		t.Error("two GenerateSecretKey() calls returned identical output")
	}
}

func TestHashAndVerifyPasswordRoundtrip(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{name: "simple password", password: "my-secure-password"},
		{name: "password with symbols", password: "p@ssw0rd!$%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := HashPassword(tt.password)
			if err != nil {
				t.Fatalf("HashPassword() error = %v", err)
			}
			if !VerifyPassword(tt.password, encoded) {
				t.Error("VerifyPassword() = false, want true for matching password")
			}
			if VerifyPassword(tt.password+"-wrong", encoded) {
				t.Error("VerifyPassword() = true, want false for mismatched password")
			}
		})
	}
}

func TestHashPasswordSaltsEachCallDifferently(t *testing.T) {
	a, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	b, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if a == b {
		t.Error("two HashPassword() calls for the same password produced identical output")
	}
}

func TestVerifyPasswordRejectsMalformedEncoding(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "empty string", encoded: ""},
		{name: "missing separator", encoded: "deadbeef"},
		{name: "non-hex salt", encoded: "zzzz$deadbeef"},
		{name: "non-hex hash", encoded: "deadbeef$zzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyPassword("anything", tt.encoded) {
				t.Error("VerifyPassword() = true for malformed encoding, want false")
			}
		})
	}
}
