package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signWith(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	secret := "s3cret"

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{"valid", signWith(payload, secret), true},
		{"wrong secret", signWith(payload, "other"), false},
		{"tampered payload", signWith([]byte(`{"action":"closed"}`), secret), false},
		{"missing prefix", "deadbeef", false},
		{"sha1 prefix", "sha1=deadbeef", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(payload, tt.signature, secret); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateSignatureHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"valid", "sha256=abc123", false},
		{"empty", "", true},
		{"no prefix", "abc123", true},
		{"sha1", "sha1=abc123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSignatureHeader(tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSignatureHeader(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
		})
	}
}
