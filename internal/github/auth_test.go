package github

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block))
}

func TestAppAuth_GetInstallationToken(t *testing.T) {
	var tokenRequests int

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/installation", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 321})
	})
	mux.HandleFunc("/app/installations/321/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		tokenRequests++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_testtoken",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	auth := &AppAuth{
		AppID:      "1234",
		PrivateKey: testPrivateKeyPEM(t),
		BaseURL:    srv.URL,
	}

	tok, err := auth.GetInstallationToken("o/r")
	if err != nil {
		t.Fatalf("GetInstallationToken() error = %v", err)
	}
	if tok.Token != "ghs_testtoken" {
		t.Errorf("token = %q, want ghs_testtoken", tok.Token)
	}

	// Second call must come from the cache.
	if _, err := auth.GetInstallationToken("o/r"); err != nil {
		t.Fatalf("cached GetInstallationToken() error = %v", err)
	}
	if tokenRequests != 1 {
		t.Errorf("token endpoint hit %d times, want 1 (cache)", tokenRequests)
	}
}

func TestAppAuth_ExpiredTokenRefetched(t *testing.T) {
	auth := &AppAuth{
		cache: map[string]*InstallationToken{
			"o/r": {Token: "stale", ExpiresAt: time.Now().Add(30 * time.Second)},
		},
	}

	// Expiry inside the margin forces a refetch, which fails here because
	// no key is configured. A cache hit would have returned nil.
	if _, err := auth.GetInstallationToken("o/r"); err == nil {
		t.Fatal("expected refetch (and key parse failure), got cached token")
	}
}

func TestAppAuth_InvalidRepoFormat(t *testing.T) {
	auth := &AppAuth{AppID: "1", PrivateKey: testPrivateKeyPEM(t)}

	if _, err := auth.lookupInstallationID("jwt", "not-a-repo"); err == nil {
		t.Fatal("expected error for invalid repo format")
	}
}

func TestAppAuth_InvalidPrivateKey(t *testing.T) {
	auth := &AppAuth{AppID: "1", PrivateKey: "not a pem"}

	if _, err := auth.GetInstallationToken("o/r"); err == nil {
		t.Fatal("expected error for invalid private key")
	}
}

func TestStaticTokenAuth(t *testing.T) {
	s := &StaticTokenAuth{Token: "ghp_fixed"}
	tok, err := s.GetInstallationToken("any/repo")
	if err != nil {
		t.Fatalf("GetInstallationToken() error = %v", err)
	}
	if tok.Token != "ghp_fixed" {
		t.Errorf("token = %q, want ghp_fixed", tok.Token)
	}

	empty := &StaticTokenAuth{}
	if _, err := empty.GetInstallationToken("any/repo"); err == nil {
		t.Fatal("expected error for empty token")
	}
}
