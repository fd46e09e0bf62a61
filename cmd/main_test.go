package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEnvironmentsFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "environments.yaml")
	content := `environments:
  - name: dev
    workdir: infra/dev
    autoApply: true
  - name: prod
    workdir: infra/prod
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write environments file: %v", err)
	}
	return path
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_APP_ID", "1234")
	t.Setenv("GITHUB_PRIVATE_KEY", "test-private-key")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "secret")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("ENVIRONMENTS_FILE", writeEnvironmentsFile(t))
	t.Setenv("DISPATCHER_WORKERS", "1")
	t.Setenv("DISPATCHER_QUEUE_SIZE", "1")
}

func TestRun_StartsServerWithValidConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "4321")

	var servedAddr string
	var servedHandler http.Handler

	serve := func(addr string, handler http.Handler) error {
		servedAddr = addr
		servedHandler = handler
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, serve); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	if servedAddr != ":4321" {
		t.Fatalf("serve addr = %q, want :4321", servedAddr)
	}
	if servedHandler == nil {
		t.Fatalf("serve handler is nil")
	}

	// Smoke test a couple of routes to ensure router wiring is intact.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	servedHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	servedHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/runs status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	servedHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/ status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "tfbot") {
		t.Fatalf("root body = %q, want service payload", body)
	}

	// Webhook endpoint rejects unsigned requests but is routed.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}"))
	servedHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("/webhook unsigned status = %d, want 401", rec.Code)
	}
}

func TestRun_ReturnsErrorWhenServeFails(t *testing.T) {
	setRequiredEnv(t)

	expected := errors.New("listen failed")
	err := run(context.Background(), func(string, http.Handler) error {
		return expected
	})

	if err == nil {
		t.Fatalf("run() error = nil, want %v", expected)
	}
	if !errors.Is(err, expected) {
		t.Fatalf("run() error = %v, want to wrap %v", err, expected)
	}
}

func TestRun_MissingCredentials(t *testing.T) {
	t.Setenv("GITHUB_APP_ID", "")
	t.Setenv("GITHUB_PRIVATE_KEY", "")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "secret")
	t.Setenv("ENVIRONMENTS_FILE", writeEnvironmentsFile(t))

	err := run(context.Background(), func(string, http.Handler) error {
		t.Fatal("serve should not be called when configuration fails")
		return nil
	})
	if err == nil {
		t.Fatal("run() error = nil, want configuration error")
	}
}

func TestRun_MissingEnvironmentsFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENTS_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	err := run(context.Background(), func(string, http.Handler) error {
		t.Fatal("serve should not be called when configuration fails")
		return nil
	})
	if err == nil {
		t.Fatal("run() error = nil, want missing file error")
	}
}

func TestRun_StaticTokenFallback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GITHUB_APP_ID", "")
	t.Setenv("GITHUB_PRIVATE_KEY", "")
	t.Setenv("GITHUB_TOKEN", "ghp_testtoken")

	var served bool
	err := run(context.Background(), func(string, http.Handler) error {
		served = true
		return nil
	})
	if err != nil {
		t.Fatalf("run() returned error: %v", err)
	}
	if !served {
		t.Fatal("serve was not called")
	}
}
