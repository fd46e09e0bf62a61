package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/hysun/tfbot/internal/config"
	"github.com/hysun/tfbot/internal/dispatcher"
	"github.com/hysun/tfbot/internal/github"
	"github.com/hysun/tfbot/internal/pipeline"
	"github.com/hysun/tfbot/internal/runstore"
	"github.com/hysun/tfbot/internal/web"
	"github.com/hysun/tfbot/internal/webhook"
)

var (
	loadDotEnv         = godotenv.Load
	newRunStore        = runstore.NewStore
	newDispatcher      = dispatcher.New
	defaultListenServe = http.ListenAndServe
)

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Printf("Starting tfbot server...")
	log.Printf("Port: %d", cfg.Port)
	log.Printf("Comment marker: %s", cfg.CommentMarker)
	log.Printf("Terraform binary: %s", cfg.TerraformBinary)
	log.Printf("Environments: %d from %s", len(cfg.Environments), cfg.EnvironmentsFile)
	log.Printf("Dispatcher workers: %d, queue size: %d, max attempts: %d", cfg.DispatcherWorkers, cfg.DispatcherQueueSize, cfg.DispatcherMaxAttempts)

	// Initialize in-memory run store for the status API
	runStore := newRunStore()

	// Initialize GitHub authentication: App credentials when configured,
	// otherwise a static token.
	var auth github.AuthProvider
	if cfg.UseAppAuth() {
		log.Printf("GitHub App ID: %s", cfg.GitHubAppID)
		auth = &github.AppAuth{
			AppID:      cfg.GitHubAppID,
			PrivateKey: cfg.GitHubPrivateKey,
		}
	} else {
		log.Printf("Using static GitHub token")
		auth = &github.StaticTokenAuth{Token: cfg.GitHubToken}
	}

	// Initialize pipeline executor
	exec := pipeline.New(cfg, auth, runStore)

	// Initialize dispatcher (task queue with retries)
	dispatcherConfig := dispatcher.Config{
		Workers:           cfg.DispatcherWorkers,
		QueueSize:         cfg.DispatcherQueueSize,
		MaxAttempts:       cfg.DispatcherMaxAttempts,
		InitialBackoff:    cfg.DispatcherRetryInitial,
		BackoffMultiplier: cfg.DispatcherBackoffMultiplier,
		MaxBackoff:        cfg.DispatcherRetryMax,
	}
	taskDispatcher := newDispatcher(exec, dispatcherConfig)
	defer taskDispatcher.Shutdown(ctx)

	// Initialize webhook handler
	access := &webhook.GitHubAccessChecker{Auth: auth}
	handler := webhook.NewHandler(cfg.GitHubWebhookSecret, cfg.Environments, taskDispatcher, access, runStore)

	// Setup router
	r := mux.NewRouter()

	// Webhook endpoint
	r.HandleFunc("/webhook", handler.Handle).Methods("POST")

	// Status API endpoints
	web.NewHandler(runStore).RegisterRoutes(r)

	// Root endpoint with info
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"service":"tfbot","status":"running","environments":%d}`, len(cfg.Environments))
	}).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server listening on %s", addr)
	log.Printf("Webhook endpoint: http://localhost%s/webhook", addr)
	log.Printf("Health check: http://localhost%s/healthz", addr)
	log.Printf("Runs API: http://localhost%s/api/runs", addr)

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}
