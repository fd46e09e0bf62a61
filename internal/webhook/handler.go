package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/hysun/tfbot/internal/config"
	"github.com/hysun/tfbot/internal/github"
	"github.com/hysun/tfbot/internal/runstore"
)

// AccessChecker verifies that the triggering actor can push to the
// repository. Pipelines plan and apply with elevated credentials, so
// drive-by pull requests from read-only users must not start them.
type AccessChecker interface {
	HasWrite(ctx context.Context, repo, user string) (bool, error)
}

// Handler handles GitHub pull_request webhook events
type Handler struct {
	webhookSecret string
	environments  []config.Environment
	dispatcher    TaskDispatcher
	deduper       *deliveryDeduper
	access        AccessChecker
	store         *runstore.Store
}

// NewHandler creates a new webhook handler
func NewHandler(webhookSecret string, environments []config.Environment, dispatcher TaskDispatcher, access AccessChecker, store *runstore.Store) *Handler {
	return &Handler{
		webhookSecret: webhookSecret,
		environments:  environments,
		dispatcher:    dispatcher,
		deduper:       newDeliveryDeduper(12 * time.Hour),
		access:        access,
		store:         store,
	}
}

// Handle handles GitHub webhook events
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading payload: %v", err)
		http.Error(w, "Error reading payload", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := ValidateSignatureHeader(signature); err != nil {
		log.Printf("Invalid signature header: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	if !VerifySignature(payload, signature, h.webhookSecret) {
		log.Printf("Signature verification failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	switch eventType := r.Header.Get("X-GitHub-Event"); eventType {
	case "ping":
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "pong")
		return
	case "pull_request":
		h.handlePullRequest(r.Context(), w, payload)
	default:
		log.Printf("Ignoring event type %q", eventType)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ignored")
	}
}

func (h *Handler) handlePullRequest(ctx context.Context, w http.ResponseWriter, payload []byte) {
	var event gh.PullRequestEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("Failed to parse pull_request payload: %v", err)
		http.Error(w, "Malformed payload", http.StatusBadRequest)
		return
	}

	pr := event.GetPullRequest()
	repo := event.GetRepo().GetFullName()
	number := event.GetNumber()
	actor := event.GetSender().GetLogin()

	if pr == nil || repo == "" || number == 0 {
		http.Error(w, "Incomplete payload", http.StatusBadRequest)
		return
	}

	var stage string
	switch event.GetAction() {
	case "opened", "synchronize", "reopened":
		stage = StagePlan
	case "closed":
		if !pr.GetMerged() {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "ignored: closed without merge")
			return
		}
		stage = StageApply
	default:
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ignored: action %s", event.GetAction())
		return
	}

	// One pipeline per head commit and stage, however often GitHub
	// delivers the event.
	dedupeKey := fmt.Sprintf("%s#%d:%s:%s", repo, number, pr.GetHead().GetSHA(), stage)
	if !h.deduper.markIfNew(dedupeKey) {
		log.Printf("Duplicate delivery for %s, skipping", dedupeKey)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "duplicate")
		return
	}

	if h.access != nil {
		hasWrite, err := h.access.HasWrite(ctx, repo, actor)
		if err != nil {
			log.Printf("Permission check failed for %s on %s: %v", actor, repo, err)
			http.Error(w, "Permission check failed", http.StatusInternalServerError)
			return
		}
		if !hasWrite {
			log.Printf("Actor %s lacks write access on %s, refusing pipeline", actor, repo)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	enqueued := 0
	for _, env := range h.environments {
		if stage == StageApply && !env.AutoApply {
			continue
		}

		task := &Task{
			ID:          fmt.Sprintf("%s#%d-%s-%d", repo, number, env.Name, time.Now().UnixNano()),
			Repo:        repo,
			Owner:       event.GetRepo().GetOwner().GetLogin(),
			Name:        event.GetRepo().GetName(),
			Number:      number,
			HeadBranch:  pr.GetHead().GetRef(),
			HeadSHA:     pr.GetHead().GetSHA(),
			BaseBranch:  pr.GetBase().GetRef(),
			Environment: env.Name,
			Stage:       stage,
			Actor:       actor,
		}

		if err := h.dispatcher.Enqueue(task); err != nil {
			log.Printf("Failed to enqueue %s: %v", task.Key(), err)
			// Forget the delivery so GitHub's redelivery of this event is
			// not dropped as a duplicate.
			h.deduper.forget(dedupeKey)
			if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
				http.Error(w, "Service busy", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "Enqueue failed", http.StatusInternalServerError)
			return
		}

		if h.store != nil {
			h.store.Create(&runstore.Run{
				ID:          task.ID,
				Repo:        repo,
				Number:      number,
				Environment: env.Name,
				Stage:       stage,
				Actor:       actor,
				Status:      runstore.StatusPending,
			})
		}
		enqueued++
		log.Printf("Enqueued %s stage for %s", stage, task.Key())
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{"enqueued": enqueued})
}

// GitHubAccessChecker checks permissions through the GitHub API using the
// service's own credentials.
type GitHubAccessChecker struct {
	Auth github.AuthProvider
}

// HasWrite implements AccessChecker
func (g *GitHubAccessChecker) HasWrite(ctx context.Context, repo, user string) (bool, error) {
	tok, err := g.Auth.GetInstallationToken(repo)
	if err != nil {
		return false, err
	}

	parts := strings.Split(repo, "/")
	if len(parts) != 2 {
		return false, fmt.Errorf("invalid repo format: %s", repo)
	}

	client := github.NewAPIClient(tok.Token)
	return github.HasWriteAccess(ctx, client, parts[0], parts[1], user)
}
