package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hysun/tfbot/internal/attest"
	"github.com/hysun/tfbot/internal/concurrency"
	"github.com/hysun/tfbot/internal/config"
	"github.com/hysun/tfbot/internal/github"
	"github.com/hysun/tfbot/internal/github/comment"
	"github.com/hysun/tfbot/internal/runstore"
	"github.com/hysun/tfbot/internal/secrets"
	"github.com/hysun/tfbot/internal/terraform"
	"github.com/hysun/tfbot/internal/webhook"
)

// Publisher posts a rendered environment section to the PR thread.
type Publisher interface {
	Publish(ctx context.Context, environment, section string) (int64, error)
}

// StepRunner runs terraform steps in a working directory.
type StepRunner interface {
	FmtCheck(dir string) terraform.StepResult
	Init(dir string) terraform.StepResult
	Validate(dir string) terraform.StepResult
	Plan(dir, varFile string) terraform.StepResult
	Apply(dir string) terraform.StepResult
}

// Executor runs one pipeline task end to end: clone, credentials,
// terraform steps, PR comment, and (on applies) attestation.
type Executor struct {
	cfg      *config.Config
	auth     github.AuthProvider
	ghClient github.GHClient
	secrets  secrets.Store
	attester attest.Attester
	locks    *concurrency.Manager
	store    *runstore.Store

	// injectable factories, replaced in tests
	newPublisher func(token string, task *webhook.Task) Publisher
	newRunner    func(extraEnv []string) StepRunner
}

// New creates an executor with production collaborators.
func New(cfg *config.Config, auth github.AuthProvider, store *runstore.Store) *Executor {
	e := &Executor{
		cfg:      cfg,
		auth:     auth,
		ghClient: github.NewCLIClient(),
		secrets:  secrets.NewVaultCLI(),
		attester: attest.NewCosignCLI(cfg.AttestType),
		locks:    concurrency.NewManager(),
		store:    store,
	}
	e.newPublisher = func(token string, task *webhook.Task) Publisher {
		client := github.NewAPIClient(token)
		return comment.NewTracker(client, task.Owner, task.Name, task.Number, cfg.CommentMarker)
	}
	e.newRunner = func(extraEnv []string) StepRunner {
		return terraform.NewRunner(cfg.TerraformBinary, extraEnv)
	}
	return e
}

// Execute runs the task's stage against its environment.
func (e *Executor) Execute(ctx context.Context, task *webhook.Task) error {
	log.Printf("Starting %s for %s", task.Stage, task.Key())

	env := e.cfg.Environment(task.Environment)
	if env == nil {
		return NewNonRetryable(fmt.Sprintf("unknown environment %q", task.Environment))
	}

	e.setStatus(task, runstore.StatusRunning)

	err := e.execute(ctx, task, env)
	if err != nil {
		e.setStatus(task, runstore.StatusFailed)
		e.addLog(task, "error", err.Error())
		return err
	}

	e.setStatus(task, runstore.StatusSucceeded)
	return nil
}

func (e *Executor) execute(ctx context.Context, task *webhook.Task, env *config.Environment) error {
	token, err := e.auth.GetInstallationToken(task.Repo)
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	// Applies run against the merged base branch; plans against the PR head.
	branch := task.HeadBranch
	if task.Stage == webhook.StageApply {
		branch = task.BaseBranch
	}

	checkout, err := os.MkdirTemp(e.cfg.WorkRoot, "tfbot-")
	if err != nil {
		return fmt.Errorf("failed to create workdir: %w", err)
	}
	defer os.RemoveAll(checkout)

	e.addLog(task, "info", fmt.Sprintf("cloning %s@%s", task.Repo, branch))
	if err := e.ghClient.Clone(task.Repo, branch, checkout, token.Token); err != nil {
		return fmt.Errorf("failed to clone %s: %w", task.Repo, err)
	}

	var creds map[string]string
	if env.SecretsPath != "" {
		creds, err = e.secrets.Fetch(env.SecretsPath)
		if err != nil {
			return fmt.Errorf("failed to fetch credentials for %s: %w", env.Name, err)
		}
	}

	runner := e.newRunner(secrets.EnvVars(creds))
	publisher := e.newPublisher(token.Token, task)
	dir := filepath.Join(checkout, env.Workdir)

	switch task.Stage {
	case webhook.StagePlan:
		return e.runPlan(ctx, task, env, runner, publisher, dir)
	case webhook.StageApply:
		return e.runApply(ctx, task, env, runner, publisher, dir, token.Token)
	default:
		return NewNonRetryable(fmt.Sprintf("unknown stage %q", task.Stage))
	}
}

// runPlan executes the validation steps in order, stopping at the first
// failure, and publishes one report covering all of them.
func (e *Executor) runPlan(ctx context.Context, task *webhook.Task, env *config.Environment, runner StepRunner, publisher Publisher, dir string) error {
	steps := []func() terraform.StepResult{
		func() terraform.StepResult { return runner.FmtCheck(dir) },
		func() terraform.StepResult { return runner.Init(dir) },
		func() terraform.StepResult { return runner.Validate(dir) },
		func() terraform.StepResult { return runner.Plan(dir, env.VarFile) },
	}

	var results []terraform.StepResult
	failed := false
	for _, step := range steps {
		if failed {
			break
		}
		result := step()
		results = append(results, result)
		e.addLog(task, stepLogLevel(result), fmt.Sprintf("%s: %s", result.Name, result.Outcome))
		if result.Failed() {
			failed = true
		}
	}

	report := buildReport(env.Name, results, planNextAction(results, env.AutoApply))
	if err := e.publish(ctx, publisher, task, report); err != nil {
		return err
	}

	if failed {
		return NewNonRetryable(fmt.Sprintf("%s plan pipeline failed for %s", env.Name, task.Key()))
	}

	if summary := terraform.Summary(results[len(results)-1].Output); summary != "" {
		e.setSummary(task, summary)
	}
	return nil
}

// runApply holds the environment lock for the duration of the apply so
// two pull requests cannot mutate the same state concurrently.
func (e *Executor) runApply(ctx context.Context, task *webhook.Task, env *config.Environment, runner StepRunner, publisher Publisher, dir, token string) error {
	holder := fmt.Sprintf("%s#%d", task.Repo, task.Number)
	if !e.locks.TryAcquire(env.Name, holder) {
		// Retryable: the dispatcher backs off and tries again once the
		// current apply finishes.
		return fmt.Errorf("environment %s is busy (apply in progress by %s)", env.Name, e.locks.Holder(env.Name))
	}
	defer e.locks.Release(env.Name)

	results := []terraform.StepResult{runner.Init(dir)}
	if !results[0].Failed() {
		results = append(results, runner.Plan(dir, env.VarFile))
	}
	if len(results) == 2 && !results[1].Failed() {
		results = append(results, runner.Apply(dir))
	}

	last := results[len(results)-1]
	succeeded := !last.Failed()

	report := buildReport(env.Name, results, applyNextAction(succeeded))
	if err := e.publish(ctx, publisher, task, report); err != nil {
		return err
	}

	if !succeeded {
		return NewNonRetryable(fmt.Sprintf("%s apply pipeline failed for %s", env.Name, task.Key()))
	}

	summary := terraform.Summary(last.Output)
	e.setSummary(task, summary)

	if err := e.ghClient.AddLabel(task.Repo, task.Number, "deployed:"+env.Name, token); err != nil {
		log.Printf("Warning: failed to add label for %s: %v", task.Key(), err)
	}

	if env.AttestImage != "" {
		e.addLog(task, "info", "attesting image "+env.AttestImage)
		err := e.attester.Attest(env.AttestImage, attest.Predicate{
			Environment: env.Name,
			Repository:  task.Repo,
			PullRequest: task.Number,
			Summary:     summary,
			DeployedAt:  time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("deployment applied but attestation failed: %w", err)
		}
	}

	return nil
}

// publish reconciles the report into the PR comment. A malformed existing
// comment is terminal; transport errors are left retryable.
func (e *Executor) publish(ctx context.Context, publisher Publisher, task *webhook.Task, report comment.EnvironmentReport) error {
	commentID, err := publisher.Publish(ctx, report.Environment, report.Render())
	if err != nil {
		if errors.Is(err, comment.ErrMalformedComment) {
			return NewNonRetryable(fmt.Sprintf("cannot update status comment for %s: %v", task.Key(), err))
		}
		return fmt.Errorf("failed to publish report for %s: %w", task.Key(), err)
	}
	e.addLog(task, "info", fmt.Sprintf("published report to comment %d", commentID))
	return nil
}

func buildReport(envName string, results []terraform.StepResult, nextAction string) comment.EnvironmentReport {
	report := comment.EnvironmentReport{Environment: envName}
	for _, r := range results {
		report.Sections = append(report.Sections,
			comment.DetailSection(r.Name, string(r.Outcome), comment.RedactSecrets(r.Output)))
	}
	report.Sections = append(report.Sections, comment.NextActionSection(nextAction))
	return report
}

func planNextAction(results []terraform.StepResult, autoApply bool) string {
	last := results[len(results)-1]
	switch {
	case last.Failed():
		return "fix the reported errors and push a new commit"
	case last.Outcome == terraform.OutcomeUnchanged:
		return "no changes; nothing to apply"
	case !autoApply:
		return "plan has changes; this environment is applied manually"
	default:
		return "merge this pull request to apply the plan"
	}
}

func applyNextAction(succeeded bool) string {
	if succeeded {
		return "deployment complete"
	}
	return "apply failed; state may be partially updated, investigate before retrying"
}

func stepLogLevel(r terraform.StepResult) string {
	if r.Failed() {
		return "error"
	}
	return "info"
}

func (e *Executor) setStatus(task *webhook.Task, status runstore.RunStatus) {
	if e.store != nil {
		e.store.SetStatus(task.ID, status)
	}
}

func (e *Executor) setSummary(task *webhook.Task, summary string) {
	if e.store != nil && summary != "" {
		e.store.SetSummary(task.ID, summary)
	}
}

func (e *Executor) addLog(task *webhook.Task, level, msg string) {
	if e.store != nil {
		e.store.AddLog(task.ID, level, msg)
	}
}
