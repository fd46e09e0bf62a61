package github

import (
	"fmt"

	"github.com/hysun/tfbot/internal/toolexec"
)

// GHClient wraps the gh CLI operations the pipeline needs around a
// checked-out repository. Comment reconciliation goes through the REST
// client in the comment subpackage; this client covers the git-side
// plumbing (clone, labels) where gh handles auth and redirects for us.
type GHClient interface {
	// Clone clones a repository branch into destDir
	Clone(repo, branch, destDir, token string) error

	// AddLabel adds a label to an issue or pull request
	AddLabel(repo string, number int, label, token string) error
}

// CLIClient is the production implementation shelling out to gh
type CLIClient struct {
	runner toolexec.Runner
}

// NewCLIClient creates a gh CLI client
func NewCLIClient() *CLIClient {
	return &CLIClient{runner: &toolexec.RealRunner{}}
}

// NewCLIClientWithRunner creates a gh CLI client with a custom runner
func NewCLIClientWithRunner(runner toolexec.Runner) *CLIClient {
	return &CLIClient{runner: runner}
}

// Clone clones a repository branch into destDir
func (c *CLIClient) Clone(repo, branch, destDir, token string) error {
	return retryWithBackoff(func() error {
		output, err := c.runner.RunInDirEnv("", tokenEnv(token),
			"gh", "repo", "clone", repo, destDir, "--", "--depth", "1", "-b", branch)
		if err != nil {
			return fmt.Errorf("gh repo clone failed: %w\nOutput: %s", err, string(output))
		}
		return nil
	})
}

// AddLabel adds a label to an issue or pull request
func (c *CLIClient) AddLabel(repo string, number int, label, token string) error {
	return retryWithBackoff(func() error {
		output, err := c.runner.RunInDirEnv("", tokenEnv(token),
			"gh", "issue", "edit", fmt.Sprintf("%d", number),
			"--repo", repo, "--add-label", label)
		if err != nil {
			return fmt.Errorf("gh issue edit failed: %w\nOutput: %s", err, string(output))
		}
		return nil
	})
}

// tokenEnv scopes the gh credential to one invocation. Workers run
// concurrently with per-installation tokens, so the process environment
// must stay untouched.
func tokenEnv(token string) []string {
	return []string{"GH_TOKEN=" + token}
}

// MockGHClient is a mock implementation for testing
type MockGHClient struct {
	CloneFunc    func(repo, branch, destDir, token string) error
	AddLabelFunc func(repo string, number int, label, token string) error

	CloneCalls []struct {
		Repo    string
		Branch  string
		DestDir string
	}
	AddLabelCalls []struct {
		Repo   string
		Number int
		Label  string
	}
}

// NewMockGHClient creates a new mock gh client
func NewMockGHClient() *MockGHClient {
	return &MockGHClient{}
}

// Clone mock implementation
func (m *MockGHClient) Clone(repo, branch, destDir, token string) error {
	m.CloneCalls = append(m.CloneCalls, struct {
		Repo    string
		Branch  string
		DestDir string
	}{repo, branch, destDir})

	if m.CloneFunc != nil {
		return m.CloneFunc(repo, branch, destDir, token)
	}
	return nil
}

// AddLabel mock implementation
func (m *MockGHClient) AddLabel(repo string, number int, label, token string) error {
	m.AddLabelCalls = append(m.AddLabelCalls, struct {
		Repo   string
		Number int
		Label  string
	}{repo, number, label})

	if m.AddLabelFunc != nil {
		return m.AddLabelFunc(repo, number, label, token)
	}
	return nil
}
