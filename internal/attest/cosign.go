// Package attest records a deployment attestation for a container image
// after a successful apply, using cosign as an opaque external tool.
package attest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hysun/tfbot/internal/toolexec"
)

// Predicate is the deployment statement attached to the image.
type Predicate struct {
	Environment string    `json:"environment"`
	Repository  string    `json:"repository"`
	PullRequest int       `json:"pullRequest"`
	Summary     string    `json:"summary"`
	DeployedAt  time.Time `json:"deployedAt"`
}

// Attester signs deployment predicates onto images.
type Attester interface {
	Attest(image string, pred Predicate) error
}

// CosignCLI shells out to cosign. Key material comes from the ambient
// cosign configuration (COSIGN_KEY or keyless via the deploy identity).
type CosignCLI struct {
	runner        toolexec.Runner
	binary        string
	predicateType string
}

// NewCosignCLI creates a cosign-backed attester.
func NewCosignCLI(predicateType string) *CosignCLI {
	return NewCosignCLIWith(&toolexec.RealRunner{}, "cosign", predicateType)
}

// NewCosignCLIWith creates an attester with a custom runner and binary.
func NewCosignCLIWith(runner toolexec.Runner, binary, predicateType string) *CosignCLI {
	if binary == "" {
		binary = "cosign"
	}
	if predicateType == "" {
		predicateType = "https://tfbot.dev/deployment/v1"
	}
	return &CosignCLI{runner: runner, binary: binary, predicateType: predicateType}
}

// Attest writes the predicate to a temp file and attaches it to the image.
func (c *CosignCLI) Attest(image string, pred Predicate) error {
	data, err := json.Marshal(pred)
	if err != nil {
		return fmt.Errorf("failed to marshal predicate: %w", err)
	}

	dir, err := os.MkdirTemp("", "tfbot-attest-")
	if err != nil {
		return fmt.Errorf("failed to create predicate dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "predicate.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write predicate: %w", err)
	}

	out, err := c.runner.Run(c.binary, "attest", "--yes",
		"--predicate", path, "--type", c.predicateType, image)
	if err != nil {
		return fmt.Errorf("cosign attest failed for %s: %w\nOutput: %s", image, err, string(out))
	}
	return nil
}

// NopAttester satisfies Attester when no image is configured.
type NopAttester struct{}

// Attest does nothing.
func (NopAttester) Attest(string, Predicate) error { return nil }
