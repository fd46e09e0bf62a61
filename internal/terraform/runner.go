// Package terraform drives the terraform CLI as an opaque external tool.
// Exit codes and captured output are consumed as-is; no attempt is made
// to model provider behavior.
package terraform

import (
	"errors"
	"strings"

	"github.com/hysun/tfbot/internal/toolexec"
)

// Outcome labels the result of one pipeline step.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeChanged   Outcome = "changed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
)

// PlanFile is the saved plan artifact consumed by Apply.
const PlanFile = "tfplan.bin"

// StepResult carries the outcome and captured combined output of one step.
type StepResult struct {
	Name    string
	Outcome Outcome
	Output  string
}

// Failed reports whether the step should stop the pipeline.
func (r StepResult) Failed() bool {
	return r.Outcome == OutcomeFailure
}

// Runner executes terraform steps inside an environment's working
// directory. Extra environment variables (provider credentials fetched
// from the secrets store) are injected into every invocation.
type Runner struct {
	runner toolexec.Runner
	binary string
	env    []string
}

// NewRunner creates a runner using the given terraform binary name.
func NewRunner(binary string, extraEnv []string) *Runner {
	return NewRunnerWith(&toolexec.RealRunner{}, binary, extraEnv)
}

// NewRunnerWith creates a runner with a custom tool executor.
func NewRunnerWith(exec toolexec.Runner, binary string, extraEnv []string) *Runner {
	if binary == "" {
		binary = "terraform"
	}
	return &Runner{runner: exec, binary: binary, env: extraEnv}
}

// FmtCheck runs terraform fmt in check mode.
func (r *Runner) FmtCheck(dir string) StepResult {
	out, err := r.run(dir, "fmt", "-check", "-recursive", "-no-color")
	return simpleResult("Format", out, err)
}

// Init initializes the working directory.
func (r *Runner) Init(dir string) StepResult {
	out, err := r.run(dir, "init", "-input=false", "-no-color")
	return simpleResult("Init", out, err)
}

// Validate checks the configuration.
func (r *Runner) Validate(dir string) StepResult {
	out, err := r.run(dir, "validate", "-no-color")
	return simpleResult("Validate", out, err)
}

// Plan produces a saved plan. With -detailed-exitcode terraform exits 0
// when no changes are pending and 2 when the plan is non-empty; both are
// successful outcomes.
func (r *Runner) Plan(dir, varFile string) StepResult {
	args := []string{"plan", "-input=false", "-no-color", "-detailed-exitcode", "-out=" + PlanFile}
	if varFile != "" {
		args = append(args, "-var-file="+varFile)
	}

	out, err := r.run(dir, args...)
	result := StepResult{Name: "Plan", Output: string(out)}

	switch {
	case err == nil:
		result.Outcome = OutcomeUnchanged
	case exitCode(err) == 2:
		result.Outcome = OutcomeChanged
	default:
		result.Outcome = OutcomeFailure
	}
	return result
}

// Apply applies the saved plan produced by Plan.
func (r *Runner) Apply(dir string) StepResult {
	out, err := r.run(dir, "apply", "-input=false", "-no-color", "-auto-approve", PlanFile)
	result := simpleResult("Apply", out, err)
	return result
}

func (r *Runner) run(dir string, args ...string) ([]byte, error) {
	return r.runner.RunInDirEnv(dir, r.env, r.binary, args...)
}

func simpleResult(name string, out []byte, err error) StepResult {
	result := StepResult{Name: name, Output: string(out), Outcome: OutcomeSuccess}
	if err != nil {
		result.Outcome = OutcomeFailure
	}
	return result
}

type exitCoder interface {
	ExitCode() int
}

// exitCode extracts the process exit code from an exec error, -1 when
// the error carries none.
func exitCode(err error) int {
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

// Summary extracts the resource-change summary line from plan or apply
// output, e.g. "Plan: 2 to add, 1 to change, 0 to destroy." Empty when
// the output has no such line.
func Summary(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Plan:") ||
			strings.HasPrefix(line, "Apply complete!") ||
			strings.HasPrefix(line, "No changes.") {
			return line
		}
	}
	return ""
}
