package toolexec

import "os/exec"

// Runner is an interface for executing the external tools the pipeline
// drives (terraform, gh, vault, cosign). The abstraction allows mocking
// tool invocations in tests.
type Runner interface {
	// Run executes a command and returns the combined output and error
	Run(name string, args ...string) ([]byte, error)

	// RunInDir executes a command in a specific directory
	RunInDir(dir, name string, args ...string) ([]byte, error)

	// RunInDirEnv executes a command in a directory with extra
	// environment variables appended to the current environment
	RunInDirEnv(dir string, env []string, name string, args ...string) ([]byte, error)
}

// RealRunner is the production implementation using os/exec
type RealRunner struct{}

// Run executes a command using os/exec
func (r *RealRunner) Run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	return cmd.CombinedOutput()
}

// RunInDir executes a command in a specific directory
func (r *RealRunner) RunInDir(dir, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// RunInDirEnv executes a command in a directory with extra environment
// variables. The extra variables are appended after the inherited
// environment so they take precedence.
func (r *RealRunner) RunInDirEnv(dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	return cmd.CombinedOutput()
}

// MockRunner is a test implementation that returns predefined responses
type MockRunner struct {
	// RunFunc is called when Run is invoked
	RunFunc func(name string, args ...string) ([]byte, error)

	// RunInDirFunc is called when RunInDir or RunInDirEnv is invoked
	RunInDirFunc func(dir, name string, args ...string) ([]byte, error)

	// Calls tracks all tool invocations
	Calls []MockCall
}

// MockCall represents a single tool invocation
type MockCall struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// Run executes the mock function
func (m *MockRunner) Run(name string, args ...string) ([]byte, error) {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args})

	if m.RunFunc != nil {
		return m.RunFunc(name, args...)
	}

	return []byte(""), nil
}

// RunInDir executes the mock function with directory context
func (m *MockRunner) RunInDir(dir, name string, args ...string) ([]byte, error) {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args, Dir: dir})

	if m.RunInDirFunc != nil {
		return m.RunInDirFunc(dir, name, args...)
	}

	return []byte(""), nil
}

// RunInDirEnv executes the mock function with directory and env context
func (m *MockRunner) RunInDirEnv(dir string, env []string, name string, args ...string) ([]byte, error) {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args, Dir: dir, Env: env})

	if m.RunInDirFunc != nil {
		return m.RunInDirFunc(dir, name, args...)
	}

	return []byte(""), nil
}

// NewMockRunner creates a new mock with default behavior
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Calls: make([]MockCall, 0),
	}
}
