package webhook

import "strconv"

// Stage selects which half of the pipeline a task runs.
const (
	StagePlan  = "plan"
	StageApply = "apply"
)

// Task is one pipeline execution for one environment of one pull request.
type Task struct {
	ID          string
	Repo        string // owner/repo
	Owner       string
	Name        string
	Number      int
	HeadBranch  string
	HeadSHA     string
	BaseBranch  string
	Environment string
	Stage       string // StagePlan or StageApply
	Actor       string // user who triggered the run
	Attempt     int    // managed by the dispatcher
}

// Key identifies the serialization group for this task: one pipeline at a
// time per pull request and environment.
func (t *Task) Key() string {
	return t.Repo + "#" + strconv.Itoa(t.Number) + "/" + t.Environment
}

// TaskDispatcher enqueues tasks for asynchronous execution
type TaskDispatcher interface {
	Enqueue(task *Task) error
}
