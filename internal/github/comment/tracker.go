package comment

import (
	"context"
	"fmt"

	"github.com/google/go-github/v66/github"
)

// Tracker maintains the aggregate status comment on one pull request. All
// merge logic lives in Reconcile; the tracker only does the surrounding
// list/create/edit calls.
type Tracker struct {
	client *github.Client
	owner  string
	repo   string
	number int
	marker string
}

// NewTracker creates a tracker for one pull request thread.
func NewTracker(client *github.Client, owner, repo string, number int, marker string) *Tracker {
	return &Tracker{
		client: client,
		owner:  owner,
		repo:   repo,
		number: number,
		marker: marker,
	}
}

// Publish reconciles a rendered environment section into the aggregate
// comment, creating the comment on first use and editing it in place
// afterwards. Exactly one create or edit call is issued per invocation.
// It returns the comment id that was written.
func (t *Tracker) Publish(ctx context.Context, environment, section string) (int64, error) {
	if t == nil || t.client == nil {
		return 0, fmt.Errorf("nil tracker or client")
	}

	existing, err := t.listComments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list comments for %s/%s#%d: %w", t.owner, t.repo, t.number, err)
	}

	targetID, body, err := Reconcile(existing, t.marker, environment, section)
	if err != nil {
		return 0, err
	}

	if targetID == 0 {
		created, _, err := t.client.Issues.CreateComment(ctx, t.owner, t.repo, t.number,
			&github.IssueComment{Body: github.String(body)})
		if err != nil {
			return 0, fmt.Errorf("failed to create status comment: %w", err)
		}
		return created.GetID(), nil
	}

	_, _, err = t.client.Issues.EditComment(ctx, t.owner, t.repo, targetID,
		&github.IssueComment{Body: github.String(body)})
	if err != nil {
		return 0, fmt.Errorf("failed to update status comment %d: %w", targetID, err)
	}
	return targetID, nil
}

// PublishReport renders the report and publishes it.
func (t *Tracker) PublishReport(ctx context.Context, report EnvironmentReport) (int64, error) {
	return t.Publish(ctx, report.Environment, report.Render())
}

func (t *Tracker) listComments(ctx context.Context) ([]Comment, error) {
	var out []Comment
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		comments, resp, err := t.client.Issues.ListComments(ctx, t.owner, t.repo, t.number, opts)
		if err != nil {
			return nil, err
		}
		for _, c := range comments {
			out = append(out, Comment{ID: c.GetID(), Body: c.GetBody()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}
