package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v66/github"
)

// NewAPIClient builds an authenticated go-github client from an
// installation or personal access token.
func NewAPIClient(token string) *gh.Client {
	return gh.NewClient(http.DefaultClient).WithAuthToken(token)
}

// HasWriteAccess reports whether the user holds write or admin permission
// on the repository. The webhook handler uses this to refuse plan/apply
// runs triggered by actors who could not push to the repo anyway.
func HasWriteAccess(ctx context.Context, client *gh.Client, owner, repo, user string) (bool, error) {
	perm, _, err := client.Repositories.GetPermissionLevel(ctx, owner, repo, user)
	if err != nil {
		return false, fmt.Errorf("failed to get permission level for %s: %w", user, err)
	}

	p := perm.GetPermission()
	return p == "write" || p == "admin", nil
}
