package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hysun/tfbot/internal/github"
	"github.com/hysun/tfbot/internal/github/comment"
)

// PublishReportParams defines the input parameters for the tool
type PublishReportParams struct {
	Environment string `json:"environment" jsonschema:"The deployment environment the report covers"`
	Section     string `json:"section" jsonschema:"The rendered report body for this environment"`
}

const defaultMarker = "<!-- tfbot -->"

// HandlePublishReport handles the publish_plan_report tool call
func HandlePublishReport(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params PublishReportParams,
) (*mcp.CallToolResult, any, error) {
	log.Printf("[MCP Report Server] Received publish_plan_report request")

	owner := os.Getenv("REPO_OWNER")
	repo := os.Getenv("REPO_NAME")
	numberStr := os.Getenv("PR_NUMBER")
	token := os.Getenv("GITHUB_TOKEN")
	marker := os.Getenv("COMMENT_MARKER")
	if marker == "" {
		marker = defaultMarker
	}

	if params.Environment == "" {
		return nil, nil, fmt.Errorf("environment parameter is required")
	}
	if params.Section == "" {
		return nil, nil, fmt.Errorf("section parameter is required")
	}

	number, err := strconv.Atoi(numberStr)
	if err != nil {
		log.Printf("[MCP Report Server] Invalid PR_NUMBER: %v", err)
		return nil, nil, fmt.Errorf("invalid PR_NUMBER: %w", err)
	}

	tracker := comment.NewTracker(github.NewAPIClient(token), owner, repo, number, marker)
	commentID, err := tracker.Publish(ctx, params.Environment, comment.RedactSecrets(params.Section))
	if err != nil {
		log.Printf("[MCP Report Server] Failed to publish report: %v", err)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{
					Text: fmt.Sprintf("Error: %v", err),
				},
			},
			IsError: true,
		}, nil, nil
	}

	resultText := fmt.Sprintf(`{
  "success": true,
  "owner": "%s",
  "repo": "%s",
  "pull_request": %d,
  "environment": "%s",
  "comment_id": %d
}`, owner, repo, number, params.Environment, commentID)

	log.Printf("[MCP Report Server] Published %s report to comment #%d", params.Environment, commentID)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: resultText},
		},
	}, nil, nil
}
