package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	// 1. Validate required environment variables
	requiredEnv := []string{"GITHUB_TOKEN", "REPO_OWNER", "REPO_NAME", "PR_NUMBER"}
	for _, env := range requiredEnv {
		if os.Getenv(env) == "" {
			log.Fatalf("[MCP Report Server] Missing required environment variable: %s", env)
		}
	}

	log.Println("[MCP Report Server] Starting pipeline report MCP server")
	log.Printf("[MCP Report Server] Repository: %s/%s", os.Getenv("REPO_OWNER"), os.Getenv("REPO_NAME"))
	log.Printf("[MCP Report Server] Pull request: #%s", os.Getenv("PR_NUMBER"))

	// 2. Create MCP server
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "pipeline-report-server",
		Version: "v1.0.0",
	}, nil)

	// 3. Register publish_plan_report tool
	tool := &mcp.Tool{
		Name:        "publish_plan_report",
		Description: "Publish a per-environment pipeline report into the aggregate PR status comment, replacing any previous report for the same environment",
	}
	mcp.AddTool(server, tool, HandlePublishReport)
	log.Println("[MCP Report Server] Registered tool: publish_plan_report")

	// 4. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[MCP Report Server] Received shutdown signal")
		cancel()
	}()

	// 5. Start server with stdio transport
	log.Println("[MCP Report Server] Starting on stdio transport...")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("[MCP Report Server] Server error: %v", err)
	}
	log.Println("[MCP Report Server] Server stopped gracefully")
}
