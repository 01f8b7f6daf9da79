package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"codeswarm/log"
	"codeswarm/scheduler"
)

func handleGetRunStatus(run RunSource) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		snap := run.Snapshot()
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("failed to encode run status: %v", err)), nil
		}
		return gomcp.NewToolResultText(string(data)), nil
	}
}

type agentEntry struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func handleListAgents(run RunSource) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		engine := run.Engine()
		if engine == nil {
			return gomcp.NewToolResultError("no run in progress"), nil
		}

		states := engine.Snapshot().States
		agents := make([]agentEntry, 0, len(states))
		for id, state := range states {
			agents = append(agents, agentEntry{ID: id, State: state})
		}
		sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })

		data, err := json.MarshalIndent(agents, "", "  ")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("failed to encode agent list: %v", err)), nil
		}
		return gomcp.NewToolResultText(string(data)), nil
	}
}

func handleGetSharedInsights(run RunSource) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		engine := run.Engine()
		if engine == nil {
			return gomcp.NewToolResultError("no run in progress"), nil
		}

		insights := engine.Insights()
		data, err := json.MarshalIndent(insights, "", "  ")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("failed to encode insights: %v", err)), nil
		}
		return gomcp.NewToolResultText(string(data)), nil
	}
}

func handleAddInsight(run RunSource) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		engine := run.Engine()
		if engine == nil {
			return gomcp.NewToolResultError("no run in progress"), nil
		}

		source := req.GetString("source", "")
		if source == "" {
			return gomcp.NewToolResultError("source is required"), nil
		}
		target := req.GetString("target", "")
		if target == "" {
			target = scheduler.InsightTargetAll
		}
		message := req.GetString("message", "")
		if message == "" {
			return gomcp.NewToolResultError("message is required"), nil
		}

		insight := engine.AddCrossAgentInsight(source, target, map[string]interface{}{
			"message": message,
		})
		log.InfoLog.Printf("insight %s published via mcp: %s -> %s", insight.ID, source, target)

		return gomcp.NewToolResultText(fmt.Sprintf("insight %s published to %s", insight.ID, target)), nil
	}
}
