// Package mcp exposes a running codeswarm pipeline over the Model Context
// Protocol, so agents (and external tooling) can read the shared coordination
// state and publish cross-agent insights.
package mcp

import (
	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"codeswarm/scheduler"
)

const serverInstructions = "You are connected to a codeswarm analysis run. " +
	"Several analysis agents may be executing in parallel against the same repository. " +
	"Call get_run_status to see slot usage and which agents are active or completed. " +
	"Call get_shared_insights to read what other agents have published. " +
	"Use add_insight to share findings that later-group agents should see."

// RunSource provides read access to a pipeline run.
type RunSource interface {
	Snapshot() scheduler.RunSnapshot
	Engine() *scheduler.CoordinationEngine
}

// SchedulerMCPServer wraps an MCP server bound to one pipeline run.
type SchedulerMCPServer struct {
	server *mcpserver.MCPServer
	run    RunSource
}

// NewSchedulerMCPServer creates the MCP server for a run.
func NewSchedulerMCPServer(run RunSource) *SchedulerMCPServer {
	s := mcpserver.NewMCPServer(
		"codeswarm",
		"0.1.0",
		mcpserver.WithInstructions(serverInstructions),
	)

	m := &SchedulerMCPServer{server: s, run: run}
	m.registerTools()
	return m
}

func (m *SchedulerMCPServer) registerTools() {
	getRunStatus := gomcp.NewTool("get_run_status",
		gomcp.WithDescription(
			"Read the run snapshot: queue slot usage, per-provider token usage, "+
				"active and completed agents, and the current parallel group.",
		),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	m.server.AddTool(getRunStatus, handleGetRunStatus(m.run))

	listAgents := gomcp.NewTool("list_agents",
		gomcp.WithDescription(
			"List every agent in the coordination plan with its current state.",
		),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	m.server.AddTool(listAgents, handleListAgents(m.run))

	getInsights := gomcp.NewTool("get_shared_insights",
		gomcp.WithDescription(
			"Read the shared cross-agent insight log for this run, oldest first.",
		),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	m.server.AddTool(getInsights, handleGetSharedInsights(m.run))

	addInsight := gomcp.NewTool("add_insight",
		gomcp.WithDescription(
			"Publish a cross-agent insight. Target a specific agent as provider/role, "+
				"or \"all\" to notify everyone.",
		),
		gomcp.WithString("source",
			gomcp.Required(),
			gomcp.Description("Identity of the publishing agent, as provider/role."),
		),
		gomcp.WithString("target",
			gomcp.Description("Receiving agent identity as provider/role, or \"all\". Defaults to \"all\"."),
		),
		gomcp.WithString("message",
			gomcp.Required(),
			gomcp.Description("The insight to share."),
		),
	)
	m.server.AddTool(addInsight, handleAddInsight(m.run))
}

// Serve runs the server over stdio until the client disconnects.
func (m *SchedulerMCPServer) Serve() error {
	return mcpserver.ServeStdio(m.server)
}
