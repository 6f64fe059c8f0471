// Package mcp exposes the task registry over the Model Context Protocol
// so assistants can inspect task status and trigger runs.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"taskgate/internal/period"
	"taskgate/internal/scheduler"
	"taskgate/internal/task"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	reg    *task.Registry
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(reg *task.Registry, sched *scheduler.Scheduler, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		reg:    reg,
		sched:  sched,
		logger: logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"taskgate",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List all registered tasks with their derived status"),
	), s.handleTaskList)

	mcpServer.AddTool(mcp.NewTool("task_status",
		mcp.WithDescription("Get one task's derived status and next eligible start"),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Task name"),
		),
	), s.handleTaskStatus)

	mcpServer.AddTool(mcp.NewTool("task_history",
		mcp.WithDescription("Show a task's status log records, oldest first"),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Task name"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Return only the most recent N records"),
			mcp.Min(1),
		),
	), s.handleTaskHistory)

	mcpServer.AddTool(mcp.NewTool("task_run",
		mcp.WithDescription("Trigger an immediate run of a task, bypassing its start condition"),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Task name"),
		),
	), s.handleTaskRun)

	mcpServer.AddTool(mcp.NewTool("cadence_preview",
		mcp.WithDescription("Preview the upcoming windows of a cadence expression (named cadence, duration, or 5-field cron)"),
		mcp.WithString("cadence",
			mcp.Required(),
			mcp.Description("Cadence expression, e.g. 'daily' or '0 9 * * 1-5'"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of openings to return, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleCadencePreview)

	s.logger.Info("MCP tools registered", "count", 5)
}

func (s *MCPServer) handleTaskList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks := s.reg.Tasks()
	if len(tasks) == 0 {
		return mcp.NewToolResultText("no tasks registered"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		status, err := t.Status(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read status of %s: %v", t.Name(), err)), nil
		}
		if status == "" {
			status = "never run"
		}
		fmt.Fprintf(&b, "%s\n  status: %s\n  priority: %d\n", t.Name(), status, t.Priority())
		if t.Execution() != "" {
			fmt.Fprintf(&b, "  cadence: %s\n", t.Execution())
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleTaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "task", "")
	t, err := s.reg.Lookup(name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown task: %s", name)), nil
	}
	status, err := t.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read status: %v", err)), nil
	}
	if status == "" {
		status = "never run"
	}
	next, err := t.NextStart(ctx, time.Now())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("estimate next start: %v", err)), nil
	}
	result := fmt.Sprintf("task: %s\nstatus: %s\nnext start: %s\n",
		t.Name(), status, next.UTC().Format(time.RFC3339))
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleTaskHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "task", "")
	t, err := s.reg.Lookup(name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown task: %s", name)), nil
	}
	recs, err := t.History(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read history: %v", err)), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no records for %s", name)), nil
	}
	if limit := int(mcp.ParseFloat64(request, "limit", 0)); limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	var b strings.Builder
	for _, rec := range recs {
		fmt.Fprintf(&b, "%s  %-13s %s", rec.Time.UTC().Format(time.RFC3339), rec.Action, rec.Message)
		if rec.ExcText != "" {
			fmt.Fprintf(&b, " (%s)", rec.ExcText)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleTaskRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "task", "")
	if err := s.sched.RunNow(context.WithoutCancel(ctx), name); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %s: %v", name, err)), nil
	}
	s.logger.Info("task dispatched via mcp", "task", name)
	return mcp.NewToolResultText(fmt.Sprintf("task %s dispatched", name)), nil
}

func (s *MCPServer) handleCadencePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr := mcp.ParseString(request, "cadence", "")
	per, err := period.FromCadence(expr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cadence: %v", err)), nil
	}
	count := int(mcp.ParseFloat64(request, "count", 5))
	if count <= 0 || count > 10 {
		count = 5
	}
	times := period.NextOccurrences(per, time.Now(), count)
	var b strings.Builder
	fmt.Fprintf(&b, "next %d openings of %q:\n", len(times), expr)
	for _, tm := range times {
		b.WriteString(tm.UTC().Format(time.RFC3339))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
