// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the otk hierarchy and reparent operations as MCP tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/internal/observability"
	"github.com/edwh/otk/pkg/models"
)

// Server wraps otk services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	svc         core.Service
	presenter   *core.TreePresenter
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server over svc. metricsCalc and alertEngine
// may be nil if the event log is unavailable.
func NewServer(svc core.Service, presenter *core.TreePresenter, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		svc:         svc,
		presenter:   presenter,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "otk", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type hierarchyInput struct {
	ID         int64    `json:"id" jsonschema:"the Odoo record ID of the root task or project"`
	Depth      int      `json:"depth,omitempty" jsonschema:"maximum depth below the root (defaults to the configured max_depth)"`
	Verbosity  int      `json:"verbosity,omitempty" jsonschema:"detail level of the text tree, 0 to 3"`
	Stages     []string `json:"stages,omitempty" jsonschema:"only keep tasks in these stages, plus their ancestors"`
	Priorities []int    `json:"priorities,omitempty" jsonschema:"only keep tasks with these priority levels (0-3), plus their ancestors"`
}

type hierarchyOutput struct {
	Type       string `json:"type"`
	RootID     int64  `json:"root_id"`
	RootName   string `json:"root_name"`
	TotalTasks int    `json:"total_tasks"`
	MainTasks  int    `json:"main_tasks"`
	NodeCount  int    `json:"node_count"`
	Truncated  bool   `json:"truncated"`
	Tree       string `json:"tree"`
	Document   any    `json:"document"`
}

type moveTaskInput struct {
	TaskID      int64 `json:"task_id" jsonschema:"the task to move"`
	NewParentID int64 `json:"new_parent_id" jsonschema:"the task that becomes its parent"`
	ProjectID   int64 `json:"project_id,omitempty" jsonschema:"also move the task to this project"`
}

type promoteTaskInput struct {
	TaskID int64 `json:"task_id" jsonschema:"the subtask to turn into a main task"`
}

type moveTasksInput struct {
	TaskIDs     []int64 `json:"task_ids" jsonschema:"the tasks to move, processed in order"`
	NewParentID int64   `json:"new_parent_id" jsonschema:"the task that becomes their parent"`
	ProjectID   int64   `json:"project_id,omitempty" jsonschema:"also move the tasks to this project"`
}

type searchTasksInput struct {
	Term  string `json:"term" jsonschema:"case-insensitive substring of the task name"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results (default 50)"`
}

type taskSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ParentID    int64  `json:"parent_id,omitempty"`
	ProjectID   int64  `json:"project_id,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	Stage       string `json:"stage"`
}

type searchTasksOutput struct {
	Tasks []taskSummary `json:"tasks"`
	Count int           `json:"count"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	HierarchiesBuilt  int            `json:"hierarchies_built"`
	TruncatedBuilds   int            `json:"truncated_builds"`
	TasksMoved        int            `json:"tasks_moved"`
	TasksPromoted     int            `json:"tasks_promoted"`
	MoveFailures      int            `json:"move_failures"`
	FailuresByKind    map[string]int `json:"failures_by_kind"`
	BatchMoves        int            `json:"batch_moves"`
	BuildsByType      map[string]int `json:"builds_by_type"`
	AverageBuildNodes float64        `json:"average_build_nodes"`
	EventCount        int            `json:"event_count"`
	OldestEvent       string         `json:"oldest_event,omitempty"`
	NewestEvent       string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task_hierarchy",
		Description: "Get the subtask tree under a task, with its parent chain. Returns a text tree and the JSON document.",
	}, s.handleTaskHierarchy)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_project_hierarchy",
		Description: "Get the full task tree of a project: its main tasks and their subtasks.",
	}, s.handleProjectHierarchy)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "move_task",
		Description: "Make a task a subtask of another task. Refuses moves that would create a circular parent chain.",
	}, s.handleMoveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "promote_task",
		Description: "Turn a subtask into a main task by clearing its parent.",
	}, s.handlePromoteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "move_tasks",
		Description: "Move several tasks under one parent. Each task succeeds or fails on its own.",
	}, s.handleMoveTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_tasks",
		Description: "Find tasks whose name contains a term. Use it to look up task IDs.",
	}, s.handleSearchTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated metrics from the event log: builds, moves, promotions and failures by kind.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (move failures, remote errors, repeated cycle attempts, truncated trees).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleTaskHierarchy(ctx context.Context, _ *gomcp.CallToolRequest, input hierarchyInput) (*gomcp.CallToolResult, hierarchyOutput, error) {
	if input.ID <= 0 {
		return errorResult("id is required"), hierarchyOutput{}, nil
	}
	h, err := s.svc.TaskHierarchy(ctx, input.ID, input.Depth, input.filter())
	if err != nil {
		return failure(fmt.Sprintf("getting hierarchy of task %d", input.ID), err), hierarchyOutput{}, nil
	}
	return nil, s.hierarchyToOutput(h, input.Verbosity), nil
}

func (s *Server) handleProjectHierarchy(ctx context.Context, _ *gomcp.CallToolRequest, input hierarchyInput) (*gomcp.CallToolResult, hierarchyOutput, error) {
	if input.ID <= 0 {
		return errorResult("id is required"), hierarchyOutput{}, nil
	}
	h, err := s.svc.ProjectHierarchy(ctx, input.ID, input.Depth, input.filter())
	if err != nil {
		return failure(fmt.Sprintf("getting hierarchy of project %d", input.ID), err), hierarchyOutput{}, nil
	}
	return nil, s.hierarchyToOutput(h, input.Verbosity), nil
}

func (s *Server) handleMoveTask(ctx context.Context, _ *gomcp.CallToolRequest, input moveTaskInput) (*gomcp.CallToolResult, core.MoveOutcome, error) {
	out, err := s.svc.Move(ctx, input.TaskID, input.NewParentID, input.ProjectID)
	if err != nil {
		return failure(fmt.Sprintf("moving task %d", input.TaskID), err), core.MoveOutcome{}, nil
	}
	return nil, *out, nil
}

func (s *Server) handlePromoteTask(ctx context.Context, _ *gomcp.CallToolRequest, input promoteTaskInput) (*gomcp.CallToolResult, core.PromoteOutcome, error) {
	out, err := s.svc.Promote(ctx, input.TaskID)
	if err != nil {
		return failure(fmt.Sprintf("promoting task %d", input.TaskID), err), core.PromoteOutcome{}, nil
	}
	return nil, *out, nil
}

func (s *Server) handleMoveTasks(ctx context.Context, _ *gomcp.CallToolRequest, input moveTasksInput) (*gomcp.CallToolResult, core.BatchOutcome, error) {
	if len(input.TaskIDs) == 0 {
		return errorResult("task_ids must not be empty"), core.BatchOutcome{}, nil
	}
	out, err := s.svc.MoveMany(ctx, input.TaskIDs, input.NewParentID, input.ProjectID)
	if err != nil {
		return failure("moving tasks", err), core.BatchOutcome{}, nil
	}
	return nil, *out, nil
}

func (s *Server) handleSearchTasks(ctx context.Context, _ *gomcp.CallToolRequest, input searchTasksInput) (*gomcp.CallToolResult, searchTasksOutput, error) {
	tasks, err := s.svc.SearchTasks(ctx, input.Term, input.Limit)
	if err != nil {
		return failure("searching tasks", err), searchTasksOutput{}, nil
	}

	out := searchTasksOutput{
		Tasks: make([]taskSummary, len(tasks)),
		Count: len(tasks),
	}
	for i, t := range tasks {
		out.Tasks[i] = taskSummary{
			ID:          t.ID,
			Name:        t.Name,
			ParentID:    t.ParentID,
			ProjectID:   t.ProjectID,
			ProjectName: t.ProjectName,
			Stage:       core.CleanStageName(t.StageName),
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := observability.ParseSince(sinceStr, time.Now().UTC())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		HierarchiesBuilt:  metrics.HierarchiesBuilt,
		TruncatedBuilds:   metrics.TruncatedBuilds,
		TasksMoved:        metrics.TasksMoved,
		TasksPromoted:     metrics.TasksPromoted,
		MoveFailures:      metrics.MoveFailures,
		FailuresByKind:    metrics.FailuresByKind,
		BatchMoves:        metrics.BatchMoves,
		BuildsByType:      metrics.BuildsByType,
		AverageBuildNodes: metrics.AverageBuildNodes,
		EventCount:        metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func (in hierarchyInput) filter() core.HierarchyFilter {
	return core.HierarchyFilter{Stages: in.Stages, Priorities: in.Priorities}
}

func (s *Server) hierarchyToOutput(h *models.Hierarchy, verbosity int) hierarchyOutput {
	return hierarchyOutput{
		Type:       string(h.Type),
		RootID:     h.Root.ID,
		RootName:   h.Root.Name,
		TotalTasks: h.TotalTasks,
		MainTasks:  h.MainTaskCount,
		NodeCount:  h.NodeCount,
		Truncated:  h.Truncated,
		Tree:       s.presenter.RenderText(h, verbosity),
		Document:   s.presenter.RenderJSON(h),
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		FailuresByKind: make(map[string]int),
		BuildsByType:   make(map[string]int),
	}
}

// failure reports err to the client prefixed by op and tagged with its kind.
func failure(op string, err error) *gomcp.CallToolResult {
	return errorResult(fmt.Sprintf("%s: %s [%s]", op, err, core.ErrorKind(err)))
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
