// Package mcp exposes task management to AI agents over the Model Context
// Protocol on stdio.
package mcp

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"laraops/internal/core"
	"laraops/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	tasks     *store.TaskRepo
	scheduler *core.Scheduler
	logger    zerolog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(tasks *store.TaskRepo, scheduler *core.Scheduler, logger zerolog.Logger) *MCPServer {
	return &MCPServer{
		tasks:     tasks,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"laraops",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Register all tools
	s.registerTools(mcpServer)

	s.logger.Info().Msg("MCP server starting on stdio")

	// Start the stdio server
	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	// task_create
	mcpServer.AddTool(mcp.NewTool("task_create",
		mcp.WithDescription("Create a scheduled shell task. Uses a standard 5-field cron expression (minute hour day month weekday)"),
		mcp.WithString("id",
			mcp.Description("Task id (lowercase letters, digits and dashes). Omit to derive one from name"),
		),
		mcp.WithString("name",
			mcp.Description("Human name used to derive the id when id is omitted"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Shell command to run"),
		),
		mcp.WithString("cron",
			mcp.Required(),
			mcp.Description("Cron expression, e.g. '0 9 * * 1-5' for weekdays at 09:00"),
		),
		mcp.WithString("description",
			mcp.Description("Free-form description"),
		),
		mcp.WithString("working_dir",
			mcp.Description("Directory the command runs in"),
		),
		mcp.WithString("output_file",
			mcp.Description("File receiving stdout for crontab-driven runs"),
		),
		mcp.WithString("error_file",
			mcp.Description("File receiving stderr for crontab-driven runs"),
		),
	), s.handleCreateTask)

	// task_list
	mcpServer.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List all scheduled tasks"),
		mcp.WithString("state",
			mcp.Description("Filter: enabled or disabled"),
			mcp.Enum("enabled", "disabled"),
		),
	), s.handleListTasks)

	// task_get
	mcpServer.AddTool(mcp.NewTool("task_get",
		mcp.WithDescription("Get task details including the next run time"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
	), s.handleGetTask)

	// task_update
	mcpServer.AddTool(mcp.NewTool("task_update",
		mcp.WithDescription("Update task settings. Omitted fields keep their current value"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
		mcp.WithString("command",
			mcp.Description("New shell command"),
		),
		mcp.WithString("cron",
			mcp.Description("New cron expression"),
		),
		mcp.WithString("description",
			mcp.Description("New description"),
		),
		mcp.WithString("working_dir",
			mcp.Description("New working directory"),
		),
		mcp.WithString("output_file",
			mcp.Description("New stdout file for crontab-driven runs"),
		),
		mcp.WithString("error_file",
			mcp.Description("New stderr file for crontab-driven runs"),
		),
		mcp.WithBoolean("enabled",
			mcp.Description("Enable or disable the task"),
		),
	), s.handleUpdateTask)

	// task_delete
	mcpServer.AddTool(mcp.NewTool("task_delete",
		mcp.WithDescription("Delete a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
	), s.handleDeleteTask)

	// task_enable
	mcpServer.AddTool(mcp.NewTool("task_enable",
		mcp.WithDescription("Enable a task so crontab_sync installs it"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
	), s.handleEnableTask)

	// task_disable
	mcpServer.AddTool(mcp.NewTool("task_disable",
		mcp.WithDescription("Disable a task so crontab_sync removes it"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
	), s.handleDisableTask)

	// task_run
	mcpServer.AddTool(mcp.NewTool("task_run",
		mcp.WithDescription("Run a task now and wait for it to finish"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
	), s.handleRunTask)

	// task_next_run
	mcpServer.AddTool(mcp.NewTool("task_next_run",
		mcp.WithDescription("Show the next times a task will fire"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of occurrences to return, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleNextRun)

	// cron_preview
	mcpServer.AddTool(mcp.NewTool("cron_preview",
		mcp.WithDescription("Preview the future fire times of a cron expression"),
		mcp.WithString("cron",
			mcp.Required(),
			mcp.Description("Cron expression"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of occurrences to return, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleCronPreview)

	// crontab_sync
	mcpServer.AddTool(mcp.NewTool("crontab_sync",
		mcp.WithDescription("Install all enabled tasks into the system crontab managed block"),
	), s.handleCrontabSync)

	s.logger.Info().Int("count", 11).Msg("MCP tools registered")
}

// handleCreateTask handles the task_create tool call.
func (s *MCPServer) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "id", "")
	name := mcp.ParseString(request, "name", "")
	command := mcp.ParseString(request, "command", "")
	cronExpr := mcp.ParseString(request, "cron", "")

	if id == "" {
		if name == "" {
			return mcp.NewToolResultError("either id or name is required"), nil
		}
		id = core.GenerateTaskID(name)
	}

	task, err := core.NewTask(id, command, cronExpr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid task: %v", err)), nil
	}
	if v := mcp.ParseString(request, "description", ""); v != "" {
		task.SetDescription(v)
	}
	if v := mcp.ParseString(request, "working_dir", ""); v != "" {
		task.SetWorkingDirectory(&v)
	}
	if v := mcp.ParseString(request, "output_file", ""); v != "" {
		task.SetOutputFile(&v)
	}
	if v := mcp.ParseString(request, "error_file", ""); v != "" {
		task.SetErrorFile(&v)
	}

	if err := s.scheduler.AddTask(task); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}

	s.logger.Info().Str("task_id", task.ID()).Str("cron", cronExpr).Msg("task created")

	next := "never (no matching date within the search window)"
	if at, err := task.CronExpression().NextRunDate(time.Now()); err == nil {
		next = formatTime(at)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task created\nID: %s\nNext run: %s\nRun crontab_sync to install it into the system crontab.",
		task.ID(), next)), nil
}

// handleListTasks handles the task_list tool call.
func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := mcp.ParseString(request, "state", "")

	tasks := s.tasks.All()
	filtered := make([]*core.Task, 0, len(tasks))
	for _, t := range tasks {
		if state == "enabled" && !t.Enabled() {
			continue
		}
		if state == "disabled" && t.Enabled() {
			continue
		}
		filtered = append(filtered, t)
	}

	if len(filtered) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	result := fmt.Sprintf("Found %d tasks:\n\n", len(filtered))
	for _, t := range filtered {
		stateIcon := "▶️"
		if !t.Enabled() {
			stateIcon = "⏸️"
		}
		result += fmt.Sprintf("%s %s\n", stateIcon, t.ID())
		result += fmt.Sprintf("  Cron: %s\n", t.CronExpression().String())
		result += fmt.Sprintf("  Command: %s\n", truncateString(t.Command(), 60))
		if t.Description() != "" {
			result += fmt.Sprintf("  Description: %s\n", t.Description())
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

// handleGetTask handles the task_get tool call.
func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, ok := s.tasks.Find(taskID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
	}

	state := "enabled"
	if !task.Enabled() {
		state = "disabled"
	}
	result := fmt.Sprintf("Task ID: %s\n", task.ID())
	result += fmt.Sprintf("State: %s\n", state)
	result += fmt.Sprintf("Command: %s\n", task.Command())
	result += fmt.Sprintf("Cron: %s\n", task.CronExpression().String())
	if task.Description() != "" {
		result += fmt.Sprintf("Description: %s\n", task.Description())
	}
	if dir := task.WorkingDirectory(); dir != nil {
		result += fmt.Sprintf("Working dir: %s\n", *dir)
	}
	if f := task.OutputFile(); f != nil {
		result += fmt.Sprintf("Output file: %s\n", *f)
	}
	if f := task.ErrorFile(); f != nil {
		result += fmt.Sprintf("Error file: %s\n", *f)
	}
	if at, err := task.CronExpression().NextRunDate(time.Now()); err == nil {
		result += fmt.Sprintf("Next run: %s\n", formatTime(at))
	} else {
		result += fmt.Sprintf("Next run: %v\n", err)
	}
	result += fmt.Sprintf("Created: %s\n", formatTime(task.CreatedAt()))

	return mcp.NewToolResultText(result), nil
}

// handleUpdateTask handles the task_update tool call.
func (s *MCPServer) handleUpdateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, ok := s.tasks.Find(taskID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
	}

	if v := mcp.ParseString(request, "command", ""); v != "" {
		task.SetCommand(v)
	}
	if v := mcp.ParseString(request, "cron", ""); v != "" {
		if err := task.SetCronExpression(v); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
		}
	}
	if v := mcp.ParseString(request, "description", ""); v != "" {
		task.SetDescription(v)
	}
	if v := mcp.ParseString(request, "working_dir", ""); v != "" {
		task.SetWorkingDirectory(&v)
	}
	if v := mcp.ParseString(request, "output_file", ""); v != "" {
		task.SetOutputFile(&v)
	}
	if v := mcp.ParseString(request, "error_file", ""); v != "" {
		task.SetErrorFile(&v)
	}
	if _, ok := request.GetArguments()["enabled"]; ok {
		if mcp.ParseBoolean(request, "enabled", true) {
			task.Enable()
		} else {
			task.Disable()
		}
	}

	if err := s.tasks.Save(task); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update task: %v", err)), nil
	}

	state := "enabled"
	if !task.Enabled() {
		state = "disabled"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task updated: %s\nState: %s\nRun crontab_sync to refresh the system crontab.", task.ID(), state)), nil
}

// handleDeleteTask handles the task_delete tool call.
func (s *MCPServer) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	if err := s.scheduler.RemoveTask(taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task deleted: %s\nRun crontab_sync to remove it from the system crontab.", taskID)), nil
}

// handleEnableTask handles the task_enable tool call.
func (s *MCPServer) handleEnableTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	if err := s.scheduler.EnableTask(taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to enable task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task enabled: %s\nRun crontab_sync to install it.", taskID)), nil
}

// handleDisableTask handles the task_disable tool call.
func (s *MCPServer) handleDisableTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	if err := s.scheduler.DisableTask(taskID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to disable task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task disabled: %s\nRun crontab_sync to remove it.", taskID)), nil
}

// handleRunTask handles the task_run tool call. The child's output is
// captured into the tool result instead of the stdio protocol stream.
func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	var out bytes.Buffer
	sched := *s.scheduler
	sched.Stdout = &out
	sched.Stderr = &out

	exitCode, err := sched.RunTask(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to run task: %v", err)), nil
	}

	result := fmt.Sprintf("Task finished: %s\nExit code: %d\n", taskID, exitCode)
	if out.Len() > 0 {
		result += fmt.Sprintf("Output:\n%s", truncateString(out.String(), 4000))
	}
	return mcp.NewToolResultText(result), nil
}

// handleNextRun handles the task_next_run tool call.
func (s *MCPServer) handleNextRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, ok := s.tasks.Find(taskID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
	}

	count := int(mcp.ParseFloat64(request, "count", 5))
	times, err := task.CronExpression().NextOccurrences(time.Now(), count)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no upcoming run: %v", err)), nil
	}

	result := fmt.Sprintf("Upcoming runs for %s (%s):\n", task.ID(), task.CronExpression().String())
	for i, t := range times {
		result += fmt.Sprintf("  %d. %s\n", i+1, formatTime(t))
	}
	return mcp.NewToolResultText(result), nil
}

// handleCronPreview handles the cron_preview tool call.
func (s *MCPServer) handleCronPreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cronExpr := mcp.ParseString(request, "cron", "")

	schedule, err := core.ParseCron(cronExpr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
	}

	count := int(mcp.ParseFloat64(request, "count", 5))
	times, err := schedule.NextOccurrences(time.Now(), count)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("expression never fires: %v", err)), nil
	}

	result := fmt.Sprintf("Cron expression: %s\n", cronExpr)
	result += fmt.Sprintf("Time zone: %s\n\n", time.Now().Location())
	result += "Upcoming fire times:\n"
	for i, t := range times {
		result += fmt.Sprintf("  %d. %s\n", i+1, formatTime(t))
	}

	return mcp.NewToolResultText(result), nil
}

// handleCrontabSync handles the crontab_sync tool call.
func (s *MCPServer) handleCrontabSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.scheduler.SyncToSystemCrontab(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to sync crontab: %v", err)), nil
	}
	count := len(s.tasks.EnabledTasks())
	return mcp.NewToolResultText(fmt.Sprintf("System crontab updated: %d enabled tasks installed", count)), nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
