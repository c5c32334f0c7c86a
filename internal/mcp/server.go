// Package mcp exposes the task lifecycle over the Model Context
// Protocol on stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ldi/nudge/internal/service"
	"github.com/ldi/nudge/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server over the lifecycle service.
func NewServer(svc *service.Service) *server.MCPServer {
	s := server.NewMCPServer("Nudge", "0.1.0")

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task."),
		mcp.WithString("title", mcp.Description("Task title (non-empty, max 100 chars)"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description (max 500 chars)")),
		mcp.WithString("category", mcp.Description("Category (work|study|life)")),
		mcp.WithString("priority", mcp.Description("Priority (high|medium|low)")),
		mcp.WithString("due_at", mcp.Description("Due time, e.g. '2025-06-02 14:30'")),
		mcp.WithString("reminder_lead", mcp.Description("Reminder lead (none|at_time|5m|15m|30m|1h|2h|1d)")),
	), createTaskHandler(svc))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update an existing task. Omitted fields are left untouched."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("category", mcp.Description("New category")),
		mcp.WithString("priority", mcp.Description("New priority")),
		mcp.WithString("due_at", mcp.Description("New due time")),
		mcp.WithBoolean("clear_due_at", mcp.Description("Remove the due time (also resets the reminder)")),
		mcp.WithString("reminder_lead", mcp.Description("New reminder lead")),
	), updateTaskHandler(svc))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task. Deleting an unknown id is a no-op."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), deleteTaskHandler(svc))

	s.AddTool(mcp.NewTool("toggle_task",
		mcp.WithDescription("Flip a task between pending and completed."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), toggleTaskHandler(svc))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by id."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), getTaskHandler(svc))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filters, sorted."),
		mcp.WithString("category", mcp.Description("Filter by category")),
		mcp.WithString("status", mcp.Description("Filter by status (pending|completed)")),
		mcp.WithString("sort", mcp.Description("Sort key (created|due|priority), newest-created first by default")),
	), listTasksHandler(svc))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func createTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		due, err := service.ParseDueAt(mcp.ParseString(request, "due_at", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		t, err := svc.Create(ctx, service.CreateInput{
			Title:        mcp.ParseString(request, "title", ""),
			Description:  mcp.ParseString(request, "description", ""),
			Category:     models.Category(mcp.ParseString(request, "category", "")),
			Priority:     models.Priority(mcp.ParseString(request, "priority", "")),
			DueAt:        due,
			ReminderLead: models.ReminderLead(mcp.ParseString(request, "reminder_lead", "")),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return taskResult(t)
	}
}

func updateTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		var patch service.Patch
		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			patch.Title = &title
		}
		if description, ok := args["description"].(string); ok {
			patch.Description = &description
		}
		if category, ok := args["category"].(string); ok {
			c := models.Category(category)
			patch.Category = &c
		}
		if priority, ok := args["priority"].(string); ok {
			p := models.Priority(priority)
			patch.Priority = &p
		}
		if lead, ok := args["reminder_lead"].(string); ok {
			l := models.ReminderLead(lead)
			patch.ReminderLead = &l
		}
		if raw, ok := args["due_at"].(string); ok {
			due, err := service.ParseDueAt(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			patch.DueAt = due
		}
		patch.ClearDueAt = mcp.ParseBoolean(request, "clear_due_at", false)

		t, err := svc.Update(ctx, id, patch)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return taskResult(t)
	}
}

func deleteTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		if err := svc.Delete(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func toggleTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		t, err := svc.Toggle(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return taskResult(t)
	}
}

func getTaskHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")

		t, ok := svc.Find(id)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Task with id '%s' not found", id)), nil
		}

		return taskResult(t)
	}
}

func listTasksHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := models.ListFilter{
			Category: models.Category(mcp.ParseString(request, "category", "")),
			Status:   models.Status(mcp.ParseString(request, "status", "")),
		}
		sort := models.SortKey(mcp.ParseString(request, "sort", string(models.SortByCreated)))

		tasks := models.FilterAndSort(svc.List(), filter, sort)

		data, err := json.Marshal(map[string]interface{}{"tasks": tasks})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func taskResult(t models.Task) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
