package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/pulse/internal/journal"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Entries  *journal.EntryStore
	Settings *journal.SettingsStore
	Clock    journal.Clock // optional; defaults to the wall clock
}

// NewMCPServer creates an MCP server with the journal tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}

	s := server.NewMCPServer(
		"pulse",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Pulse: a daily mood and energy journal. Log check-ins, read entries, and check the current streak."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("log_entry",
			mcp.WithDescription("Log or update the check-in for a day. Fields not given keep their stored value."),
			mcp.WithString("date", mcp.Description("Day to log, YYYY-MM-DD (default today)")),
			mcp.WithNumber("mood", mcp.Description("Mood rating")),
			mcp.WithNumber("energy", mcp.Description("Energy rating")),
			mcp.WithString("highlight", mcp.Description("Highlight of the day")),
			mcp.WithString("gratitude", mcp.Description("Something to be grateful for")),
		),
		mcpLogEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("get_entry",
			mcp.WithDescription("Return the check-in for a day as JSON."),
			mcp.WithString("date", mcp.Description("Day to read, YYYY-MM-DD (default today)")),
		),
		mcpGetEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("get_streak",
			mcp.WithDescription("Return the number of consecutive days with a check-in."),
		),
		mcpGetStreak(deps),
	)

	s.AddTool(
		mcp.NewTool("update_settings",
			mcp.WithDescription("Update reminder and theme settings."),
			mcp.WithBoolean("reminder_enabled", mcp.Description("Whether the daily reminder is sent")),
			mcp.WithString("reminder_time", mcp.Description("Reminder time, HH:MM local")),
			mcp.WithString("theme", mcp.Description("dark, light or system"), mcp.Enum("dark", "light", "system")),
		),
		mcpUpdateSettings(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"journal://today",
			"Today",
			mcp.WithResourceDescription("Today's check-in and the current streak as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceToday(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"journal://settings",
			"Settings",
			mcp.WithResourceDescription("Current reminder and theme settings as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSettings(deps),
	)

	return s
}

func mcpDate(deps MCPDeps, req mcp.CallToolRequest) (string, error) {
	date := req.GetString("date", "")
	if date == "" {
		return journal.LocalDate(deps.Clock.Now()), nil
	}
	if !journal.ValidDate(date) {
		return "", fmt.Errorf("date %q must be YYYY-MM-DD", date)
	}
	return date, nil
}

func mcpLogEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date, err := mcpDate(deps, req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		entry, ok := deps.Entries.GetByDate(date)
		if !ok {
			entry = journal.NewEntry(date, deps.Clock)
		}

		args := req.GetArguments()
		if _, ok := args["mood"]; ok {
			v := req.GetFloat("mood", 0)
			entry.Mood = &v
		}
		if _, ok := args["energy"]; ok {
			v := req.GetFloat("energy", 0)
			entry.Energy = &v
		}
		if _, ok := args["highlight"]; ok {
			v := req.GetString("highlight", "")
			entry.Highlight = &v
		}
		if _, ok := args["gratitude"]; ok {
			v := req.GetString("gratitude", "")
			entry.Gratitude = &v
		}

		stored, err := deps.Entries.AddOrUpdate(entry)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save entry: %v", err)), nil
		}

		b, err := json.Marshal(stored)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entry: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date, err := mcpDate(deps, req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		entry, ok := deps.Entries.GetByDate(date)
		if !ok {
			return mcpText(fmt.Sprintf("No entry for %s", date)), nil
		}

		b, err := json.Marshal(entry)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entry: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetStreak(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		d := deps.Entries.Derived()
		b, err := json.Marshal(map[string]any{
			"streak":   d.Streak,
			"hasToday": d.HasToday,
			"date":     d.Date,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal streak: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUpdateSettings(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var patch journal.SettingsPatch
		args := req.GetArguments()
		if _, ok := args["reminder_enabled"]; ok {
			v := req.GetBool("reminder_enabled", false)
			patch.ReminderEnabled = &v
		}
		if _, ok := args["reminder_time"]; ok {
			v := req.GetString("reminder_time", "")
			patch.ReminderTime = &v
		}
		if _, ok := args["theme"]; ok {
			v := journal.Theme(req.GetString("theme", ""))
			patch.Theme = &v
		}

		if err := patch.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}
		updated, err := deps.Settings.Update(patch)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to update settings: %v", err)), nil
		}

		b, err := json.Marshal(updated)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal settings: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceToday(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Entries.Derived())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal today: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceSettings(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Settings.Get())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
