// Package mcpserver exposes voice conversations as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jwulff/voicenote/internal/db"
	"github.com/jwulff/voicenote/internal/ui"
	"github.com/jwulff/voicenote/internal/voice"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Store is what the tools read and update. Both *db.Store and
// *daemon.Client satisfy it.
type Store interface {
	Conversations(ctx context.Context, viewerID string) ([]db.Conversation, error)
	VoiceMessages(ctx context.Context, conversationID, viewerID string, limit int) ([]voice.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int, error)
}

type tools struct {
	store  Store
	logger *slog.Logger
}

// New builds an MCP server with the voicenote tools registered.
func New(store Store, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &tools{store: store, logger: logger}

	s := server.NewMCPServer("voicenote", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Voice message conversations. Waveforms are shown as 60-bar sparklines."),
	)

	s.AddTool(mcp.NewTool("list_conversations",
		mcp.WithDescription("List a user's conversations, newest first, with unread counts"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Viewing user")),
		mcp.WithReadOnlyHintAnnotation(true),
	), t.listConversations)

	s.AddTool(mcp.NewTool("list_voice_messages",
		mcp.WithDescription("List voice messages in a conversation, oldest first"),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Viewing user; hides messages they deleted")),
		mcp.WithNumber("limit", mcp.Description("Maximum messages (default 50)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), t.listVoiceMessages)

	s.AddTool(mcp.NewTool("mark_read",
		mcp.WithDescription("Mark every message from the other participant as read"),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Reading user")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	), t.markRead)

	return s
}

func (t *tools) listConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	convs, err := t.store.Conversations(ctx, user)
	if err != nil {
		t.logger.Warn("list conversations", "user", user, "err", err)
		return mcp.NewToolResultErrorFromErr("list conversations", err), nil
	}
	if len(convs) == 0 {
		return mcp.NewToolResultText("No conversations."), nil
	}

	var b strings.Builder
	for _, c := range convs {
		fmt.Fprintf(&b, "%s  with %s  %d unread  last activity %s\n",
			c.ID, c.Peer, c.Unread, humanize.Time(c.LastMessageAt))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *tools) listVoiceMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	convID, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	user, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", db.DefaultMessageLimit)

	msgs, err := t.store.VoiceMessages(ctx, convID, user, limit)
	if err != nil {
		t.logger.Warn("list voice messages", "conversation", convID, "err", err)
		return mcp.NewToolResultErrorFromErr("list voice messages", err), nil
	}
	if len(msgs) == 0 {
		return mcp.NewToolResultText("No voice messages."), nil
	}

	var b strings.Builder
	for _, m := range msgs {
		status := "unread"
		if m.Read {
			status = "read"
		}
		fmt.Fprintf(&b, "%s  %s  %s  %s  %s  %s  %s\n",
			m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.SenderID,
			ui.FormatDuration(m.Clip.DurationSeconds()),
			ui.Sparkline(m.Clip.Waveform()),
			humanize.Bytes(uint64(max(m.Size, 0))),
			status,
			m.ID,
		)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *tools) markRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	convID, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	user, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n, err := t.store.MarkRead(ctx, convID, user)
	if err != nil {
		t.logger.Warn("mark read", "conversation", convID, "err", err)
		return mcp.NewToolResultErrorFromErr("mark read", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Marked %d message(s) as read.", n)), nil
}
