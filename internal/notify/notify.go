// Package notify delivers formatted messages to a chat channel.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/openclaw-sentinel/internal/mcpclient"
)

// SendMessageTool is the MCP tool used to post a chat message.
const SendMessageTool = "slack_send_message"

// ErrNoChannel is returned when a message has no destination channel.
var ErrNoChannel = errors.New("notify: no channel configured")

// SlackNotifier posts messages through the chat server's send-message tool.
type SlackNotifier struct {
	tools  mcpclient.ToolCaller
	logger *slog.Logger
}

// NewSlackNotifier creates a notifier backed by tools.
func NewSlackNotifier(tools mcpclient.ToolCaller, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{tools: tools, logger: logger}
}

// Send posts text to channel and returns the message timestamp reported by the
// server, or a generated id when the response carries none.
func (n *SlackNotifier) Send(ctx context.Context, channel, text string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", ErrNoChannel
	}
	out, err := n.tools.CallTool(ctx, SendMessageTool, map[string]any{
		"channel_id": channel,
		"message":    text,
	})
	if err != nil {
		return "", fmt.Errorf("notify: sending to %s: %w", channel, err)
	}
	id := messageTS(out)
	if id == "" {
		id = uuid.NewString()
	}
	n.logger.Info("message sent", "channel", channel, "delivery_id", id)
	return id, nil
}

// messageTS extracts a message timestamp from a send-message response, which
// is either JSON ({"ts": ...} or {"message_ts": ...}) or "key: value" text.
func messageTS(out string) string {
	var resp struct {
		TS        string `json:"ts"`
		MessageTS string `json:"message_ts"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err == nil {
		if resp.TS != "" {
			return resp.TS
		}
		return resp.MessageTS
	}
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "ts", "message_ts", "message ts":
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// LogNotifier writes messages to the logger instead of a channel. It backs
// dry runs and deployments without a chat server.
type LogNotifier struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger, now: time.Now}
}

// Send logs the message and returns a synthetic delivery id.
func (n *LogNotifier) Send(_ context.Context, channel, text string) (string, error) {
	id := fmt.Sprintf("log-%d", n.now().UnixNano())
	n.logger.Info("notification", "channel", channel, "delivery_id", id, "text", text)
	return id, nil
}
