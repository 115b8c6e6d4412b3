// Package mcpclient connects to an external MCP tool server (chat, wiki and
// messaging tools) and exposes a small tool-calling interface to the sources
// and notifiers.
package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// ErrToolFailed is returned when the server reports a tool-level error.
var ErrToolFailed = errors.New("mcp tool returned an error")

// ToolCaller invokes a named tool and returns its text output.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Config describes how to reach the tool server. Command launches a stdio
// server; otherwise URL selects the streamable HTTP transport.
type Config struct {
	Command    string
	Args       []string
	Env        []string
	URL        string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Client is a connected MCP client.
type Client struct {
	c       *client.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Dial connects and performs the MCP initialize handshake.
func Dial(ctx context.Context, cfg Config, clientName, version string, logger *slog.Logger) (*Client, error) {
	var (
		c   *client.Client
		err error
	)
	switch {
	case cfg.Command != "":
		c, err = client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: starting %s: %w", cfg.Command, err)
		}
	case cfg.URL != "":
		c, err = client.NewStreamableHttpClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: creating http client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("mcpclient: connecting to %s: %w", cfg.URL, err)
		}
	default:
		return nil, errors.New("mcpclient: either command or url must be configured")
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: clientName, Version: version}

	res, err := c.Initialize(ctx, initReq)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcpclient: initialize: %w", err)
	}
	logger.Info("mcp client connected", "server", res.ServerInfo.Name, "server_version", res.ServerInfo.Version)

	return &Client{c: c, timeout: cfg.Timeout, logger: logger}, nil
}

// CallTool invokes a tool once and concatenates its text content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.c.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcpclient: calling %s: %w", name, err)
	}
	text := TextOf(res)
	if res.IsError {
		return "", fmt.Errorf("%w: %s: %s", ErrToolFailed, name, text)
	}
	return text, nil
}

// Close shuts down the transport.
func (c *Client) Close() error {
	return c.c.Close()
}

// TextOf joins all text content items of a tool result.
func TextOf(res *mcpgo.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, content := range res.Content {
		switch tc := content.(type) {
		case mcpgo.TextContent:
			parts = append(parts, tc.Text)
		case *mcpgo.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
