package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/mcpclient"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/pkg/textutil"
)

// Chat server tools.
const (
	ChatSearchTool = "slack_search_public_and_private"
	ChatThreadTool = "slack_read_thread"
)

// ProgramKeyword maps a lower-case phrase found in text to a program name.
type ProgramKeyword struct {
	Keyword string `mapstructure:"keyword" yaml:"keyword"`
	Name    string `mapstructure:"name" yaml:"name"`
}

// DefaultProgramKeywords is the program vocabulary used when none is configured.
func DefaultProgramKeywords() []ProgramKeyword {
	return []ProgramKeyword{
		{Keyword: "agent factory", Name: "Agent Factory"},
		{Keyword: "cdd", Name: "CDD MVP"},
		{Keyword: "deposit pricing", Name: "Deposit Pricing"},
		{Keyword: "agentic platform", Name: "Agentic Platform"},
	}
}

// ChatConfig configures a ChatSource.
type ChatConfig struct {
	Query    string
	Limit    int
	Programs []ProgramKeyword
}

// ChatMessage is one search hit parsed from the chat server's result text.
type ChatMessage struct {
	ChannelName string
	ChannelID   string
	UserName    string
	UserID      string
	Timestamp   time.Time
	MessageTS   string
	Text        string
	HasThread   bool
	Thread      string
}

// Ref returns the slack:// reference used as the entity source.
func (m *ChatMessage) Ref() string {
	return fmt.Sprintf("slack://%s/%s", m.ChannelID, m.MessageTS)
}

// ChatSource searches team chat for account mentions and normalizes each hit.
type ChatSource struct {
	tools     mcpclient.ToolCaller
	cfg       ChatConfig
	extractor Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// NewChatSource creates a chat source. extractor may be nil.
func NewChatSource(tools mcpclient.ToolCaller, cfg ChatConfig, extractor Extractor, logger *slog.Logger) *ChatSource {
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	if len(cfg.Programs) == 0 {
		cfg.Programs = DefaultProgramKeywords()
	}
	return &ChatSource{
		tools:     tools,
		cfg:       cfg,
		extractor: extractor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Source.
func (s *ChatSource) Name() string { return "chat" }

// Fetch implements Source.
func (s *ChatSource) Fetch(ctx context.Context, since time.Time) (Batch, error) {
	query := s.cfg.Query
	if !since.IsZero() {
		query += " after:" + since.UTC().Format("2006-01-02")
	}

	out, err := s.tools.CallTool(ctx, ChatSearchTool, map[string]any{
		"query":    query,
		"limit":    s.cfg.Limit,
		"sort":     "timestamp",
		"sort_dir": "desc",
	})
	if err != nil {
		return Batch{}, fmt.Errorf("searching chat: %w", err)
	}

	messages := ParseChatResults(out, s.now())
	s.logger.Info("chat search", "query", query, "messages", len(messages))

	for i := range messages {
		s.readThread(ctx, &messages[i])
	}

	var entities []models.Entity
	for i := range messages {
		entities = append(entities, s.normalize(ctx, &messages[i])...)
	}
	return Batch{Items: len(messages), Entities: entities}, nil
}

func (s *ChatSource) readThread(ctx context.Context, m *ChatMessage) {
	if !m.HasThread || m.MessageTS == "" {
		return
	}
	out, err := s.tools.CallTool(ctx, ChatThreadTool, map[string]any{
		"channel_id": m.ChannelID,
		"message_ts": m.MessageTS,
	})
	if err != nil {
		s.logger.Warn("reading chat thread", "message_ts", m.MessageTS, "error", err)
		return
	}
	m.Thread = out
}

func (s *ChatSource) normalize(ctx context.Context, m *ChatMessage) []models.Entity {
	var out []models.Entity
	if st, ok := chatStakeholder(m); ok {
		out = append(out, st)
	}
	out = append(out, chatPrograms(m, s.cfg.Programs)...)
	if r, ok := chatRisk(m); ok {
		out = append(out, r)
	}
	out = append(out, chatTimelines(m)...)

	if s.extractor != nil {
		text := m.Text
		if m.Thread != "" {
			text += "\n\n" + m.Thread
		}
		extra, err := s.extractor.Extract(ctx, text)
		if err != nil {
			s.logger.Warn("entity extraction failed", "message_ts", m.MessageTS, "error", err)
		}
		for i := range extra {
			if extra[i].Data == nil {
				extra[i].Data = models.Fields{}
			}
			extra[i].Data["source"] = m.Ref()
		}
		out = append(out, extra...)
	}
	return out
}

var (
	resultSplit = regexp.MustCompile(`### Result \d+ of \d+`)
	channelRe   = regexp.MustCompile(`#([\w-]+)\s*\((C[A-Z0-9]+)\)`)
	fromRe      = regexp.MustCompile(`From:\s*(.+?)\s*\(([UW][A-Z0-9]+)\)`)
)

var chatTimeLayouts = []string{
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05Z07:00",
	time.RFC3339,
	"2006-01-02 15:04 MST",
}

// ParseChatResults parses the "### Result N of M" blocks returned by the chat
// search tool. Blocks without text or channel id are dropped. Unparseable
// times fall back to now.
func ParseChatResults(text string, now time.Time) []ChatMessage {
	blocks := resultSplit.Split(text, -1)
	if len(blocks) < 2 {
		return nil
	}
	var out []ChatMessage
	for _, block := range blocks[1:] {
		if m, ok := parseChatBlock(block, now); ok {
			out = append(out, m)
		}
	}
	return out
}

func parseChatBlock(block string, now time.Time) (ChatMessage, bool) {
	m := ChatMessage{Timestamp: now}
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Channel:"):
			if sm := channelRe.FindStringSubmatch(line); sm != nil {
				m.ChannelName, m.ChannelID = sm[1], sm[2]
			}
		case strings.HasPrefix(line, "From:"):
			if sm := fromRe.FindStringSubmatch(line); sm != nil {
				m.UserName, m.UserID = sm[1], sm[2]
			}
		case strings.HasPrefix(line, "Time:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "Time:"))
			for _, layout := range chatTimeLayouts {
				if ts, err := time.Parse(layout, raw); err == nil {
					m.Timestamp = ts.UTC()
					break
				}
			}
		case strings.HasPrefix(line, "Message_ts:"):
			m.MessageTS = strings.TrimSpace(strings.TrimPrefix(line, "Message_ts:"))
		case strings.HasPrefix(line, "Text:"):
			m.Text = strings.TrimSpace(strings.TrimPrefix(line, "Text:"))
		case strings.HasPrefix(line, "🧵 Thread:"):
			m.HasThread = true
		}
	}
	return m, m.Text != "" && m.ChannelID != ""
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func chatStakeholder(m *ChatMessage) (models.Entity, bool) {
	if m.UserName == "" || m.UserID == "" {
		return models.Entity{}, false
	}
	return models.Entity{
		Type: models.EntityTypeStakeholder,
		ID:   m.UserID,
		Data: models.Fields{
			"name":      m.UserName,
			"role":      "Unknown",
			"company":   "Unknown",
			"last_seen": m.Timestamp.Format(time.RFC3339),
		},
	}, true
}

// programStatus infers a program status from status words in lower-case text.
func programStatus(text string) string {
	switch {
	case containsAny(text, "blocked", "blocker", "blocking"):
		return "Blocked"
	case containsAny(text, "at risk", "risk", "delayed"):
		return "At Risk"
	case containsAny(text, "completed", "done", "finished"):
		return "Completed"
	default:
		return "In Progress"
	}
}

func chatPrograms(m *ChatMessage, programs []ProgramKeyword) []models.Entity {
	text := strings.ToLower(m.Text)
	var out []models.Entity
	for _, p := range programs {
		if !strings.Contains(text, strings.ToLower(p.Keyword)) {
			continue
		}
		out = append(out, NewEntity(models.EntityTypeProgram, models.Fields{
			"name":         p.Name,
			"status":       programStatus(text),
			"last_updated": m.Timestamp.Format(time.RFC3339),
			"source":       m.Ref(),
		}))
	}
	return out
}

// riskSeverity grades lower-case text by urgency words.
func riskSeverity(text string) string {
	switch {
	case containsAny(text, "critical", "urgent", "emergency"):
		return "Critical"
	case containsAny(text, "high", "major", "significant"):
		return "High"
	default:
		return "Medium"
	}
}

func chatRisk(m *ChatMessage) (models.Entity, bool) {
	text := strings.ToLower(m.Text)
	if !containsAny(text, "blocked", "blocker", "risk", "issue", "problem", "delay", "failure") {
		return models.Entity{}, false
	}
	return models.Entity{
		Type: models.EntityTypeRisk,
		ID:   EntityID(models.EntityTypeRisk, models.Fields{"description": m.Text}),
		Data: models.Fields{
			"category":       "Technical",
			"severity":       riskSeverity(text),
			"description":    textutil.Prefix(m.Text, 200),
			"status":         "Open",
			"first_detected": m.Timestamp.Format(time.RFC3339),
			"source":         m.Ref(),
		},
	}, true
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}\b`),
	regexp.MustCompile(`\bQ[1-4]\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
}

// chatTimelines turns each date phrase into a timeline milestone named by
// the one or two words preceding it.
func chatTimelines(m *ChatMessage) []models.Entity {
	var out []models.Entity
	for _, re := range datePatterns {
		for _, date := range re.FindAllString(m.Text, -1) {
			milestone := "Unknown Milestone"
			before := regexp.MustCompile(`(?i)(\w+(?:\s+\w+)?)\s+` + regexp.QuoteMeta(date))
			if sm := before.FindStringSubmatch(m.Text); sm != nil {
				milestone = sm[1]
			}
			out = append(out, NewEntity(models.EntityTypeTimeline, models.Fields{
				"milestone":   milestone,
				"target_date": date,
				"status":      "On Track",
				"source":      m.Ref(),
			}))
		}
	}
	return out
}
