package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/pkg/textutil"
	"github.com/ajitpratap0/openclaw-sentinel/pkg/xmlutil"
)

// Extractor finds entities in free text that keyword rules miss.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]models.Entity, error)
}

// extractionPromptTemplate is the prompt used to pull account entities out of
// a message. Message content is injected via an XML tag to prevent prompt
// injection attacks.
const extractionPromptTemplate = `You extract account intelligence about %s from workplace messages.

Identify only entities that are explicitly stated. For each provide:
- entity_type: One of "stakeholder", "program", "risk", "timeline", "governance"
- data: an object with the fields for that type
  - stakeholder: name, role, email (if present), company
  - program: name, status (one of "In Progress", "Blocked", "At Risk", "Completed")
  - risk: description, severity (one of "Low", "Medium", "High", "Critical"), category
  - timeline: milestone, target_date
  - governance: name, decision

Return a JSON array. If nothing relevant is stated, return [].

%s

Extract entities as JSON array:`

// maxExtractTokens bounds the message text sent to the model.
const maxExtractTokens = 3000

type extractedEntity struct {
	EntityType string         `json:"entity_type"`
	Data       map[string]any `json:"data"`
}

// ClaudeExtractor identifies entities in message text using Claude.
type ClaudeExtractor struct {
	client  *anthropic.Client
	model   string
	account string
	logger  *slog.Logger
}

// NewClaudeExtractor creates an extractor backed by the Claude API. Extra
// request options (base URL, retries) are passed to the client.
func NewClaudeExtractor(apiKey, model, account string, logger *slog.Logger, opts ...option.RequestOption) *ClaudeExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	c := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &ClaudeExtractor{
		client:  &c,
		model:   model,
		account: account,
		logger:  logger,
	}
}

// Extract implements Extractor.
// On API error it logs a warning and returns (nil, nil) for graceful degradation.
func (e *ClaudeExtractor) Extract(ctx context.Context, text string) ([]models.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	text = textutil.TruncateToTokenBudget(text, maxExtractTokens)
	prompt := fmt.Sprintf(extractionPromptTemplate, xmlutil.Escape(e.account), xmlutil.Element("message", text))

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		System: []anthropic.TextBlockParam{
			{Text: "You are a precise entity extraction system. Output only valid JSON."},
		},
	})
	if err != nil {
		e.logger.Warn("entity extraction: Claude API error, skipping", "error", err)
		return nil, nil
	}

	var responseText string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			responseText = resp.Content[i].Text
			break
		}
	}
	if responseText == "" {
		e.logger.Warn("entity extraction: empty response from Claude")
		return nil, nil
	}

	e.logger.Debug("entity extraction response", "response", responseText)
	entities, err := ParseExtraction(responseText)
	if err != nil {
		return nil, err
	}
	e.logger.Info("extracted entities", "count", len(entities))
	return entities, nil
}

// ParseExtraction decodes the model's JSON array. Code fences around the
// array are tolerated. Entries with an unknown type or no data are dropped.
func ParseExtraction(responseText string) ([]models.Entity, error) {
	body := strings.TrimSpace(responseText)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var raw []extractedEntity
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("entity extraction: parsing response: %w (raw: %s)", err, responseText)
	}

	entities := make([]models.Entity, 0, len(raw))
	for i := range raw {
		et := models.EntityType(raw[i].EntityType)
		if !et.IsKnown() || et == models.EntityTypeExternalEvent || len(raw[i].Data) == 0 {
			continue
		}
		entities = append(entities, NewEntity(et, models.Fields(raw[i].Data)))
	}
	return entities, nil
}
