package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

const unknown = "Unknown"

// timestampLayout renders e.g. "2026-03-02 09:15 AM UTC".
const timestampLayout = "2006-01-02 03:04 PM MST"

// Summary is the one-line "what changed" sentence of an alert.
func Summary(c *models.ChangeRecord) string {
	label := c.EntityType.Label()

	switch c.ChangeType {
	case models.ChangeAdded:
		switch c.EntityType {
		case models.EntityTypeStakeholder:
			return fmt.Sprintf("New %s added: %s",
				c.NewValue.StringOr("role", unknown), c.NewValue.StringOr("name", unknown))
		case models.EntityTypeExternalEvent:
			return "External event detected: " + c.NewValue.StringOr("title", unknown)
		}
		return fmt.Sprintf("New %s added", label)

	case models.ChangeRemoved:
		if c.EntityType == models.EntityTypeStakeholder {
			return fmt.Sprintf("%s removed: %s",
				c.PreviousValue.StringOr("role", unknown), c.PreviousValue.StringOr("name", unknown))
		}
		return label + " removed"

	case models.ChangeModified:
		field := c.FieldChanged
		if field == "" {
			field = "unknown field"
		}
		return fmt.Sprintf("%s %s changed from '%s' to '%s'", label, field,
			c.PreviousValue.StringOr(field, unknown), c.NewValue.StringOr(field, unknown))
	}

	return fmt.Sprintf("%s %s", label, c.ChangeType)
}

// AffectedContext lists the business areas a change of this entity type touches.
func AffectedContext(c *models.ChangeRecord) []string {
	switch c.EntityType {
	case models.EntityTypeStakeholder:
		return []string{"Executive Leadership", "Strategic Decision-Making"}
	case models.EntityTypeProgram:
		return []string{"Program: " + c.Subject().StringOr("name", unknown), "Phase 1 Milestones"}
	case models.EntityTypeRisk:
		return []string{"Program Delivery", "Timeline & Schedule"}
	case models.EntityTypeExternalEvent:
		return []string{"Corporate Strategy", "Market Position", "Competitive Dynamics"}
	case models.EntityTypeTimeline:
		return []string{"Project Schedule", "Milestone Delivery"}
	}
	return nil
}

// SourceLinks collects the distinct "source" and "url" values from both payloads,
// previous first.
func SourceLinks(c *models.ChangeRecord) []string {
	var links []string
	seen := make(map[string]struct{})
	for _, payload := range []models.Fields{c.PreviousValue, c.NewValue} {
		for _, key := range []string{"source", "url"} {
			v := payload.String(key)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			links = append(links, v)
		}
	}
	return links
}

// Render formats an alert as a chat-markdown message.
func Render(account string, a *models.Alert) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line(fmt.Sprintf("🚨 **%s Situational Awareness Alert** 🚨", account))
	line("")
	line("**What Changed:**")
	line(a.Summary)
	line("")
	line(fmt.Sprintf("**Significance:** %s (Score: %d/100)", a.Level, a.Score))
	line("")
	line("**Why It Matters:**")
	line(a.Rationale)
	line("")

	if len(a.AffectedContext) > 0 {
		line("**Context Impact:**")
		for _, ctx := range a.AffectedContext {
			line("• " + ctx)
		}
		line("")
	}

	if len(a.SourceLinks) > 0 {
		line("**Source:**")
		for _, src := range a.SourceLinks {
			line("• " + src)
		}
		line("")
	}

	line("**Detected:** " + a.Timestamp.Format(timestampLayout))
	line(strings.Repeat("─", 31))
	b.WriteString("React with ✅ to acknowledge this alert.")
	return b.String()
}

func buildAlert(c *models.ChangeRecord, channel string, ts time.Time) models.Alert {
	return models.Alert{
		ChangeID:        c.ChangeID,
		EntityType:      c.EntityType,
		EntityID:        c.EntityID,
		ChangeType:      c.ChangeType,
		Level:           c.SignificanceLevel,
		Score:           c.SignificanceScore,
		Summary:         Summary(c),
		Rationale:       c.Rationale,
		AffectedContext: AffectedContext(c),
		SourceLinks:     SourceLinks(c),
		Timestamp:       ts,
		Channel:         channel,
	}
}
