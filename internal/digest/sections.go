package digest

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/pkg/textutil"
)

const unknown = "Unknown"

func snapshot(changes []models.ChangeRecord) Snapshot {
	critical, high := 0, 0
	negative, positive := 0, 0
	for i := range changes {
		c := &changes[i]
		switch c.SignificanceLevel {
		case models.LevelCritical:
			critical++
		case models.LevelHigh:
			high++
		}
		if isNegative(c) {
			negative++
		}
		if isPositive(c) {
			positive++
		}
	}

	var s Snapshot
	switch {
	case critical >= 3:
		s.Status = StatusRed
	case critical >= 1 || high >= 5:
		s.Status = StatusYellow
	default:
		s.Status = StatusGreen
	}

	switch {
	case negative > positive+2:
		s.Momentum = MomentumDeteriorating
	case positive > negative+2:
		s.Momentum = MomentumImproving
	default:
		s.Momentum = MomentumFlat
	}

	switch {
	case len(changes) == 0:
		s.Summary = "No material changes detected this week; account remains stable."
	case s.Status == StatusRed:
		s.Summary = fmt.Sprintf("Multiple critical issues requiring immediate attention; %d critical changes detected.", critical)
	case s.Status == StatusYellow:
		s.Summary = fmt.Sprintf("Account showing some concerning signals; monitoring %d high-priority changes.", critical+high)
	default:
		s.Summary = "Account progressing normally with routine updates."
	}
	return s
}

func isNegative(c *models.ChangeRecord) bool {
	return c.ChangeType == models.ChangeRemoved ||
		(c.EntityType == models.EntityTypeRisk && c.ChangeType == models.ChangeAdded) ||
		(c.EntityType == models.EntityTypeProgram && mentions(c.NewValue, "blocked"))
}

func isPositive(c *models.ChangeRecord) bool {
	return (c.ChangeType == models.ChangeAdded && c.EntityType != models.EntityTypeRisk) ||
		(c.EntityType == models.EntityTypeProgram && mentions(c.NewValue, "completed"))
}

// mentions reports whether any value in f contains word, ignoring case.
func mentions(f models.Fields, word string) bool {
	for k := range f {
		if strings.Contains(strings.ToLower(f.String(k)), word) {
			return true
		}
	}
	return false
}

func isMaterial(c *models.ChangeRecord) bool {
	return c.SignificanceLevel == models.LevelCritical || c.SignificanceLevel == models.LevelHigh
}

func whatChanged(changes []models.ChangeRecord, limit int) []string {
	var out []string
	for i := range changes {
		if len(out) == limit {
			break
		}
		if isMaterial(&changes[i]) {
			out = append(out, Describe(&changes[i]))
		}
	}
	return out
}

// Describe condenses a change into one bullet.
func Describe(c *models.ChangeRecord) string {
	subject := c.Subject()

	switch c.EntityType {
	case models.EntityTypeStakeholder:
		name := subject.StringOr("name", unknown)
		role := subject.StringOr("role", unknown)
		switch {
		case c.ChangeType == models.ChangeAdded:
			return fmt.Sprintf("New %s added: %s", role, name)
		case c.ChangeType == models.ChangeRemoved:
			return fmt.Sprintf("%s departed: %s", role, name)
		case c.FieldChanged == "role":
			return fmt.Sprintf("%s role changed to %s", name, c.NewValue.StringOr("role", unknown))
		}

	case models.EntityTypeProgram:
		if c.FieldChanged == "status" {
			return fmt.Sprintf("%s status: %s → %s", subject.StringOr("name", unknown),
				c.PreviousValue.StringOr("status", unknown), c.NewValue.StringOr("status", unknown))
		}

	case models.EntityTypeRisk:
		if c.ChangeType == models.ChangeAdded {
			return fmt.Sprintf("New %s risk: %s", subject.StringOr("severity", unknown),
				textutil.Prefix(subject.StringOr("description", unknown), 50))
		}

	case models.EntityTypeExternalEvent:
		return fmt.Sprintf("%s: %s", c.NewValue.StringOr("event_type", unknown), c.NewValue.StringOr("title", unknown))
	}

	return fmt.Sprintf("%s %s", c.EntityType.Label(), c.ChangeType)
}

func keyRisks(changes []models.ChangeRecord, limit int) []Risk {
	var out []Risk
	for i := range changes {
		if len(out) == limit {
			break
		}
		c := &changes[i]
		isRisk := c.EntityType == models.EntityTypeRisk ||
			(c.EntityType == models.EntityTypeProgram && mentions(c.NewValue, "blocked")) ||
			c.SignificanceLevel == models.LevelCritical
		if !isRisk {
			continue
		}
		out = append(out, Risk{
			ChangeID:     c.ChangeID,
			Description:  Describe(c),
			WhyItMatters: WhyItMatters(c.Rationale),
			Outcome:      predictOutcome(c),
		})
	}
	return out
}

// WhyItMatters pulls the consequence clause out of a rationale: the text after
// the first "may", restated as a sentence. Rationales without one get a
// generic line.
func WhyItMatters(rationale string) string {
	rest, ok := textutil.AfterWord(rationale, "may")
	rest = strings.TrimSpace(rest)
	if !ok || rest == "" {
		return "Requires attention due to potential program impact."
	}
	return "May " + rest
}

func predictOutcome(c *models.ChangeRecord) string {
	switch c.EntityType {
	case models.EntityTypeRisk:
		switch c.NewValue.String("severity") {
		case "Critical":
			return "Program delay or failure if unresolved within 48 hours."
		case "High":
			return "Timeline slippage likely within next sprint."
		default:
			return "Minor impact if addressed within 2 weeks."
		}

	case models.EntityTypeProgram:
		status := strings.ToLower(c.NewValue.String("status"))
		switch {
		case strings.Contains(status, "blocked"):
			return "Milestone delay and potential budget overrun."
		case strings.Contains(status, "at risk"):
			return "Requires intervention to prevent escalation."
		}

	case models.EntityTypeStakeholder:
		role := strings.ToLower(c.Subject().String("role"))
		if strings.Contains(role, "ceo") || strings.Contains(role, "cfo") {
			return "Strategic direction may shift; relationship reset needed."
		}
	}
	return "Impact assessment ongoing."
}

// eventScanLimit bounds how many of the most recent events feed opportunities.
const eventScanLimit = 10

func opportunities(account string, events []models.Fields, changes []models.ChangeRecord, limit int) []Opportunity {
	var out []Opportunity
	for i, ev := range events {
		if i == eventScanLimit {
			break
		}
		eventType := strings.ToLower(ev.String("event_type"))
		title := textutil.Prefix(ev.String("title"), 50)
		switch {
		case strings.Contains(eventType, "partnership"):
			out = append(out, Opportunity{
				Description: fmt.Sprintf("Leverage %s partnership: %s", account, title),
				Rationale:   "Potential to expand collaboration scope.",
			})
		case strings.Contains(eventType, "m&a"):
			out = append(out, Opportunity{
				Description: "M&A activity: " + title,
				Rationale:   "New leadership may accelerate AI adoption.",
			})
		}
	}

	for i := range changes {
		c := &changes[i]
		if c.EntityType == models.EntityTypeProgram && mentions(c.NewValue, "completed") {
			out = append(out, Opportunity{
				Description: fmt.Sprintf("Expand %s scope", c.Subject().StringOr("name", unknown)),
				Rationale:   "Successful delivery builds trust for next phase.",
			})
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

var executiveMarkers = []string{"CEO", "CFO", "CTO", "Executive"}

func actions(changes []models.ChangeRecord, limit int) []Action {
	var out []Action
	seen := make(map[string]struct{})
	add := func(a Action) {
		if _, dup := seen[a.Action]; dup {
			return
		}
		seen[a.Action] = struct{}{}
		out = append(out, a)
	}

	for i := range changes {
		if len(out) == limit {
			break
		}
		c := &changes[i]
		if c.SignificanceLevel != models.LevelCritical {
			continue
		}
		switch c.EntityType {
		case models.EntityTypeStakeholder:
			if c.ChangeType == models.ChangeRemoved {
				continue
			}
			role := c.Subject().StringOr("role", unknown)
			for _, marker := range executiveMarkers {
				if strings.Contains(role, marker) {
					add(Action{ChangeID: c.ChangeID, Action: "Schedule intro with new " + role, Due: "Within 2 weeks", Owner: "Account Lead"})
					break
				}
			}
		case models.EntityTypeProgram:
			if strings.Contains(strings.ToLower(c.NewValue.String("status")), "blocked") {
				add(Action{
					ChangeID: c.ChangeID,
					Action:   fmt.Sprintf("Unblock %s - escalate internally", c.Subject().StringOr("name", unknown)),
					Due:      "This week",
					Owner:    "Delivery Lead",
				})
			}
		case models.EntityTypeRisk:
			if c.NewValue.String("severity") == "Critical" {
				add(Action{ChangeID: c.ChangeID, Action: "Review critical risk mitigation plan", Due: "Immediate", Owner: "Exec Sponsor"})
			}
		}
	}
	return out
}

func externalSignals(events []models.Fields) string {
	if len(events) == 0 {
		return "No relevant external signals this week."
	}

	var mna, exec, financial, other int
	for _, ev := range events {
		eventType := strings.ToLower(ev.String("event_type"))
		switch {
		case strings.Contains(eventType, "m&a"):
			mna++
		case strings.Contains(eventType, "executive"):
			exec++
		case strings.Contains(eventType, "financial"), strings.Contains(eventType, "earnings"),
			strings.Contains(eventType, "10-k"), strings.Contains(eventType, "10-q"):
			financial++
		default:
			other++
		}
	}

	var parts []string
	if mna > 0 {
		parts = append(parts, fmt.Sprintf("M&A activity detected (%d events)", mna))
	}
	if exec > 0 {
		parts = append(parts, fmt.Sprintf("%d leadership changes", exec))
	}
	if financial > 0 {
		parts = append(parts, "Financial results published")
	}
	if other > 0 && len(parts) < 2 {
		parts = append(parts, fmt.Sprintf("%d other developments", other))
	}
	return strings.Join(parts, "; ") + ". Monitoring for strategic implications."
}
