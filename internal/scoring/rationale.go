package scoring

import (
	"fmt"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

const unknown = "Unknown"

// Rationale explains why a change matters. The text is advisory only; callers
// must not parse it beyond best-effort substring reuse.
func Rationale(account string, c *models.ChangeRecord) string {
	subject := c.Subject()

	switch c.EntityType {
	case models.EntityTypeStakeholder:
		role := subject.StringOr("role", unknown)
		name := subject.StringOr("name", unknown)
		switch {
		case c.ChangeType == models.ChangeAdded:
			return fmt.Sprintf("%s %s added to %s organization. C-Suite and board changes may signal strategic shifts.", role, name, account)
		case c.ChangeType == models.ChangeRemoved:
			return fmt.Sprintf("%s %s removed from %s organization. Leadership departures may indicate organizational changes.", role, name, account)
		case c.FieldChanged == "role":
			prev := c.PreviousValue.StringOr("role", unknown)
			return fmt.Sprintf("%s role changed from %s to %s. Leadership restructuring may impact programs.", name, prev, role)
		}

	case models.EntityTypeProgram:
		if c.ChangeType == models.ChangeModified && c.FieldChanged == "status" {
			return fmt.Sprintf("Program %s status changed from %s to %s. This may require immediate attention from program leadership.",
				subject.StringOr("name", unknown),
				c.PreviousValue.StringOr("status", unknown),
				c.NewValue.StringOr("status", unknown))
		}

	case models.EntityTypeRisk:
		switch {
		case c.ChangeType == models.ChangeAdded:
			return fmt.Sprintf("New %s risk detected. This may require immediate attention from program leadership.", subject.StringOr("severity", unknown))
		case c.ChangeType == models.ChangeModified && c.FieldChanged == "severity":
			return fmt.Sprintf("Risk severity changed to %s. This may require immediate attention from program leadership.", c.NewValue.StringOr("severity", unknown))
		}

	case models.EntityTypeExternalEvent:
		return fmt.Sprintf("External event detected: %s - %s. This may impact %s strategic direction or market position.",
			subject.StringOr("event_type", unknown), subject.StringOr("title", unknown), account)

	case models.EntityTypeTimeline:
		if c.ChangeType == models.ChangeModified && c.FieldChanged == "status" {
			return fmt.Sprintf("Timeline milestone '%s' status changed to %s. This may impact program delivery schedule.",
				subject.StringOr("milestone", unknown), c.NewValue.StringOr("status", unknown))
		}
	}

	return fmt.Sprintf("Material change detected in %s. Review for potential program impact.", c.EntityType)
}
