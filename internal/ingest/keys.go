package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/pkg/textutil"
)

const unknownKey = "unknown"

var lower = cases.Lower(language.Und)

// fold normalizes s to NFKC and lower-cases it, so visually identical names
// from different sources map to the same key.
func fold(s string) string {
	return lower.String(norm.NFKC.String(strings.TrimSpace(s)))
}

// snake folds s and joins its words with underscores.
func snake(s string) string {
	return strings.Join(strings.Fields(fold(s)), "_")
}

// EntityID derives the natural key of an entity from its data:
//
//	stakeholder     email, else name, lower-cased
//	program         name in lower snake case
//	risk            first 100 runes of the description, lower-cased
//	timeline        milestone in lower snake case
//	external_event  url, else title
//
// Other types get "<type>_" plus a short digest of the canonical JSON of data.
func EntityID(entityType models.EntityType, data models.Fields) string {
	switch entityType {
	case models.EntityTypeStakeholder:
		return fold(data.StringOr("email", data.StringOr("name", unknownKey)))
	case models.EntityTypeProgram:
		return snake(data.StringOr("name", unknownKey))
	case models.EntityTypeRisk:
		return fold(textutil.Prefix(data.StringOr("description", unknownKey), 100))
	case models.EntityTypeTimeline:
		return snake(data.StringOr("milestone", unknownKey))
	case models.EntityTypeExternalEvent:
		return strings.TrimSpace(data.StringOr("url", data.StringOr("title", unknownKey)))
	default:
		return string(entityType) + "_" + digest(data)
	}
}

// digest returns the first 12 hex characters of the SHA-256 of data's JSON
// encoding. encoding/json sorts map keys, so the digest is stable.
func digest(data models.Fields) string {
	b, err := json.Marshal(data)
	if err != nil {
		// fmt prints maps in key order as well.
		b = []byte(fmt.Sprint(data))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:12]
}

// NewEntity builds an entity whose id is derived with EntityID.
func NewEntity(entityType models.EntityType, data models.Fields) models.Entity {
	return models.Entity{Type: entityType, ID: EntityID(entityType, data), Data: data}
}
