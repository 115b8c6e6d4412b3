package detector

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

type fieldChange struct {
	field  string
	before any
	after  any
}

// fieldChanges compares the union of top-level fields. A field present on only
// one side counts as changed; its missing side is reported as nil.
func (d *Detector) fieldChanges(before, after models.Fields) []fieldChange {
	names := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		names[k] = struct{}{}
	}
	for k := range after {
		names[k] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for k := range names {
		if _, skip := d.volatile[k]; skip {
			continue
		}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []fieldChange
	for _, name := range sorted {
		b, a := before[name], after[name]
		if valuesEqual(b, a) {
			continue
		}
		out = append(out, fieldChange{field: name, before: b, after: a})
	}
	return out
}

// valuesEqual compares two field values by full equality. Values that decode
// differently but serialize identically (int 3 from YAML, float64 3 from JSON)
// are equal; nested structures are compared whole.
func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}
