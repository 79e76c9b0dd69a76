package ingest

import "strings"

const (
	// modsField is the one list-of-tagged-objects field in a score record.
	modsField = "mods"
	// tagKey is the short code carried by each element of that list.
	tagKey = "acronym"
)

// Flatten converts a nested score record into a flat column -> value
// mapping for tabular storage:
//   - scalar fields copy through unchanged
//   - nested objects flatten one level, columns named <field>_<subkey>
//   - the mods list reduces to a comma-joined string of acronyms
//   - any other list or unrecognized shape passes through as-is
//
// Every input record yields exactly one row.
func Flatten(rec map[string]any) map[string]any {
	row := make(map[string]any, len(rec))
	for key, value := range rec {
		switch v := value.(type) {
		case map[string]any:
			for subkey, subvalue := range v {
				row[key+"_"+subkey] = subvalue
			}
		case []any:
			if key == modsField {
				row[key] = joinTags(v)
			} else {
				row[key] = value
			}
		default:
			row[key] = value
		}
	}
	return row
}

// joinTags extracts the acronym from each mod object and joins them.
// An empty list yields an empty string, not a missing column.
func joinTags(mods []any) string {
	tags := make([]string, 0, len(mods))
	for _, m := range mods {
		obj, ok := m.(map[string]any)
		if !ok {
			continue
		}
		tag, ok := obj[tagKey]
		if !ok {
			continue
		}
		if s, ok := tag.(string); ok {
			tags = append(tags, s)
		}
	}
	return strings.Join(tags, ",")
}
