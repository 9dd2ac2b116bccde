package pos

import (
	"fmt"
	"maps"
)

// StringField reads a string-ish value out of a decoded JSON object.
func StringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// ObjectField reads a nested JSON object, or nil.
func ObjectField(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// AuditCopy clones a raw provider response for storage, dropping keys that
// must not be persisted.
func AuditCopy(raw map[string]any, drop ...string) map[string]any {
	out := maps.Clone(raw)
	for _, k := range drop {
		delete(out, k)
	}
	return out
}
