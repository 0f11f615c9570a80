package config

import (
	"cmp"
	"slices"
)

// secretKeys are the flattened keys whose values are credentials.
var secretKeys = map[string]bool{
	"telegram.token": true,
	"admin.token":    true,
	"amqp.url":       true,
}

// IsSecretKey reports whether key names a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Mask hides all but the last four characters of a secret string. Empty and
// non-string values are returned unchanged.
func Mask(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}

// Entry is one setting addressed by its dot-separated key, e.g. "amqp.queue".
type Entry struct {
	Key   string
	Value any
}

// Flatten lists the leaves of a nested map, sorted by key.
func Flatten(m map[string]any) []Entry {
	var out []Entry
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out = append(out, Entry{Key: k, Value: v})
		}
	}
	walk("", m)
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Key, b.Key) })
	return out
}
