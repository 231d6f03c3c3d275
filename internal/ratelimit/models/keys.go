package models

import (
	"fmt"
	"strings"
)

// KeyPrefix namespaces every counter in the store.
const KeyPrefix = "ratelimit"

// Key is a value object for counter key construction. Identity segments are
// escaped so that user-controlled characters cannot reach another bucket.
type Key struct {
	identity string
	category Category
}

func NewKey(identity string, category Category) Key {
	return Key{identity: identity, category: category}
}

// String returns the storage key: ratelimit:<escaped identity>:<category>.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, sanitizeKeySegment(k.identity), k.category)
}

// ScanPrefix is the Keys pattern that lists every counter.
func ScanPrefix() string {
	return KeyPrefix + ":*"
}

// ParseKey reverses String. It reports false for keys that were not built by
// NewKey.
func ParseKey(key string) (Key, bool) {
	rest, ok := strings.CutPrefix(key, KeyPrefix+":")
	if !ok {
		return Key{}, false
	}
	// Escaped identities never contain ':', so the last separator splits
	// identity from category.
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return Key{}, false
	}
	category := Category(rest[idx+1:])
	if !category.IsValid() {
		return Key{}, false
	}
	identity, ok := unsanitizeKeySegment(rest[:idx])
	if !ok {
		return Key{}, false
	}
	return Key{identity: identity, category: category}, true
}

func (k Key) Identity() string {
	return k.identity
}

func (k Key) Category() Category {
	return k.category
}

// sanitizeKeySegment escapes the delimiter. '_' becomes "__" first, then ':'
// becomes "_c", so distinct inputs never produce the same segment.
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}

func unsanitizeKeySegment(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return "", false
		}
		switch s[i+1] {
		case '_':
			b.WriteByte('_')
		case 'c':
			b.WriteByte(':')
		default:
			return "", false
		}
		i++
	}
	return b.String(), true
}
