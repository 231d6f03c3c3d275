package securelog

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Redacted replaces every detected sensitive value.
const Redacted = "[REDACTED]"

// Placeholders for values that cannot be represented.
const (
	CircularMarker       = "[Circular]"
	MaxDepthMarker       = "[MaxDepth]"
	UnserializableMarker = "[Unserializable]"
)

const (
	defaultMaxDepth = 10
	// Shorter secrets are not scrubbed from unrelated strings; they would
	// match too much ordinary text.
	minSecretLen = 4
)

// Patterns are applied in order. Bearer tokens go first so an
// "Authorization: Bearer x" header is consumed whole. A credential keyword
// followed only by whitespace needs a value with a digit or symbol, so
// wording like "password reset requested" is kept.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|secret|token|api[_-]?key|authorization)\b(?:["']?\s*[:=]\s*(?:"[^"]*"|'[^']*'|[^\s,;&]+)|\s+[^\s,;&]*[0-9!@#$%^*+=_~][^\s,;&]*)`),
	regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
}

var defaultSensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"key",
	"authorization",
	"cookie",
	"session",
	"credit_card",
	"ssn",
	"social_security",
}

// Sanitizer removes credentials and personal data from log payloads.
// It is stateless and safe for concurrent use.
type Sanitizer struct {
	patterns      []*regexp.Regexp
	sensitiveKeys []string
	maxDepth      int
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns:      defaultPatterns,
		sensitiveKeys: defaultSensitiveKeys,
		maxDepth:      defaultMaxDepth,
	}
}

// IsSensitiveKey reports whether a field name belongs to the sensitive
// vocabulary. Matching is case-insensitive and partial; '-' and ' ' count
// as '_'.
func (s *Sanitizer) IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	k = strings.NewReplacer("-", "_", " ", "_").Replace(k)
	for _, sensitive := range s.sensitiveKeys {
		if strings.Contains(k, sensitive) {
			return true
		}
	}
	return false
}

// RedactString applies the pattern redactions to a single string.
func (s *Sanitizer) RedactString(str string) string {
	for _, re := range s.patterns {
		str = re.ReplaceAllString(str, Redacted)
	}
	return str
}

// Sanitize returns a redacted copy of v. Maps and slices come back as
// map[string]any and []any; structs are normalised through their JSON form.
func (s *Sanitizer) Sanitize(v any) any {
	p := s.newPass(v)
	return p.value(p.trees[0])
}

// SanitizeEntry redacts an entry in place. A value found under a sensitive
// metadata key is removed from every other string of the entry, including
// metadata keys and the request context.
func (s *Sanitizer) SanitizeEntry(e *Entry) {
	var root any
	if e.Metadata != nil {
		root = e.Metadata
	}
	p := s.newPass(root)

	if e.Metadata != nil {
		e.Metadata, _ = p.value(p.trees[0]).(map[string]any)
	}
	e.Message = p.text(e.Message)
	e.Error = p.text(e.Error)
	e.UserID = p.text(e.UserID)
	e.Stack = p.text(e.Stack)
	if e.Context != nil {
		e.Context = p.context(*e.Context)
	}
}

// pass holds one sanitization run: the normalised trees and the secrets
// collected from them.
type pass struct {
	s       *Sanitizer
	trees   []any
	secrets []string
}

func (s *Sanitizer) newPass(roots ...any) *pass {
	p := &pass{s: s}
	seen := map[string]struct{}{}
	for _, root := range roots {
		tree := s.normalize(root, 0, map[uintptr]bool{})
		p.trees = append(p.trees, tree)
		p.collect(tree, false, seen)
	}
	// Longest first so a secret containing another is replaced whole.
	sort.Slice(p.secrets, func(i, j int) bool {
		return len(p.secrets[i]) > len(p.secrets[j])
	})
	return p
}

func (p *pass) collect(v any, sensitive bool, seen map[string]struct{}) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			p.collect(child, sensitive || p.s.IsSensitiveKey(k), seen)
		}
	case []any:
		for _, child := range t {
			p.collect(child, sensitive, seen)
		}
	default:
		if !sensitive || isMarker(v) {
			return
		}
		str := scalarString(v)
		if len(str) < minSecretLen {
			return
		}
		if _, dup := seen[str]; dup {
			return
		}
		seen[str] = struct{}{}
		p.secrets = append(p.secrets, str)
	}
}

func (p *pass) value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			key := p.text(k)
			if p.s.IsSensitiveKey(k) {
				out[key] = Redacted
				continue
			}
			out[key] = p.value(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = p.value(child)
		}
		return out
	case string:
		if isMarker(t) {
			return t
		}
		return p.text(t)
	default:
		return t
	}
}

func (p *pass) text(str string) string {
	if str == "" {
		return str
	}
	for _, secret := range p.secrets {
		str = strings.ReplaceAll(str, secret, Redacted)
	}
	return p.s.RedactString(str)
}

func (p *pass) context(rc RequestContext) *RequestContext {
	rc.RequestID = p.text(rc.RequestID)
	rc.UserID = p.text(rc.UserID)
	rc.IP = p.text(rc.IP)
	rc.UserAgent = p.text(rc.UserAgent)
	rc.Browser = p.text(rc.Browser)
	rc.OS = p.text(rc.OS)
	rc.Endpoint = p.text(rc.Endpoint)
	rc.Method = p.text(rc.Method)
	return &rc
}

// normalize converts v into a tree of map[string]any, []any and scalars.
// ancestors tracks the maps and slices on the current path for cycle
// detection.
func (s *Sanitizer) normalize(v any, depth int, ancestors map[uintptr]bool) any {
	if depth > s.maxDepth {
		return MaxDepthMarker
	}

	switch t := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case time.Duration:
		return t.String()
	case error:
		return t.Error()
	case map[string]any:
		ptr := reflect.ValueOf(t).Pointer()
		if ancestors[ptr] {
			return CircularMarker
		}
		ancestors[ptr] = true
		defer delete(ancestors, ptr)

		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = s.normalize(child, depth+1, ancestors)
		}
		return out
	case []any:
		if len(t) == 0 {
			return []any{}
		}
		ptr := reflect.ValueOf(t).Pointer()
		if ancestors[ptr] {
			return CircularMarker
		}
		ancestors[ptr] = true
		defer delete(ancestors, ptr)

		out := make([]any, len(t))
		for i, child := range t {
			out[i] = s.normalize(child, depth+1, ancestors)
		}
		return out
	}

	return s.normalizeViaJSON(v, depth, ancestors)
}

// normalizeViaJSON handles structs, typed maps, typed slices and pointers.
func (s *Sanitizer) normalizeViaJSON(v any, depth int, ancestors map[uintptr]bool) any {
	raw, err := json.Marshal(v)
	if err != nil {
		if strings.Contains(err.Error(), "cycle") {
			return CircularMarker
		}
		return UnserializableMarker
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return UnserializableMarker
	}
	switch generic.(type) {
	case map[string]any, []any:
		// JSON decoding produced fresh values; keep walking for depth.
		return s.normalize(generic, depth, ancestors)
	default:
		return generic
	}
}

func isMarker(v any) bool {
	str, ok := v.(string)
	if !ok {
		return false
	}
	switch str {
	case Redacted, CircularMarker, MaxDepthMarker, UnserializableMarker:
		return true
	}
	return false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
