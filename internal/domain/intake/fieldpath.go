package intake

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
)

var pathSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ParseFieldPath splits a dotted form_data path ("emergency_contact.phone")
// into its segments. Empty segments and characters outside [A-Za-z0-9_-] are
// rejected so the path can be bound as a query parameter on every driver.
func ParseFieldPath(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, apperr.Validation("intake.find_by_field_path", "field path is required")
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if !pathSegmentPattern.MatchString(s) {
			return nil, apperr.Validation("intake.find_by_field_path", "invalid field path %q", path)
		}
	}
	return segs, nil
}

// LookupPath walks doc along segs. Numeric segments index into arrays.
func LookupPath(doc map[string]interface{}, segs []string) (interface{}, bool) {
	var cur interface{} = doc
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case FormData:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// TextValue renders v the way Postgres' #>> operator renders a JSONB value:
// strings unquoted, scalars in their JSON form, and objects and arrays in
// jsonb's text output (", " and ": " separators, keys ordered by length then
// bytes). JSON null has no text form and reports false.
func TextValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	default:
		var b strings.Builder
		if !writeJSONB(&b, t) {
			return "", false
		}
		return b.String(), true
	}
}

func writeJSONB(b *strings.Builder, v interface{}) bool {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		writeJSONBString(b, t)
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
	case json.Number:
		b.WriteString(t.String())
	case FormData:
		return writeJSONB(b, map[string]interface{}(t))
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) < len(keys[j])
			}
			return keys[i] < keys[j]
		})
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeJSONBString(b, k)
			b.WriteString(": ")
			if !writeJSONB(b, t[k]) {
				return false
			}
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			if !writeJSONB(b, item) {
				return false
			}
		}
		b.WriteByte(']')
	default:
		return false
	}
	return true
}

// writeJSONBString quotes s with the escapes Postgres emits: only quotes,
// backslashes and control characters.
func writeJSONBString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// MatchFieldPath reports whether the value at segs inside doc equals value
// under TextValue rendering.
func MatchFieldPath(doc map[string]interface{}, segs []string, value string) bool {
	v, ok := LookupPath(doc, segs)
	if !ok {
		return false
	}
	text, ok := TextValue(v)
	return ok && text == value
}
