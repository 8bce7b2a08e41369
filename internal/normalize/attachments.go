// Package normalize turns untrusted inbound payloads into canonical
// in-memory shapes. Nothing in here returns an error for malformed
// attachments: bad entries are dropped, the rest of the message survives.
package normalize

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"NeuroBot/internal/model"
)

const maxDepth = 4 // JSON-in-string nesting we are willing to unwrap

var (
	knownTypes = map[string]struct{}{
		model.AttachmentImage:    {},
		model.AttachmentVideo:    {},
		model.AttachmentAudio:    {},
		model.AttachmentFile:     {},
		model.AttachmentDocument: {},
	}

	// "' +\n  '" style joins left behind when a client serialized an
	// inspected object instead of JSON-encoding it
	concatArtifact = regexp.MustCompile(`['"]\s*\+\s*['"]`)
)

const (
	separators = ",{}[] \t\r\n"
	keyStops   = ":=" + separators + `'"`
	valueStops = separators + `'"`
)

// Attachments coerces v into a list of valid attachments. v may be nil, raw
// JSON, a JSON-encoded string, a malformed serialization, a single object or
// a list mixing any of those. The result is never nil.
func Attachments(v any) []model.Attachment {
	out := make([]model.Attachment, 0)
	collect(v, 0, &out)
	return out
}

func collect(v any, depth int, out *[]model.Attachment) {
	if depth > maxDepth {
		return
	}

	switch x := v.(type) {
	case nil:
	case model.Attachment:
		appendValid(out, x)
	case *model.Attachment:
		if x != nil {
			appendValid(out, *x)
		}
	case []model.Attachment:
		for _, a := range x {
			appendValid(out, a)
		}
	case json.RawMessage:
		collectBytes(x, depth, out)
	case []byte:
		collectBytes(x, depth, out)
	case string:
		collectString(x, depth, out)
	case []string:
		for _, s := range x {
			collectString(s, depth+1, out)
		}
	case []any:
		for _, e := range x {
			collect(e, depth+1, out)
		}
	case []map[string]any:
		for _, m := range x {
			collect(m, depth+1, out)
		}
	case map[string]any:
		if a, ok := fromMap(x); ok {
			*out = append(*out, a)
		}
	}
}

func collectBytes(b []byte, depth int, out *[]model.Attachment) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return
	}

	var parsed any
	if err := json.Unmarshal(b, &parsed); err == nil {
		collect(parsed, depth+1, out)
		return
	}
	extract(string(b), out)
}

func collectString(s string, depth int, out *[]model.Attachment) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "null", "undefined", "[]", "{}", `""`:
		return
	}

	if looksLikeJSON(s) {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			collect(parsed, depth+1, out)
			return
		}
	}
	extract(s, out)
}

func looksLikeJSON(s string) bool {
	switch s[0] {
	case '[', '{', '"':
		return true
	}
	return false
}

// extract is the best-effort fallback: pull url/type/name out of each
// object-looking block of an unparseable string.
func extract(s string, out *[]model.Attachment) {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\'`, "'")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = concatArtifact.ReplaceAllString(s, "")
	s = unwrapQuotes(strings.TrimSpace(s))

	blocks := objectBlocks(s)
	if len(blocks) == 0 {
		blocks = []string{s}
	}

	for _, block := range blocks {
		f := pairs(block)
		appendValid(out, model.Attachment{
			URL:  lookup(f, "url", "uri", "src"),
			Type: lookup(f, "type", "mimetype"),
			Name: lookup(f, "name", "filename", "originalname"),
		})
	}
}

// unwrapQuotes drops one pair of quotes enclosing the whole string, the
// outer literal of a serialized object.
func unwrapQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// objectBlocks returns the innermost {...} spans of s. Braces inside quoted
// text do not count.
func objectBlocks(s string) []string {
	type open struct {
		at     int
		nested bool
	}

	var (
		stack  []open
		blocks []string
		quote  byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '{':
			if len(stack) > 0 {
				stack[len(stack)-1].nested = true
			}
			stack = append(stack, open{at: i})
		case c == '}' && len(stack) > 0:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !top.nested {
				blocks = append(blocks, s[top.at:i+1])
			}
		}
	}
	return blocks
}

// pairs reads key: value (or key = value) pairs from an object-like block.
// Quoted text is consumed whole, so it is never mistaken for a key. Keys are
// lowercased and the first non-empty value wins.
func pairs(block string) map[string]string {
	out := make(map[string]string)
	for i := 0; i < len(block); {
		if strings.IndexByte(separators, block[i]) >= 0 {
			i++
			continue
		}

		key, next := token(block, i, keyStops)
		if next == i {
			i++
			continue
		}
		i = skipSpace(block, next)
		if i >= len(block) || (block[i] != ':' && block[i] != '=') {
			continue
		}

		i = skipSpace(block, i+1)
		if i >= len(block) || block[i] == '{' || block[i] == '[' {
			continue
		}
		value, next := token(block, i, valueStops)
		i = next

		key = strings.ToLower(key)
		if _, seen := out[key]; !seen && strings.TrimSpace(value) != "" {
			out[key] = value
		}
	}
	return out
}

// token reads a quoted string or a bare word starting at i and returns it
// with the index just past it.
func token(s string, i int, stops string) (string, int) {
	if q := s[i]; q == '\'' || q == '"' {
		end := strings.IndexByte(s[i+1:], q)
		if end < 0 {
			return s[i+1:], len(s)
		}
		return s[i+1 : i+1+end], i + end + 2
	}

	j := i
	for j < len(s) && strings.IndexByte(stops, s[j]) < 0 {
		j++
	}
	return s[i:j], j
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r' || s[i] == '\n') {
		i++
	}
	return i
}

func lookup(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return ""
}

func fromMap(m map[string]any) (model.Attachment, bool) {
	a := model.Attachment{
		URL:  stringField(m, "url", "uri", "src"),
		Type: stringField(m, "type", "mimeType", "mimetype"),
		Name: stringField(m, "name", "filename", "fileName", "originalName"),
	}
	return clean(a)
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func appendValid(out *[]model.Attachment, a model.Attachment) {
	if a, ok := clean(a); ok {
		*out = append(*out, a)
	}
}

func clean(a model.Attachment) (model.Attachment, bool) {
	a.URL = strings.Trim(strings.TrimSpace(a.URL), `"'`)
	switch strings.ToLower(a.URL) {
	case "", "null", "undefined":
		return model.Attachment{}, false
	}

	a.Type = normalizeType(a.Type)
	a.Name = strings.Trim(strings.TrimSpace(a.Name), `"'`)
	return a, true
}

// normalizeType maps MIME types to their family and unknown values to image.
func normalizeType(t string) string {
	t = strings.ToLower(strings.Trim(strings.TrimSpace(t), `"'`))
	if family, _, ok := strings.Cut(t, "/"); ok {
		switch family {
		case "image", "video", "audio":
			t = family
		case "application", "text":
			t = model.AttachmentFile
		}
	}
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return model.AttachmentImage
}
