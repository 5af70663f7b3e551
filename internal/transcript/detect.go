package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// document is a JSON export split one level deep. Exactly one of array or
// object is set.
type document struct {
	raw    json.RawMessage
	array  []json.RawMessage
	object map[string]json.RawMessage
}

func parseDocument(data []byte) (document, error) {
	data = bytes.TrimSpace(data)
	doc := document{raw: data}
	switch {
	case len(data) == 0:
		return doc, fmt.Errorf("%w: empty document", ErrUnrecognizedFormat)
	case data[0] == '[':
		if err := json.Unmarshal(data, &doc.array); err != nil {
			return doc, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
		}
	case data[0] == '{':
		if err := json.Unmarshal(data, &doc.object); err != nil {
			return doc, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
		}
	default:
		return doc, fmt.Errorf("%w: top-level value is neither array nor object", ErrUnrecognizedFormat)
	}
	return doc, nil
}

// conversationList returns the elements of a conversation-list export: the
// array itself, a {"conversations": [...]} wrapper, or a single object.
func (d document) conversationList() []json.RawMessage {
	if d.array != nil {
		return d.array
	}
	if d.object == nil {
		return nil
	}
	if inner, ok := d.object["conversations"]; ok {
		var list []json.RawMessage
		if err := json.Unmarshal(inner, &list); err == nil {
			return list
		}
	}
	return []json.RawMessage{d.raw}
}

// firstObject decodes the first element that is a JSON object.
func firstObject(elems []json.RawMessage) map[string]json.RawMessage {
	for _, e := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(e, &obj); err == nil && obj != nil {
			return obj
		}
	}
	return nil
}

func has(obj map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}

// probe pairs a pure structural match with the extractor for one schema.
type probe struct {
	schema  Schema
	match   func(document) bool
	extract func(document, string) ([]Conversation, error)
}

// probes are tried in this order; the first match wins.
var probes = []probe{
	{schema: SchemaChatGPT, match: matchChatGPT, extract: extractChatGPT},
	{schema: SchemaLeChat, match: matchLeChat, extract: extractLeChat},
	{schema: SchemaClaude, match: matchClaude, extract: extractClaude},
}

// Sniff reports the schema of the first matching probe, or SchemaAuto when
// none match.
func Sniff(data []byte) Schema {
	doc, err := parseDocument(data)
	if err != nil {
		return SchemaAuto
	}
	for _, p := range probes {
		if p.match(doc) {
			return p.schema
		}
	}
	return SchemaAuto
}

// Detect probes data against every known schema in precedence order and
// returns the conversations extracted by the first probe that matches.
func Detect(data []byte, sourceFile string) ([]Conversation, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	for _, p := range probes {
		if p.match(doc) {
			return p.extract(doc, sourceFile)
		}
	}
	return nil, ErrUnrecognizedFormat
}

// Extract skips probing and extracts data as the given schema. Any violated
// structural assumption is reported as ErrSchemaMismatch; partial results are
// never returned.
func Extract(schema Schema, data []byte, sourceFile string) ([]Conversation, error) {
	if schema == SchemaAuto {
		return Detect(data, sourceFile)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	for _, p := range probes {
		if p.schema == schema {
			return p.extract(doc, sourceFile)
		}
	}
	return nil, fmt.Errorf("unsupported schema %v", schema)
}

// LoadFile reads one export file and extracts its conversations, forcing the
// schema unless it is SchemaAuto.
func LoadFile(path string, schema Schema) ([]Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Extract(schema, data, path)
}

func mismatch(schema Schema, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrSchemaMismatch, schema, fmt.Sprintf(format, args...))
}

// fallbackID derives a conversation id from the file name, the position and
// a fingerprint prefix, so same-named files in different directories do not
// collide.
func fallbackID(sourceFile string, index int, msgs []Message) string {
	return fmt.Sprintf("%s#%d-%s", fileStem(sourceFile), index, Fingerprint(msgs)[:8])
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// textFromContent flattens the content shapes seen across exports: a plain
// string, an array of strings or {type, text} parts, or an object carrying
// text or parts.
func textFromContent(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", err
		}
		var texts []string
		for _, p := range parts {
			t, err := textFromPart(p)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(t) != "" {
				texts = append(texts, t)
			}
		}
		return strings.Join(texts, "\n"), nil
	case '{':
		return textFromPart(raw)
	}
	return "", fmt.Errorf("content is neither string, array nor object")
}

func textFromPart(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{':
		var part struct {
			Type  string `json:"type"`
			Text  any    `json:"text"`
			Parts []any  `json:"parts"`
		}
		if err := json.Unmarshal(raw, &part); err != nil {
			return "", err
		}
		if part.Type != "" && part.Type != "text" {
			return "", nil
		}
		if s, ok := part.Text.(string); ok {
			return s, nil
		}
		var texts []string
		for _, p := range part.Parts {
			if s, ok := p.(string); ok {
				texts = append(texts, s)
			}
		}
		return strings.Join(texts, "\n"), nil
	}
	// Numbers, booleans and nested arrays carry no text.
	return "", nil
}
