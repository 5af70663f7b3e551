package transcript

import (
	"encoding/json"
	"strings"
)

// LeChat exports hold one conversation per file: either a bare array of
// role/content messages or an object with a messages (or exchanges) array.

func matchLeChat(doc document) bool {
	if doc.object != nil {
		return has(doc.object, "messages") || has(doc.object, "exchanges")
	}
	obj := firstObject(doc.array)
	return obj != nil && has(obj, "role", "content") &&
		!has(obj, "mapping") && !has(obj, "chat_messages")
}

func extractLeChat(doc document, sourceFile string) ([]Conversation, error) {
	var (
		rawMsgs []json.RawMessage
		id      string
		title   string
	)

	switch {
	case doc.array != nil:
		rawMsgs = doc.array
	case doc.object != nil:
		list, ok := doc.object["messages"]
		if !ok {
			list, ok = doc.object["exchanges"]
		}
		if !ok {
			return nil, mismatch(SchemaLeChat, "object has neither messages nor exchanges")
		}
		if err := json.Unmarshal(list, &rawMsgs); err != nil {
			return nil, mismatch(SchemaLeChat, "messages is not an array")
		}
		if err := optionalString(doc.object, "id", &id); err != nil {
			return nil, mismatch(SchemaLeChat, "id: %v", err)
		}
		if err := optionalString(doc.object, "title", &title); err != nil {
			return nil, mismatch(SchemaLeChat, "title: %v", err)
		}
	default:
		return nil, mismatch(SchemaLeChat, "empty document")
	}

	msgs := make([]Message, 0, len(rawMsgs))
	for i, raw := range rawMsgs {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			return nil, mismatch(SchemaLeChat, "message %d is not an object", i)
		}
		var roleName string
		if err := optionalString(obj, "role", &roleName); err != nil || roleName == "" {
			return nil, mismatch(SchemaLeChat, "message %d has no role", i)
		}
		content, ok := obj["content"]
		if !ok {
			content = obj["text"]
		}
		text, err := textFromContent(content)
		if err != nil {
			return nil, mismatch(SchemaLeChat, "message %d content: %v", i, err)
		}

		role, ok := normalizeRole(roleName)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		msgs = append(msgs, Message{Role: role, Text: text})
	}

	if id == "" {
		id = fallbackID(sourceFile, 0, msgs)
	}
	if title == "" {
		title = leChatTitle(sourceFile)
	}
	return []Conversation{newConversation(sourceFile, id, title, SchemaLeChat, msgs)}, nil
}

// leChatTitle derives a title from the export file name, which is the only
// place bare-array exports carry one.
func leChatTitle(sourceFile string) string {
	t := fileStem(sourceFile)
	t = strings.TrimPrefix(t, "chat-")
	t = strings.TrimPrefix(t, "AI_exportation_")
	t = strings.TrimSuffix(t, "_conversations")
	if t == "" {
		return "LeChat conversation"
	}
	return t
}

// optionalString decodes obj[key] into dst when present and not null.
func optionalString(obj map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := obj[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
