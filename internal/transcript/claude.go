package transcript

import (
	"encoding/json"
	"strings"
)

func matchClaude(doc document) bool {
	obj := firstObject(doc.conversationList())
	return obj != nil && has(obj, "chat_messages")
}

func extractClaude(doc document, sourceFile string) ([]Conversation, error) {
	elems := doc.conversationList()
	if len(elems) == 0 {
		return nil, mismatch(SchemaClaude, "no conversations")
	}

	convs := make([]Conversation, 0, len(elems))
	for i, raw := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			return nil, mismatch(SchemaClaude, "conversation %d is not an object", i)
		}
		list, ok := obj["chat_messages"]
		if !ok {
			return nil, mismatch(SchemaClaude, "conversation %d has no chat_messages", i)
		}
		var rawMsgs []json.RawMessage
		if err := json.Unmarshal(list, &rawMsgs); err != nil {
			return nil, mismatch(SchemaClaude, "conversation %d: chat_messages is not an array", i)
		}

		var uuid, name, title string
		for key, dst := range map[string]*string{"uuid": &uuid, "name": &name, "title": &title} {
			if err := optionalString(obj, key, dst); err != nil {
				return nil, mismatch(SchemaClaude, "conversation %d %s: %v", i, key, err)
			}
		}

		msgs := make([]Message, 0, len(rawMsgs))
		for j, rm := range rawMsgs {
			var m map[string]json.RawMessage
			if err := json.Unmarshal(rm, &m); err != nil || m == nil {
				return nil, mismatch(SchemaClaude, "conversation %d message %d is not an object", i, j)
			}
			var sender string
			if err := optionalString(m, "sender", &sender); err != nil || sender == "" {
				return nil, mismatch(SchemaClaude, "conversation %d message %d has no sender", i, j)
			}

			var text string
			if err := optionalString(m, "text", &text); err != nil {
				return nil, mismatch(SchemaClaude, "conversation %d message %d text: %v", i, j, err)
			}
			if strings.TrimSpace(text) == "" {
				t, err := textFromContent(m["content"])
				if err != nil {
					return nil, mismatch(SchemaClaude, "conversation %d message %d content: %v", i, j, err)
				}
				text = t
			}

			role, ok := normalizeRole(sender)
			if !ok || strings.TrimSpace(text) == "" {
				continue
			}
			msgs = append(msgs, Message{Role: role, Text: text})
		}

		id := uuid
		if id == "" {
			id = fallbackID(sourceFile, i, msgs)
		}
		if title == "" {
			title = name
		}
		if title == "" {
			title = "Claude - " + shortID(uuid)
		}
		convs = append(convs, newConversation(sourceFile, id, title, SchemaClaude, msgs))
	}
	return convs, nil
}

func shortID(id string) string {
	if id == "" {
		return "untitled"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
