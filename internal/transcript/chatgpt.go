package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

type chatgptConversation struct {
	ConversationID string                 `json:"conversation_id"`
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	CurrentNode    string                 `json:"current_node"`
	Mapping        map[string]chatgptNode `json:"mapping"`
}

type chatgptNode struct {
	ID       string          `json:"id"`
	Message  *chatgptMessage `json:"message"`
	Parent   *string         `json:"parent"`
	Children []string        `json:"children"`
}

type chatgptMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64        `json:"create_time"`
	Content    json.RawMessage `json:"content"`
	Metadata   map[string]any  `json:"metadata"`
}

func matchChatGPT(doc document) bool {
	obj := firstObject(doc.conversationList())
	return obj != nil && has(obj, "mapping")
}

func extractChatGPT(doc document, sourceFile string) ([]Conversation, error) {
	elems := doc.conversationList()
	if len(elems) == 0 {
		return nil, mismatch(SchemaChatGPT, "no conversations")
	}

	convs := make([]Conversation, 0, len(elems))
	for i, raw := range elems {
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keys); err != nil {
			return nil, mismatch(SchemaChatGPT, "conversation %d is not an object", i)
		}
		if !has(keys, "mapping") {
			return nil, mismatch(SchemaChatGPT, "conversation %d has no mapping", i)
		}

		var c chatgptConversation
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, mismatch(SchemaChatGPT, "conversation %d: %v", i, err)
		}

		msgs, err := linearize(c.Mapping, c.CurrentNode)
		if err != nil {
			return nil, mismatch(SchemaChatGPT, "conversation %d: %v", i, err)
		}

		id := c.ConversationID
		if id == "" {
			id = c.ID
		}
		if id == "" {
			id = fallbackID(sourceFile, i, msgs)
		}
		convs = append(convs, newConversation(sourceFile, id, c.Title, SchemaChatGPT, msgs))
	}
	return convs, nil
}

// linearize walks parent links from the current node (or the newest leaf)
// back to the root and returns the branch in chronological order.
func linearize(mapping map[string]chatgptNode, currentNode string) ([]Message, error) {
	if len(mapping) == 0 {
		return nil, nil
	}

	start := currentNode
	if start == "" {
		start = newestLeaf(mapping)
	}
	if start == "" {
		return nil, fmt.Errorf("no current_node and no leaf node found")
	}

	visited := make(map[string]struct{}, len(mapping))
	var reversed []Message
	for {
		n, ok := mapping[start]
		if !ok {
			return nil, fmt.Errorf("missing node %q in mapping", start)
		}
		if _, seen := visited[start]; seen {
			return nil, fmt.Errorf("cycle detected at node %q", start)
		}
		visited[start] = struct{}{}

		if n.Message != nil {
			if m, ok := simplifyChatGPT(*n.Message); ok {
				reversed = append(reversed, m)
			}
		}

		if n.Parent == nil || *n.Parent == "" {
			break
		}
		start = *n.Parent
	}

	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return reversed, nil
}

func newestLeaf(mapping map[string]chatgptNode) string {
	var (
		bestID   string
		bestTime float64
		found    bool
	)
	for id, n := range mapping {
		if len(n.Children) != 0 || n.Message == nil {
			continue
		}
		ct := 0.0
		if n.Message.CreateTime != nil {
			ct = *n.Message.CreateTime
		}
		// Ties break on id so map iteration order cannot change the result.
		if !found || ct > bestTime || (ct == bestTime && id < bestID) {
			bestID, bestTime, found = id, ct, true
		}
	}
	return bestID
}

func simplifyChatGPT(m chatgptMessage) (Message, bool) {
	role, ok := normalizeRole(m.Author.Role)
	if !ok {
		return Message{}, false
	}

	var content struct {
		ContentType string `json:"content_type"`
		Parts       []any  `json:"parts"`
		Text        string `json:"text"`
	}
	if len(m.Content) > 0 {
		if err := json.Unmarshal(m.Content, &content); err != nil {
			return Message{}, false
		}
	}

	var parts []string
	for _, p := range content.Parts {
		if s, ok := p.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	text := content.Text
	if len(parts) > 0 {
		text = strings.Join(parts, "\n")
	}

	if strings.TrimSpace(text) == "" {
		return Message{}, false
	}
	if role == RoleSystem && hiddenFromConversation(m.Metadata) {
		return Message{}, false
	}
	return Message{Role: role, Text: text}, true
}

func hiddenFromConversation(metadata map[string]any) bool {
	v, ok := metadata["is_visually_hidden_from_conversation"].(bool)
	return ok && v
}
