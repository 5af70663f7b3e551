package transcript

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnrecognizedFormat is returned when no schema probe matches a document.
	ErrUnrecognizedFormat = errors.New("unrecognized export format")
	// ErrSchemaMismatch is returned when a forced schema does not fit the document.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// Role is the speaker of a message after normalization.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation, shared across schemas.
type Message struct {
	Role    Role
	Text    string
	Ordinal int
}

// Conversation is one normalized conversation extracted from an export file.
type Conversation struct {
	SourceFile  string
	ID          string
	Title       string
	Schema      Schema
	Messages    []Message
	Fingerprint string
}

// newConversation numbers the messages and computes the fingerprint once.
func newConversation(sourceFile, id, title string, schema Schema, msgs []Message) Conversation {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m.Ordinal = i
		out[i] = m
	}
	return Conversation{
		SourceFile:  sourceFile,
		ID:          id,
		Title:       title,
		Schema:      schema,
		Messages:    out,
		Fingerprint: Fingerprint(out),
	}
}

// Schema identifies the vendor export shape a conversation came from.
type Schema int

const (
	SchemaAuto Schema = iota
	SchemaChatGPT
	SchemaLeChat
	SchemaClaude
)

func (s Schema) String() string {
	switch s {
	case SchemaChatGPT:
		return "chatgpt"
	case SchemaLeChat:
		return "lechat"
	case SchemaClaude:
		return "claude"
	default:
		return "auto"
	}
}

// ParseSchema maps a user-supplied schema name to a Schema.
func ParseSchema(name string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return SchemaAuto, nil
	case "chatgpt", "openai", "a":
		return SchemaChatGPT, nil
	case "lechat", "mistral", "b":
		return SchemaLeChat, nil
	case "claude", "anthropic", "c":
		return SchemaClaude, nil
	}
	return SchemaAuto, fmt.Errorf("unknown schema %q", name)
}

// normalizeRole maps vendor role names onto Role. Unknown roles (tool,
// function, ...) report false and are dropped by the extractors.
func normalizeRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "human":
		return RoleUser, true
	case "assistant", "ai", "bot", "model":
		return RoleAssistant, true
	case "system":
		return RoleSystem, true
	}
	return "", false
}
