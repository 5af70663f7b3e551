package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatgptExport = `[
  {
    "conversation_id": "conv-1",
    "title": "Deploy plan",
    "current_node": "n3",
    "mapping": {
      "root": {"id": "root", "message": null, "parent": null, "children": ["n0"]},
      "n0": {"id": "n0", "parent": "root", "children": ["n1"], "message": {
        "author": {"role": "system"}, "content": {"content_type": "text", "parts": [""]},
        "metadata": {"is_visually_hidden_from_conversation": true}}},
      "n1": {"id": "n1", "parent": "n0", "children": ["n2", "n2b"], "message": {
        "author": {"role": "user"}, "create_time": 1, "content": {"content_type": "text", "parts": ["Deploy the auth service"]}}},
      "n2": {"id": "n2", "parent": "n1", "children": ["n3"], "message": {
        "author": {"role": "assistant"}, "create_time": 2, "content": {"content_type": "text", "parts": ["Deploying now."]}}},
      "n2b": {"id": "n2b", "parent": "n1", "children": [], "message": {
        "author": {"role": "assistant"}, "create_time": 5, "content": {"content_type": "text", "parts": ["Abandoned branch"]}}},
      "n3": {"id": "n3", "parent": "n2", "children": [], "message": {
        "author": {"role": "tool"}, "create_time": 3, "content": {"content_type": "text", "parts": ["tool output"]}}}
    }
  },
  {
    "title": "No current node",
    "mapping": {
      "a": {"id": "a", "parent": null, "children": ["b"], "message": {
        "author": {"role": "user"}, "create_time": 1, "content": {"content_type": "text", "parts": ["hi"]}}},
      "b": {"id": "b", "parent": "a", "children": [], "message": {
        "author": {"role": "assistant"}, "create_time": 2, "content": {"content_type": "text", "parts": ["hello"]}}}
    }
  }
]`

const claudeExport = `[
  {
    "uuid": "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0",
    "name": "Refactor",
    "chat_messages": [
      {"sender": "human", "text": "Refactor the parser"},
      {"sender": "assistant", "text": "", "content": [{"type": "text", "text": "Done."}, {"type": "tool_use", "name": "x"}]}
    ]
  },
  {
    "uuid": "abcdef0123456789",
    "chat_messages": [
      {"sender": "human", "text": "Second"}
    ]
  }
]`

func TestDetect_ChatGPT(t *testing.T) {
	convs, err := Detect([]byte(chatgptExport), "exports/conversations.json")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	first := convs[0]
	assert.Equal(t, SchemaChatGPT, first.Schema)
	assert.Equal(t, "conv-1", first.ID)
	assert.Equal(t, "Deploy plan", first.Title)
	require.Len(t, first.Messages, 2, "hidden system and tool messages are dropped, abandoned branch excluded")
	assert.Equal(t, Message{Role: RoleUser, Text: "Deploy the auth service", Ordinal: 0}, first.Messages[0])
	assert.Equal(t, Message{Role: RoleAssistant, Text: "Deploying now.", Ordinal: 1}, first.Messages[1])
	assert.NotEmpty(t, first.Fingerprint)

	second := convs[1]
	assert.Regexp(t, `^conversations#1-[0-9a-f]{8}$`, second.ID)
	require.Len(t, second.Messages, 2)
	assert.Equal(t, "hello", second.Messages[1].Text)
}

func TestDetect_ChatGPTWrapper(t *testing.T) {
	doc := `{"conversations": [{"id": "w1", "mapping": {"a": {"id": "a", "parent": null, "children": [], "message": {
		"author": {"role": "user"}, "content": {"content_type": "text", "parts": ["wrapped"]}}}}}]}`

	convs, err := Detect([]byte(doc), "wrapped.json")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "w1", convs[0].ID)
	assert.Equal(t, "wrapped", convs[0].Messages[0].Text)
}

func TestDetect_LeChatArray(t *testing.T) {
	doc := `[
		{"role": "user", "content": "Bonjour"},
		{"role": "assistant", "content": [{"type": "text", "text": "Salut"}]},
		{"role": "tool", "content": "ignored"}
	]`

	convs, err := Detect([]byte(doc), "/tmp/chat-Roadmap_conversations.json")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	c := convs[0]
	assert.Equal(t, SchemaLeChat, c.Schema)
	assert.Equal(t, "Roadmap", c.Title)
	assert.Regexp(t, `^chat-Roadmap_conversations#0-[0-9a-f]{8}$`, c.ID)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "Salut", c.Messages[1].Text)
}

func TestDetect_LeChatExchanges(t *testing.T) {
	doc := `{"id": "lc-9", "title": "Budget", "exchanges": [
		{"role": "user", "content": "How much?"},
		{"role": "assistant", "content": "Ten."}
	]}`

	convs, err := Detect([]byte(doc), "budget.json")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "lc-9", convs[0].ID)
	assert.Equal(t, "Budget", convs[0].Title)
	assert.Len(t, convs[0].Messages, 2)
}

func TestDetect_Claude(t *testing.T) {
	convs, err := Detect([]byte(claudeExport), "claude.json")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	assert.Equal(t, SchemaClaude, convs[0].Schema)
	assert.Equal(t, "Refactor", convs[0].Title)
	require.Len(t, convs[0].Messages, 2)
	assert.Equal(t, RoleUser, convs[0].Messages[0].Role)
	assert.Equal(t, "Done.", convs[0].Messages[1].Text)

	assert.Equal(t, "Claude - abcdef01", convs[1].Title)
}

func TestDetect_Precedence(t *testing.T) {
	// Carries both the ChatGPT and the Claude marker; ChatGPT is probed first.
	doc := `[{"mapping": {}, "chat_messages": []}]`
	assert.Equal(t, SchemaChatGPT, Sniff([]byte(doc)))
}

func TestDetect_Unrecognized(t *testing.T) {
	for name, doc := range map[string]string{
		"object":  `{"foo": 1}`,
		"scalar":  `42`,
		"empty":   ``,
		"invalid": `{"broken"`,
		"nothing": `[]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Detect([]byte(doc), "x.json")
			assert.ErrorIs(t, err, ErrUnrecognizedFormat)
		})
	}
}

func TestExtract_ForcedSchemaMismatch(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
		doc    string
	}{
		{"chatgpt on claude", SchemaChatGPT, claudeExport},
		{"claude on chatgpt", SchemaClaude, chatgptExport},
		{"lechat on claude", SchemaLeChat, claudeExport},
		{"claude wrong type", SchemaClaude, `[{"uuid": "u", "chat_messages": "nope"}]`},
		{"chatgpt wrong type", SchemaChatGPT, `[{"mapping": []}]`},
		{"chatgpt dangling parent", SchemaChatGPT, `[{"current_node": "a", "mapping": {"a": {"parent": "ghost"}}}]`},
		{"lechat role not string", SchemaLeChat, `[{"role": 3, "content": "x"}]`},
		{"invalid json", SchemaClaude, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			convs, err := Extract(tt.schema, []byte(tt.doc), "f.json")
			assert.ErrorIs(t, err, ErrSchemaMismatch)
			assert.Nil(t, convs, "no partial extraction")
		})
	}
}

func TestExtract_ForcedSchemaMatch(t *testing.T) {
	convs, err := Extract(SchemaClaude, []byte(claudeExport), "claude.json")
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestFingerprint_IgnoresMetadataAndWhitespace(t *testing.T) {
	a := newConversation("a.json", "1", "A", SchemaChatGPT, []Message{
		{Role: RoleUser, Text: "hello   world"},
		{Role: RoleAssistant, Text: "hi\n"},
	})
	b := newConversation("b.json", "2", "B", SchemaClaude, []Message{
		{Role: RoleUser, Text: "hello world"},
		{Role: RoleAssistant, Text: " hi"},
	})
	c := newConversation("c.json", "3", "C", SchemaClaude, []Message{
		{Role: RoleUser, Text: "Hello world"},
		{Role: RoleAssistant, Text: "hi"},
	})

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint, "fingerprint is case-sensitive")
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	// Control bytes inside one message must not read as a message boundary.
	split := []Message{{Role: RoleUser, Text: "x"}, {Role: RoleUser, Text: "y"}}
	joined := []Message{{Role: RoleUser, Text: "x\x1e" + string(RoleUser) + "\x1fy"}}
	assert.NotEqual(t, Fingerprint(split), Fingerprint(joined))
}

func TestRender(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Text: "Deploy auth service"},
		{Role: RoleAssistant, Text: "Deploying now."},
	}
	assert.Equal(t, "User: Deploy auth service\n\nAssistant: Deploying now.\n\n", Render(msgs))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claude.json")
	require.NoError(t, os.WriteFile(path, []byte(claudeExport), 0o644))

	convs, err := LoadFile(path, SchemaAuto)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, path, convs[0].SourceFile)

	_, err = LoadFile(filepath.Join(dir, "missing.json"), SchemaAuto)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseSchema(t *testing.T) {
	for in, want := range map[string]Schema{
		"":        SchemaAuto,
		"auto":    SchemaAuto,
		"ChatGPT": SchemaChatGPT,
		"a":       SchemaChatGPT,
		"mistral": SchemaLeChat,
		"claude":  SchemaClaude,
	} {
		got, err := ParseSchema(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSchema("gemini")
	assert.Error(t, err)
}
