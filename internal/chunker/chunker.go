package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/sift/internal/transcript"
)

// DefaultBudget is the token budget used when none is configured.
const DefaultBudget = 31000

// Chunk is a token-bounded contiguous slice of a conversation, rendered as
// transcript text ready to be bound into a prompt.
type Chunk struct {
	ConversationID string
	Index          int // 0-based within the conversation
	Count          int // total chunks for the conversation
	Text           string
	ApproxTokens   int
	Messages       []transcript.Message

	SourceFile string
	Title      string
	Schema     transcript.Schema

	// Fingerprint is the parent conversation's. It tells apart conversations
	// that share an id.
	Fingerprint string
}

// Part returns the 1-based "i/n" label of the chunk.
func (c Chunk) Part() string {
	return fmt.Sprintf("%d/%d", c.Index+1, c.Count)
}

// Oversized reports whether the chunk exceeds budget, which only happens for
// a single message that alone is over it.
func (c Chunk) Oversized(budget int) bool {
	return c.ApproxTokens > budget
}

// EstimateTokens is a deterministic approximation of a tokenizer count: the
// larger of the word count and a quarter of the rune count.
func EstimateTokens(s string) int {
	words := len(strings.Fields(s))
	runes := (utf8.RuneCountInString(s) + 3) / 4
	if words > runes {
		return words
	}
	return runes
}

// Split partitions a conversation into chunks of at most budget estimated
// tokens, breaking only on message boundaries. A message that alone exceeds
// the budget becomes its own chunk, unmodified.
func Split(conv transcript.Conversation, budget int) ([]Chunk, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("token budget must be positive, got %d", budget)
	}
	if len(conv.Messages) == 0 {
		return nil, nil
	}

	var (
		chunks  []Chunk
		current []transcript.Message
		text    strings.Builder
		tokens  int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, buildChunk(conv, len(chunks), current, text.String(), tokens))
		current = nil
		text.Reset()
		tokens = 0
	}

	for _, msg := range conv.Messages {
		rendered := transcript.RenderMessage(msg)
		cost := EstimateTokens(rendered)

		// Close the current chunk when this message would push it over.
		if len(current) > 0 && tokens+cost > budget {
			flush()
		}

		current = append(current, msg)
		text.WriteString(rendered)
		tokens += cost
	}
	flush()

	for i := range chunks {
		chunks[i].Count = len(chunks)
	}
	return chunks, nil
}

func buildChunk(conv transcript.Conversation, idx int, msgs []transcript.Message, text string, tokens int) Chunk {
	c := Chunk{
		ConversationID: conv.ID,
		Index:          idx,
		Text:           text,
		ApproxTokens:   tokens,
		Messages:       make([]transcript.Message, len(msgs)),
		SourceFile:     conv.SourceFile,
		Title:          conv.Title,
		Schema:         conv.Schema,
		Fingerprint:    conv.Fingerprint,
	}
	copy(c.Messages, msgs)
	return c
}
