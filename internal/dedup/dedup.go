package dedup

import (
	"log/slog"
	"sync"

	"github.com/MikeSquared-Agency/sift/internal/transcript"
)

// ConversationRef identifies a conversation in the duplicate report.
type ConversationRef struct {
	SourceFile string `json:"source_file"`
	ID         string `json:"id"`
	Title      string `json:"title"`
}

// Duplicate records a conversation dropped because an earlier one had the
// same fingerprint.
type Duplicate struct {
	Fingerprint string          `json:"fingerprint"`
	Survivor    ConversationRef `json:"survivor"`
	Dropped     ConversationRef `json:"dropped"`
}

// Deduplicator is an append-only, in-memory fingerprint set scoped to one run.
type Deduplicator struct {
	mu         sync.Mutex
	seen       map[string]ConversationRef
	duplicates []Duplicate
	logger     *slog.Logger
}

// New creates an empty deduplicator.
func New(logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		seen:   make(map[string]ConversationRef),
		logger: logger,
	}
}

// Register returns true the first time a conversation's content is seen and
// false for every later conversation with identical content, regardless of
// source file, id or title.
func (d *Deduplicator) Register(conv transcript.Conversation) bool {
	fp := conv.Fingerprint
	if fp == "" {
		fp = transcript.Fingerprint(conv.Messages)
	}
	ref := ConversationRef{SourceFile: conv.SourceFile, ID: conv.ID, Title: conv.Title}

	d.mu.Lock()
	defer d.mu.Unlock()

	if survivor, ok := d.seen[fp]; ok {
		d.duplicates = append(d.duplicates, Duplicate{Fingerprint: fp, Survivor: survivor, Dropped: ref})
		d.logger.Debug("duplicate conversation",
			"id", conv.ID,
			"source_file", conv.SourceFile,
			"survivor_id", survivor.ID,
			"survivor_file", survivor.SourceFile,
		)
		return false
	}
	d.seen[fp] = ref
	return true
}

// Len returns the number of distinct fingerprints registered.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Duplicates returns the dropped conversations in registration order.
func (d *Deduplicator) Duplicates() []Duplicate {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Duplicate, len(d.duplicates))
	copy(out, d.duplicates)
	return out
}
