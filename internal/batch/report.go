package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/sift/internal/dedup"
)

// FileFailure records an input file that produced no conversations.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"` // unreadable, unrecognized or mismatch
	Error  string `json:"error"`
}

// ChunkFailure records a chunk whose prompt did not produce a response.
type ChunkFailure struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Part           string `json:"part"`
	ChunkIndex     int    `json:"chunk_index"`
	Kind           string `json:"error_kind"`
	Error          string `json:"error"`
	Attempts       int    `json:"attempts"`
}

// Report tallies one run.
type Report struct {
	RunID      string    `json:"run_id"`
	Prompt     string    `json:"prompt"`
	Mode       string    `json:"mode"`
	Model      string    `json:"model,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Files       int           `json:"files"`
	FilesLoaded int           `json:"files_loaded"`
	FailedFiles []FileFailure `json:"failed_files"`

	ConversationsFound     int               `json:"conversations_found"`
	ConversationsProcessed int               `json:"conversations_processed"`
	DuplicatesDropped      int               `json:"duplicates_dropped"`
	Duplicates             []dedup.Duplicate `json:"duplicates"`
	EmptyDropped           int               `json:"empty_dropped"`

	Chunks           int            `json:"chunks"`
	ChunksDispatched int            `json:"chunks_dispatched"`
	ChunksSucceeded  int            `json:"chunks_succeeded"`
	ChunksFailed     int            `json:"chunks_failed"`
	FailedChunks     []ChunkFailure `json:"failed_chunks"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Save writes the report as indented JSON, creating parent directories.
func (r *Report) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// FormatSummary renders the report for a terminal.
func (r *Report) FormatSummary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "\n=== Run Summary (%s) ===\n", r.RunID)
	fmt.Fprintf(&sb, "Prompt: %s\n", r.Prompt)
	fmt.Fprintf(&sb, "Mode: %s\n", r.Mode)
	fmt.Fprintf(&sb, "Files: %d loaded of %d\n", r.FilesLoaded, r.Files)
	fmt.Fprintf(&sb, "Conversations processed: %d\n", r.ConversationsProcessed)
	fmt.Fprintf(&sb, "Duplicates dropped: %d\n", r.DuplicatesDropped)
	if r.EmptyDropped > 0 {
		fmt.Fprintf(&sb, "Empty conversations dropped: %d\n", r.EmptyDropped)
	}
	fmt.Fprintf(&sb, "Chunks: %d dispatched of %d\n", r.ChunksDispatched, r.Chunks)
	fmt.Fprintf(&sb, "Chunks succeeded: %d\n", r.ChunksSucceeded)
	fmt.Fprintf(&sb, "Chunks failed: %d\n", r.ChunksFailed)
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(&sb, "Duration: %s\n", d.Round(time.Millisecond))
	}

	if len(r.FailedFiles) > 0 {
		sb.WriteString("\nFailed files:\n")
		for _, f := range r.FailedFiles {
			fmt.Fprintf(&sb, "  - %s [%s]: %s\n", f.Path, f.Reason, f.Error)
		}
	}
	if len(r.FailedChunks) > 0 {
		sb.WriteString("\nFailed chunks:\n")
		for _, c := range r.FailedChunks {
			fmt.Fprintf(&sb, "  - %s (part %s) [%s]: %s\n", c.ConversationID, c.Part, c.Kind, c.Error)
		}
	}

	return sb.String()
}
