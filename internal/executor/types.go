package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/sift/internal/chunker"
)

var (
	// ErrRetryExhausted wraps the last cause when transient failures outlast the policy.
	ErrRetryExhausted = errors.New("retries exhausted")
	// ErrCancelled marks chunks abandoned by run cancellation or timeout.
	ErrCancelled = errors.New("cancelled")
)

// Mode selects between real API calls and dry runs.
type Mode int

const (
	ModeLive Mode = iota
	ModeSimulated
)

func (m Mode) String() string {
	if m == ModeSimulated {
		return "simulated"
	}
	return "live"
}

// ParseMode maps "live" or "simulated" (also "simulate", "dry-run") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "live":
		return ModeLive, nil
	case "simulated", "simulate", "dry-run", "dryrun":
		return ModeSimulated, nil
	}
	return ModeLive, fmt.Errorf("unknown mode %q", s)
}

// Status is the outcome of one chunk.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusSimulated Status = "simulated"
	StatusFailed    Status = "failed"
)

// ErrorKind classifies a failed chunk for reports.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindRetryExhausted ErrorKind = "retry_exhausted"
	KindCancelled      ErrorKind = "cancelled"
	KindClient         ErrorKind = "client_error"
	KindTemplate       ErrorKind = "template_error"
	KindResponse       ErrorKind = "response_error"
)

// Result is the immutable outcome of executing a prompt against one chunk.
type Result struct {
	ConversationID   string
	ChunkIndex       int
	Status           Status
	Response         string
	Err              error
	Kind             ErrorKind
	Attempts         int
	Model            string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration

	// Chunk carries the metadata formatters need (title, part, source).
	Chunk chunker.Chunk
}

// OK reports whether the chunk produced a response.
func (r Result) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusSimulated
}

// ErrorMessage returns the error text, or "" on success.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Cancelled builds the result reported for a chunk that never finished.
func Cancelled(c chunker.Chunk, attempts int, cause error) Result {
	err := ErrCancelled
	if cause != nil && !errors.Is(cause, ErrCancelled) {
		err = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	return Result{
		ConversationID: c.ConversationID,
		ChunkIndex:     c.Index,
		Status:         StatusFailed,
		Err:            err,
		Kind:           KindCancelled,
		Attempts:       attempts,
		Chunk:          c,
	}
}
