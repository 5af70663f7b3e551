package hermes

import (
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/sift/internal/chunker"
	"github.com/MikeSquared-Agency/sift/internal/executor"
)

// Run event subjects.
const (
	SubjectRunStarted     = "sift.run.started"
	SubjectChunkCompleted = "sift.chunk.completed"
	SubjectRunFinished    = "sift.run.finished"
)

// Publisher sends a JSON-encoded event. *Client implements it.
type Publisher interface {
	Publish(subject string, data any) error
}

type RunStarted struct {
	RunID         string    `json:"run_id"`
	Prompt        string    `json:"prompt"`
	Mode          string    `json:"mode"`
	Model         string    `json:"model,omitempty"`
	Conversations int       `json:"conversations"`
	Chunks        int       `json:"chunks"`
	StartedAt     time.Time `json:"started_at"`
}

type ChunkCompleted struct {
	RunID          string `json:"run_id"`
	ConversationID string `json:"conversation_id"`
	ChunkIndex     int    `json:"chunk_index"`
	Part           string `json:"part"`
	Status         string `json:"status"`
	ErrorKind      string `json:"error_kind,omitempty"`
	Attempts       int    `json:"attempts"`
	DurationMS     int64  `json:"duration_ms"`
}

type RunFinished struct {
	RunID         string    `json:"run_id"`
	Conversations int       `json:"conversations"`
	Duplicates    int       `json:"duplicates"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	FailedFiles   int       `json:"failed_files"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Events publishes run lifecycle events. It implements dispatcher.Observer;
// publish failures are logged and never fail the run.
type Events struct {
	pub    Publisher
	runID  string
	logger *slog.Logger
}

func NewEvents(pub Publisher, runID string, logger *slog.Logger) *Events {
	return &Events{pub: pub, runID: runID, logger: logger}
}

func (e *Events) RunStarted(ev RunStarted) {
	ev.RunID = e.runID
	e.publish(SubjectRunStarted, ev)
}

func (e *Events) RunFinished(ev RunFinished) {
	ev.RunID = e.runID
	e.publish(SubjectRunFinished, ev)
}

func (e *Events) ChunkStarted(chunker.Chunk) {}

func (e *Events) ChunkFinished(r executor.Result) {
	e.publish(SubjectChunkCompleted, ChunkCompleted{
		RunID:          e.runID,
		ConversationID: r.ConversationID,
		ChunkIndex:     r.ChunkIndex,
		Part:           r.Chunk.Part(),
		Status:         string(r.Status),
		ErrorKind:      string(r.Kind),
		Attempts:       r.Attempts,
		DurationMS:     r.Duration.Milliseconds(),
	})
}

func (e *Events) publish(subject string, data any) {
	if err := e.pub.Publish(subject, data); err != nil {
		e.logger.Warn("publish event", "subject", subject, "error", err)
	}
}
